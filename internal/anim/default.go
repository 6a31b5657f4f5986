package anim

import (
	"image"
	"image/color"
	"image/gif"
	"sync"
)

var (
	defaultOnce sync.Once
	defaultImg  *Image
)

// Default returns a fresh clone of the built-in marker: a 16x16 green dot
// that blinks twice a second.
func Default() *Image {
	defaultOnce.Do(func() {
		defaultImg, _ = New(greenDot())
	})
	return defaultImg.Clone()
}

func greenDot() *gif.GIF {
	palette := color.Palette{
		color.RGBA{},
		color.RGBA{R: 0x10, G: 0xc0, B: 0x30, A: 0xff},
		color.RGBA{R: 0x08, G: 0x60, B: 0x18, A: 0xff},
	}
	const size = 16
	frame := func(radius int, fill uint8) *image.Paletted {
		img := image.NewPaletted(image.Rect(0, 0, size, size), palette)
		c := size / 2
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx, dy := x-c, y-c
				switch d := dx*dx + dy*dy; {
				case d <= (radius-1)*(radius-1):
					img.SetColorIndex(x, y, fill)
				case d <= radius*radius:
					img.SetColorIndex(x, y, 2)
				}
			}
		}
		return img
	}
	return &gif.GIF{
		Image:    []*image.Paletted{frame(7, 1), frame(3, 2)},
		Delay:    []int{50, 50},
		Disposal: []byte{gif.DisposalBackground, gif.DisposalBackground},
		Config:   image.Config{ColorModel: palette, Width: size, Height: size},
	}
}
