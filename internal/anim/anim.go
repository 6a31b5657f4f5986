// Package anim holds the multi-frame marker image shown by overlay widgets.
//
// An Image decodes a GIF once into fully composited RGBA frames. Clones
// share those frames read-only but carry their own active-frame selection,
// so each widget can animate independently.
package anim

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"io"
	"os"
	"time"

	"golang.org/x/image/draw"
)

// defaultDelay is used for frames whose GIF delay is zero.
const defaultDelay = 100 * time.Millisecond

// ErrNoFrames is returned for a GIF without any frame.
var ErrNoFrames = errors.New("anim: image has no frames")

// Image is a multi-frame image with a per-instance active frame.
type Image struct {
	frames []*image.RGBA
	delays []time.Duration
	size   image.Point
	loop   int
	active int
}

// New composites the frames of g, applying each frame's disposal method.
func New(g *gif.GIF) (*Image, error) {
	if g == nil || len(g.Image) == 0 {
		return nil, ErrNoFrames
	}

	size := image.Pt(g.Config.Width, g.Config.Height)
	if size.X == 0 || size.Y == 0 {
		for _, f := range g.Image {
			size.X = max(size.X, f.Bounds().Max.X)
			size.Y = max(size.Y, f.Bounds().Max.Y)
		}
	}
	bounds := image.Rectangle{Max: size}

	canvas := image.NewRGBA(bounds)
	im := &Image{
		frames: make([]*image.RGBA, len(g.Image)),
		delays: make([]time.Duration, len(g.Image)),
		size:   size,
		loop:   g.LoopCount,
	}

	for i, frame := range g.Image {
		var previous *image.RGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		im.frames[i] = cloneRGBA(canvas)

		im.delays[i] = defaultDelay
		if i < len(g.Delay) && g.Delay[i] > 0 {
			im.delays[i] = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return im, nil
}

// Decode reads an animated GIF.
func Decode(r io.Reader) (*Image, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, fmt.Errorf("decoding gif: %w", err)
	}
	return New(g)
}

// Load reads an animated GIF from disk.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// CanAnimate reports whether the image has more than one frame.
func (im *Image) CanAnimate() bool {
	return im != nil && len(im.frames) > 1
}

// FrameCount returns the number of frames.
func (im *Image) FrameCount() int {
	if im == nil {
		return 0
	}
	return len(im.frames)
}

// Size returns the logical screen size of the image.
func (im *Image) Size() image.Point {
	if im == nil {
		return image.Point{}
	}
	return im.size
}

// Clone returns an independent copy. Frame pixels are shared and must be
// treated as read-only.
func (im *Image) Clone() *Image {
	if im == nil {
		return nil
	}
	c := *im
	return &c
}

// Dispose drops the frame references. A disposed image has no frames.
func (im *Image) Dispose() {
	if im == nil {
		return
	}
	im.frames = nil
	im.delays = nil
	im.active = 0
}

// SelectFrame makes frame i the active one.
func (im *Image) SelectFrame(i int) error {
	if i < 0 || i >= im.FrameCount() {
		return fmt.Errorf("anim: frame %d out of range [0,%d)", i, im.FrameCount())
	}
	im.active = i
	return nil
}

// ActiveFrame returns the index of the active frame.
func (im *Image) ActiveFrame() int {
	return im.active
}

// Frame returns the active frame, or nil for a disposed image.
func (im *Image) Frame() image.Image {
	if im.FrameCount() == 0 {
		return nil
	}
	return im.frames[im.active]
}

// Delay returns how long frame i stays on screen.
func (im *Image) Delay(i int) time.Duration {
	if i < 0 || i >= len(im.delays) {
		return 0
	}
	return im.delays[i]
}

// Duration returns the length of one loop.
func (im *Image) Duration() time.Duration {
	var d time.Duration
	for _, v := range im.delays {
		d += v
	}
	return d
}

// Advance selects the frame shown after elapsed time since the first frame,
// looping forever.
func (im *Image) Advance(elapsed time.Duration) int {
	total := im.Duration()
	if total <= 0 {
		return im.active
	}
	t := elapsed % total
	if t < 0 {
		t += total
	}
	for i, d := range im.delays {
		if t < d {
			im.active = i
			return i
		}
		t -= d
	}
	im.active = len(im.delays) - 1
	return im.active
}

// Draw composites the active frame over dst inside r.
func (im *Image) Draw(dst draw.Image, r image.Rectangle) {
	frame := im.Frame()
	if frame == nil || dst == nil {
		return
	}
	draw.Draw(dst, r, frame, frame.Bounds().Min, draw.Over)
}

// EncodeGIF writes all frames as an animated GIF.
func (im *Image) EncodeGIF(w io.Writer) error {
	if im.FrameCount() == 0 {
		return ErrNoFrames
	}
	out := &gif.GIF{LoopCount: im.loop}
	for i, frame := range im.frames {
		out.Image = append(out.Image, Paletted(frame))
		out.Delay = append(out.Delay, int(im.delays[i]/(10*time.Millisecond)))
		out.Disposal = append(out.Disposal, gif.DisposalBackground)
	}
	out.Config = image.Config{Width: im.size.X, Height: im.size.Y}
	return gif.EncodeAll(w, out)
}

// Paletted converts an RGBA frame for GIF output. Fully transparent pixels
// map to palette index 0.
func Paletted(src image.Image) *image.Paletted {
	dst := image.NewPaletted(src.Bounds(), gifPalette)
	draw.FloydSteinberg.Draw(dst, src.Bounds(), src, src.Bounds().Min)
	return dst
}

// gifPalette is a transparent entry followed by a 6x6x6 colour cube and a
// grey ramp.
var gifPalette = func() color.Palette {
	p := color.Palette{color.RGBA{}}
	levels := []uint8{0, 0x33, 0x66, 0x99, 0xcc, 0xff}
	for _, r := range levels {
		for _, g := range levels {
			for _, b := range levels {
				p = append(p, color.RGBA{R: r, G: g, B: b, A: 0xff})
			}
		}
	}
	for i := 1; len(p) < 256; i++ {
		v := uint8(i * 6)
		p = append(p, color.RGBA{R: v, G: v, B: v, A: 0xff})
	}
	return p
}()
