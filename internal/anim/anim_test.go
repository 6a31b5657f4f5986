package anim

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"testing"
	"time"
)

func singleFrame() *gif.GIF {
	p := color.Palette{color.Transparent, color.White}
	return &gif.GIF{
		Image: []*image.Paletted{image.NewPaletted(image.Rect(0, 0, 4, 4), p)},
		Delay: []int{0},
	}
}

func TestDefaultIsAnimated(t *testing.T) {
	im := Default()
	if !im.CanAnimate() {
		t.Fatal("default marker must have more than one frame")
	}
	if got := im.Size(); got != image.Pt(16, 16) {
		t.Fatalf("Size=%v, want 16x16", got)
	}
	if im.Delay(0) != 500*time.Millisecond {
		t.Fatalf("Delay(0)=%v", im.Delay(0))
	}
}

func TestDefaultReturnsIndependentClones(t *testing.T) {
	a, b := Default(), Default()
	if err := a.SelectFrame(1); err != nil {
		t.Fatal(err)
	}
	if b.ActiveFrame() != 0 {
		t.Fatal("selecting a frame on one clone leaked into another")
	}
}

func TestSingleFrameCannotAnimate(t *testing.T) {
	im, err := New(singleFrame())
	if err != nil {
		t.Fatal(err)
	}
	if im.CanAnimate() {
		t.Fatal("single-frame image reported CanAnimate")
	}
	if im.Delay(0) != defaultDelay {
		t.Fatalf("zero delay should default, got %v", im.Delay(0))
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(&gif.GIF{}); err != ErrNoFrames {
		t.Fatalf("err=%v, want ErrNoFrames", err)
	}
	if _, err := New(nil); err != ErrNoFrames {
		t.Fatalf("err=%v, want ErrNoFrames", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	im := Default()
	c := im.Clone()
	if err := c.SelectFrame(1); err != nil {
		t.Fatal(err)
	}
	if im.ActiveFrame() != 0 {
		t.Fatalf("original active frame changed to %d", im.ActiveFrame())
	}
	c.Dispose()
	if im.FrameCount() != 2 {
		t.Fatal("disposing a clone dropped the original's frames")
	}
	if c.Frame() != nil {
		t.Fatal("disposed clone still returns a frame")
	}
}

func TestSelectFrameOutOfRange(t *testing.T) {
	im := Default()
	if err := im.SelectFrame(2); err == nil {
		t.Fatal("expected error for frame 2")
	}
	if err := im.SelectFrame(-1); err == nil {
		t.Fatal("expected error for frame -1")
	}
}

func TestAdvanceLoops(t *testing.T) {
	im := Default()
	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{499 * time.Millisecond, 0},
		{500 * time.Millisecond, 1},
		{999 * time.Millisecond, 1},
		{time.Second, 0},
		{1700 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		if got := im.Advance(tt.elapsed); got != tt.want {
			t.Errorf("Advance(%v)=%d, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestDrawFirstFrame(t *testing.T) {
	im := Default()
	dst := image.NewRGBA(image.Rect(0, 0, 32, 32))
	im.Draw(dst, image.Rect(8, 8, 24, 24))

	if _, _, _, a := dst.At(16, 16).RGBA(); a == 0 {
		t.Fatal("centre of the dot should be opaque")
	}
	if _, _, _, a := dst.At(0, 0).RGBA(); a != 0 {
		t.Fatal("pixels outside the target rectangle should be untouched")
	}
}

func TestDisposalBackgroundClearsBetweenFrames(t *testing.T) {
	im := Default()
	// frame 1 is a smaller dot; the ring of frame 0 must not bleed through.
	if err := im.SelectFrame(1); err != nil {
		t.Fatal(err)
	}
	if _, _, _, a := im.Frame().At(8, 1).RGBA(); a != 0 {
		t.Fatal("frame 1 should be transparent near the edge")
	}
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := Default().EncodeGIF(&buf); err != nil {
		t.Fatal(err)
	}
	im, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if im.FrameCount() != 2 || im.Size() != image.Pt(16, 16) {
		t.Fatalf("decoded %d frames of %v", im.FrameCount(), im.Size())
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not a gif"))); err == nil {
		t.Fatal("expected decode error")
	}
}
