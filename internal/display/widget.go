package display

import (
	"image"
	"sync"

	"github.com/joeblew999/geo-blink/internal/anim"
)

// Widget is an overlay handle: a named, positioned image that can be shown
// or hidden.
type Widget interface {
	Name() string
	Image() *anim.Image
	SetImage(img *anim.Image)
	Location() image.Point
	SetLocation(p image.Point)
	Visible() bool
	SetVisible(v bool)
	Size() image.Point
	Dispose()
	Disposed() bool
}

// Sprite is the Widget used by Canvas.
type Sprite struct {
	mu       sync.RWMutex
	name     string
	img      *anim.Image
	loc      image.Point
	visible  bool
	disposed bool
}

// NewSprite creates a hidden sprite.
func NewSprite(name string, img *anim.Image) *Sprite {
	return &Sprite{name: name, img: img}
}

func (s *Sprite) Name() string { return s.name }

func (s *Sprite) Image() *anim.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img
}

func (s *Sprite) SetImage(img *anim.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

func (s *Sprite) Location() image.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

func (s *Sprite) SetLocation(p image.Point) {
	s.mu.Lock()
	s.loc = p
	s.mu.Unlock()
}

func (s *Sprite) Visible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible
}

func (s *Sprite) SetVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
}

// Size follows the image (auto-size).
func (s *Sprite) Size() image.Point {
	return s.Image().Size()
}

// Dispose releases the image and hides the sprite.
func (s *Sprite) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img != nil {
		s.img.Dispose()
		s.img = nil
	}
	s.visible = false
	s.disposed = true
}

func (s *Sprite) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// Bounds is the screen rectangle covered by the sprite.
func (s *Sprite) Bounds() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return image.Rectangle{Min: s.loc, Max: s.loc.Add(s.img.Size())}
}
