// Package display models the map display surface the overlay layer draws
// onto: the current view, a container of overlay widgets, a UI dispatcher
// and pan/zoom notifications.
package display

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"

	"github.com/joeblew999/geo-blink/internal/proj"
)

// metersPerPixel at 96 dpi, used to turn a resolution into a map scale.
const metersPerPixel = 0.0254 / 96

// View is the visible part of the map: a center and resolution in the
// display reference, plus the pixel size of the map image.
type View struct {
	Center     orb.Point
	Resolution float64 // world units per pixel
	Size       image.Point
	SRID       proj.SRID
}

// Validate checks that the view can be projected.
func (v View) Validate() error {
	switch {
	case v.Size.X <= 0 || v.Size.Y <= 0:
		return fmt.Errorf("invalid view size %v", v.Size)
	case v.Resolution <= 0 || math.IsNaN(v.Resolution) || math.IsInf(v.Resolution, 0):
		return fmt.Errorf("invalid view resolution %v", v.Resolution)
	}
	return nil
}

// Zoom is the width of the view in world units.
func (v View) Zoom() float64 {
	return v.Resolution * float64(v.Size.X)
}

// Scale is the map scale denominator, assuming metric world units.
func (v View) Scale() float64 {
	return v.Resolution / metersPerPixel
}

// Envelope returns the visible world rectangle.
func (v View) Envelope() orb.Bound {
	hw := v.Resolution * float64(v.Size.X) / 2
	hh := v.Resolution * float64(v.Size.Y) / 2
	return orb.Bound{
		Min: orb.Point{v.Center[0] - hw, v.Center[1] - hh},
		Max: orb.Point{v.Center[0] + hw, v.Center[1] + hh},
	}
}

// WorldToScreen projects a world point to fractional pixel coordinates with
// the origin at the top-left corner.
func (v View) WorldToScreen(p orb.Point) orb.Point {
	env := v.Envelope()
	return orb.Point{
		(p[0] - env.Min[0]) / v.Resolution,
		(env.Max[1] - p[1]) / v.Resolution,
	}
}

// ScreenToWorld is the inverse of WorldToScreen.
func (v View) ScreenToWorld(p orb.Point) orb.Point {
	env := v.Envelope()
	return orb.Point{
		env.Min[0] + p[0]*v.Resolution,
		env.Max[1] - p[1]*v.Resolution,
	}
}

// Pan moves the center by dx, dy pixels.
func (v View) Pan(dx, dy float64) View {
	v.Center = orb.Point{v.Center[0] + dx*v.Resolution, v.Center[1] - dy*v.Resolution}
	return v
}

// WithZoom returns the view resized so its width covers zoom world units.
func (v View) WithZoom(zoom float64) (View, error) {
	if zoom <= 0 || v.Size.X <= 0 {
		return v, errors.New("zoom must be positive")
	}
	v.Resolution = zoom / float64(v.Size.X)
	return v, nil
}

// FitBound returns a view of the given size centred on b that shows all of it.
func FitBound(b orb.Bound, size image.Point, srid proj.SRID) View {
	res := math.Max(
		(b.Max[0]-b.Min[0])/float64(max(size.X, 1)),
		(b.Max[1]-b.Min[1])/float64(max(size.Y, 1)),
	)
	if res <= 0 {
		res = 1
	}
	return View{Center: b.Center(), Resolution: res, Size: size, SRID: srid}
}
