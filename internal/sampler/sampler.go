// Package sampler reads the colour under a cursor position from a captured bitmap.
//
// A 1x1 source region at the scaled cursor position is stretched over a small sampling
// surface and the surface is averaged per channel, mirroring how a browser canvas
// reads back a scaled draw.
package sampler

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/jmylchreest/swatchwise/internal/colour"
	"github.com/jmylchreest/swatchwise/internal/security"
)

// DefaultSurfaceSize is the edge length of the sampling surface.
const DefaultSurfaceSize = 8

var (
	// ErrEmptyBitmap is returned for a nil or zero-area bitmap.
	ErrEmptyBitmap = errors.New("sampler: empty bitmap")

	// ErrInvalidViewport is returned for a non-positive or non-finite viewport.
	ErrInvalidViewport = errors.New("sampler: invalid viewport")
)

// Interpolators maps configuration names to x/image interpolators.
var Interpolators = map[string]draw.Interpolator{
	"nearest":        draw.NearestNeighbor,
	"approxbilinear": draw.ApproxBiLinear,
	"bilinear":       draw.BiLinear,
	"catmullrom":     draw.CatmullRom,
}

// ParseInterpolator resolves an interpolator by name. The empty name selects
// approxbilinear.
func ParseInterpolator(name string) (draw.Interpolator, error) {
	if name == "" {
		return draw.ApproxBiLinear, nil
	}
	interp, ok := Interpolators[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown interpolator %q", name)
	}
	return interp, nil
}

// Sampler extracts colour samples. The zero value uses an 8x8 surface and approximate
// bilinear interpolation.
type Sampler struct {
	// SurfaceSize is the sampling surface edge length in pixels.
	SurfaceSize int
	// Interpolator scales the source region onto the surface.
	Interpolator draw.Interpolator
}

// New returns a sampler with the given surface size and interpolator name.
func New(size int, interpolator string) (*Sampler, error) {
	if size < 0 {
		return nil, fmt.Errorf("surface size must not be negative: %d", size)
	}
	interp, err := ParseInterpolator(interpolator)
	if err != nil {
		return nil, err
	}
	return &Sampler{SurfaceSize: size, Interpolator: interp}, nil
}

// Point is a cursor position in viewport (CSS pixel) coordinates.
type Point struct {
	X, Y float64
}

// Viewport is the visible page area the bitmap was captured from.
type Viewport struct {
	Width, Height float64
}

// Valid reports whether both dimensions are positive and finite.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0 && !math.IsInf(v.Width, 0) && !math.IsInf(v.Height, 0)
}

// Sample returns the colour of bitmap under viewport position (x, y). Each channel of
// the result is the ceiling of its average over the sampling surface.
func (s *Sampler) Sample(bitmap image.Image, x, y, viewportW, viewportH float64) (colour.RGBA, error) {
	if bitmap == nil || bitmap.Bounds().Empty() {
		return colour.RGBA{}, ErrEmptyBitmap
	}
	vp := Viewport{Width: viewportW, Height: viewportH}
	if !vp.Valid() {
		return colour.RGBA{}, fmt.Errorf("%w: %gx%g", ErrInvalidViewport, viewportW, viewportH)
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return colour.RGBA{}, fmt.Errorf("invalid sample position %g,%g", x, y)
	}

	size := s.SurfaceSize
	if size <= 0 {
		size = DefaultSurfaceSize
	}
	interp := s.Interpolator
	if interp == nil {
		interp = draw.ApproxBiLinear
	}

	b := bitmap.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	bx := clamp(x*w/viewportW-0.5, 0, w-1)
	by := clamp(y*h/viewportH-0.5, 0, h-1)

	// Map the source square [bx, bx+1) x [by, by+1) onto the whole surface.
	n := float64(size)
	s2d := f64.Aff3{
		n, 0, -(bx + float64(b.Min.X)) * n,
		0, n, -(by + float64(b.Min.Y)) * n,
	}

	surface := image.NewNRGBA(image.Rect(0, 0, size, size))
	interp.Transform(surface, s2d, bitmap, b, draw.Src, nil)

	return average(surface), nil
}

// SamplePoint is Sample with struct arguments.
func (s *Sampler) SamplePoint(bitmap image.Image, p Point, vp Viewport) (colour.RGBA, error) {
	return s.Sample(bitmap, p.X, p.Y, vp.Width, vp.Height)
}

func average(surface *image.NRGBA) colour.RGBA {
	var sum [4]int
	pixels := len(surface.Pix) / 4
	for i := 0; i < len(surface.Pix); i += 4 {
		for c := 0; c < 4; c++ {
			sum[c] += int(surface.Pix[i+c])
		}
	}

	ceilDiv := func(v int) uint8 {
		return security.SafeUint8((v + pixels - 1) / pixels)
	}
	return colour.RGBA{R: ceilDiv(sum[0]), G: ceilDiv(sum[1]), B: ceilDiv(sum[2]), A: ceilDiv(sum[3])}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
