package sampler

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/jmylchreest/swatchwise/internal/colour"
)

func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func TestSampleUniformRegion(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	want := color.NRGBA{R: 18, G: 52, B: 86, A: 255}
	fill(img, img.Bounds(), want)

	positions := []Point{{0, 0}, {5, 5}, {9.9, 9.9}, {10, 10}, {0, 10}, {3.3, 7.7}}
	for name, interp := range Interpolators {
		s := &Sampler{Interpolator: interp}
		for _, p := range positions {
			got, err := s.SamplePoint(img, p, Viewport{Width: 10, Height: 10})
			if err != nil {
				t.Fatalf("%s: Sample(%v) failed: %v", name, p, err)
			}
			if got != (colour.RGBA{R: 18, G: 52, B: 86, A: 255}) {
				t.Errorf("%s: Sample(%v) = %v, want %v", name, p, got, want)
			}
		}
	}
}

func TestSampleScalesViewport(t *testing.T) {
	// 20x20 bitmap captured from a 10x10 viewport: device pixel ratio 2.
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	fill(img, image.Rect(0, 0, 10, 20), color.NRGBA{R: 255, A: 255})
	fill(img, image.Rect(10, 0, 20, 20), color.NRGBA{B: 255, A: 255})

	s := &Sampler{}

	left, err := s.Sample(img, 2, 5, 10, 10)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if left.RGB() != (colour.RGB{R: 255}) {
		t.Errorf("Expected red on the left, got %v", left)
	}

	right, err := s.Sample(img, 8, 5, 10, 10)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if right.RGB() != (colour.RGB{B: 255}) {
		t.Errorf("Expected blue on the right, got %v", right)
	}
}

func TestSampleOffsetBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(5, 5, 15, 15))
	fill(img, img.Bounds(), color.NRGBA{G: 200, A: 255})

	got, err := (&Sampler{}).Sample(img, 10, 10, 10, 10)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if got.RGB() != (colour.RGB{G: 200}) {
		t.Errorf("Expected green, got %v", got)
	}
}

func TestSampleAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	fill(img, img.Bounds(), color.NRGBA{R: 255, G: 255, B: 255, A: 128})

	got, err := (&Sampler{}).Sample(img, 2, 2, 4, 4)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if got.A != 128 {
		t.Errorf("Expected alpha 128, got %d", got.A)
	}
	if o := got.Opacity(); o < 0.5 || o > 0.51 {
		t.Errorf("Expected opacity ~0.5, got %v", o)
	}
}

func TestSampleErrors(t *testing.T) {
	s := &Sampler{}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))

	if _, err := s.Sample(nil, 0, 0, 1, 1); !errors.Is(err, ErrEmptyBitmap) {
		t.Errorf("Expected ErrEmptyBitmap for nil, got %v", err)
	}
	if _, err := s.Sample(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 0, 0, 1, 1); !errors.Is(err, ErrEmptyBitmap) {
		t.Errorf("Expected ErrEmptyBitmap for empty image, got %v", err)
	}
	for _, vp := range []Viewport{{0, 10}, {10, 0}, {-1, 10}} {
		if _, err := s.SamplePoint(img, Point{}, vp); !errors.Is(err, ErrInvalidViewport) {
			t.Errorf("Expected ErrInvalidViewport for %v, got %v", vp, err)
		}
	}
}

func TestAverageCeiling(t *testing.T) {
	surface := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	surface.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 10, B: 0, A: 255})
	surface.SetNRGBA(1, 0, color.NRGBA{R: 2, G: 10, B: 0, A: 254})

	got := average(surface)
	if got != (colour.RGBA{R: 2, G: 10, B: 0, A: 255}) {
		t.Errorf("Expected ceiling average {2 10 0 255}, got %v", got)
	}
}

func TestNewSampler(t *testing.T) {
	if _, err := New(8, "lanczos"); err == nil {
		t.Error("Expected error for unknown interpolator")
	}
	if _, err := New(-1, ""); err == nil {
		t.Error("Expected error for negative size")
	}
	s, err := New(4, "Nearest")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.SurfaceSize != 4 {
		t.Errorf("Expected size 4, got %d", s.SurfaceSize)
	}
}
