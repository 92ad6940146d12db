package colour

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// RGBToHSL converts RGB to HSL with the hue rounded to whole degrees and saturation and
// lightness rounded to whole percent.
func RGBToHSL(rgb RGB) HSL {
	h, s, l := rgbToHSL(rgb)
	return HSL{
		H: int(math.Round(h)),
		S: int(math.Round(s * 100)),
		L: int(math.Round(l * 100)),
	}
}

// rgbToHSL converts RGB to HSL colour space.
// Returns hue (0-360), saturation (0-1), lightness (0-1).
func rgbToHSL(rgb RGB) (h, s, l float64) {
	r := float64(rgb.R) / 255.0
	g := float64(rgb.G) / 255.0
	b := float64(rgb.B) / 255.0

	maxVal := math.Max(r, math.Max(g, b))
	minVal := math.Min(r, math.Min(g, b))
	delta := maxVal - minVal

	// Lightness.
	l = (maxVal + minVal) / 2.0

	// Achromatic.
	if delta == 0 {
		return 0, 0, l
	}

	if l > 0.5 {
		s = delta / (2.0 - maxVal - minVal)
	} else {
		s = delta / (maxVal + minVal)
	}

	switch maxVal {
	case r:
		h = (g - b) / delta
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/delta + 2
	case b:
		h = (r-g)/delta + 4
	}

	h *= 60
	return h, s, l
}

// RGBToHSV converts RGB to HSV. Hue is in degrees, saturation and value in percent, all
// rounded to two decimals. Achromatic colours (max == min) have h = s = 0.
func RGBToHSV(rgb RGB) HSV {
	r := float64(rgb.R) / 255.0
	g := float64(rgb.G) / 255.0
	b := float64(rgb.B) / 255.0

	v := math.Max(r, math.Max(g, b))
	diff := v - math.Min(r, math.Min(g, b))

	if diff == 0 {
		return HSV{H: 0, S: 0, V: round2(v * 100)}
	}

	s := diff / v
	diffc := func(c float64) float64 { return (v-c)/6/diff + 0.5 }
	rr, gg, bb := diffc(r), diffc(g), diffc(b)

	var h float64
	switch v {
	case r:
		h = bb - gg
	case g:
		h = 1.0/3.0 + rr - bb
	default:
		h = 2.0/3.0 + gg - rr
	}

	if h < 0 {
		h++
	} else if h > 1 {
		h--
	}

	return HSV{
		H: round2(h * 360),
		S: round2(s * 100),
		V: round2(v * 100),
	}
}

// HSVToRGB converts HSV (degrees, percent, percent) back to RGB.
func HSVToRGB(hsv HSV) RGB {
	c := colorful.Hsv(math.Mod(hsv.H, 360), clampUnit(hsv.S/100), clampUnit(hsv.V/100))
	r, g, b := c.Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
