// Package colour provides conversions between hex, RGB(A), HSL and HSV colour representations.
package colour

import (
	"fmt"
	"math"
)

// RGB represents a color in RGB format.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// String returns the RGB color as a string in the format "rgb(r, g, b)".
func (rgb RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", rgb.R, rgb.G, rgb.B)
}

// Hex returns the RGB color as a hex string (e.g., "#1a2b3c").
func (rgb RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", rgb.R, rgb.G, rgb.B)
}

// Key returns the canonical catalog form: six lowercase hex digits without a leading "#".
func (rgb RGB) Key() string {
	return fmt.Sprintf("%02x%02x%02x", rgb.R, rgb.G, rgb.B)
}

// RGBA is a sampled colour. A holds the 0-255 channel value; Opacity reports it as 0-1.
type RGBA struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// RGB drops the alpha channel.
func (c RGBA) RGB() RGB {
	return RGB{R: c.R, G: c.G, B: c.B}
}

// Opacity returns the alpha channel normalised to the range [0, 1].
func (c RGBA) Opacity() float64 {
	return float64(c.A) / 255.0
}

// Hex returns "#rrggbbaa".
func (c RGBA) Hex() string {
	return RGBAToHex(c.R, c.G, c.B, c.Opacity())
}

// String returns the colour as "rgba(r, g, b, a)" with a 0-1 alpha.
func (c RGBA) String() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %.2f)", c.R, c.G, c.B, c.Opacity())
}

// HSL holds hue in degrees (0-360) and saturation/lightness in whole percent (0-100).
type HSL struct {
	H int `json:"h"`
	S int `json:"s"`
	L int `json:"l"`
}

// String returns the HSL colour in CSS notation.
func (c HSL) String() string {
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", c.H, c.S, c.L)
}

// HSV holds hue in degrees and saturation/value in percent, each rounded to two decimals.
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// String returns a human-readable HSV triple.
func (c HSV) String() string {
	return fmt.Sprintf("hsv(%g°, %g%%, %g%%)", c.H, c.S, c.V)
}

// RGBAToHex formats the channels as "#rrggbb". When an alpha in (0, 1] is given it is
// appended as a fourth byte, round(a*255).
func RGBAToHex(r, g, b uint8, alpha ...float64) string {
	hex := fmt.Sprintf("#%02x%02x%02x", r, g, b)
	if len(alpha) > 0 && alpha[0] > 0 {
		a := math.Round(math.Min(alpha[0], 1) * 255)
		hex += fmt.Sprintf("%02x", uint8(a))
	}
	return hex
}
