package colour

import "math"

// Component identifies one HSV channel for Describe.
type Component byte

const (
	Hue        Component = 'h'
	Saturation Component = 's'
	Value      Component = 'v'
)

var poles = map[Component][2]string{
	Hue:        {"cool", "warm"},
	Saturation: {"muted", "saturated"},
	Value:      {"dark", "light"},
}

// Description is a qualitative reading of an HSV colour.
type Description struct {
	Hue        string `json:"hue"`
	Saturation string `json:"saturation"`
	Value      string `json:"value"`
}

// Describe labels each HSV component on its two-pole scale.
func (c HSV) Describe() Description {
	return Description{
		Hue:        DescribeComponent(Hue, c.H),
		Saturation: DescribeComponent(Saturation, c.S),
		Value:      DescribeComponent(Value, c.V),
	}
}

// DescribeComponent places value on the component's scale. Saturation and value are read as
// percentages. Hue is folded onto a blue (240°, coolest) to yellow (60°, warmest) axis first.
func DescribeComponent(comp Component, value float64) string {
	p, ok := poles[comp]
	if !ok {
		return ""
	}

	pct := value
	if comp == Hue {
		pct = math.Abs(value-240) / 180 * 100
	}

	switch {
	case pct < 20:
		return "very " + p[0]
	case pct < 40:
		return p[0]
	case pct < 50:
		return "mildly " + p[0]
	case pct < 60:
		return "mildly " + p[1]
	case pct < 80:
		return p[1]
	default:
		return "very " + p[1]
	}
}
