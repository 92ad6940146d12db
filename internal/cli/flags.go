package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/sampler"
)

// Output formats shared by commands that print results.
const (
	formatText = "text"
	formatJSON = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	}
	return fmt.Errorf("unknown output format %q (expected text or json)", format)
}

// pointsValue collects repeated --at x,y flags.
type pointsValue []sampler.Point

var _ pflag.Value = (*pointsValue)(nil)

func (p *pointsValue) String() string {
	parts := make([]string, len(*p))
	for i, pt := range *p {
		parts[i] = formatPoint(pt)
	}
	return strings.Join(parts, " ")
}

// Set appends one "x,y" position.
func (p *pointsValue) Set(s string) error {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return fmt.Errorf("invalid position %q (expected x,y)", s)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if errX != nil || errY != nil {
		return fmt.Errorf("invalid position %q (expected numbers)", s)
	}
	if x < 0 || y < 0 {
		return fmt.Errorf("invalid position %q (must not be negative)", s)
	}
	*p = append(*p, sampler.Point{X: x, Y: y})
	return nil
}

func (p *pointsValue) Type() string { return "x,y" }

func formatPoint(pt sampler.Point) string {
	return strconv.FormatFloat(pt.X, 'f', -1, 64) + "," + strconv.FormatFloat(pt.Y, 'f', -1, 64)
}

// viewportValue parses --viewport WxH.
type viewportValue sampler.Viewport

var _ pflag.Value = (*viewportValue)(nil)

func (v *viewportValue) String() string {
	if v.Width == 0 && v.Height == 0 {
		return ""
	}
	return strconv.FormatFloat(v.Width, 'f', -1, 64) + "x" + strconv.FormatFloat(v.Height, 'f', -1, 64)
}

func (v *viewportValue) Set(s string) error {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return fmt.Errorf("invalid viewport %q (expected WxH)", s)
	}
	w, errW := strconv.ParseFloat(strings.TrimSpace(ws), 64)
	h, errH := strconv.ParseFloat(strings.TrimSpace(hs), 64)
	if errW != nil || errH != nil {
		return fmt.Errorf("invalid viewport %q (expected numbers)", s)
	}
	vp := sampler.Viewport{Width: w, Height: h}
	if !vp.Valid() {
		return fmt.Errorf("invalid viewport %q: %w", s, sampler.ErrInvalidViewport)
	}
	*v = viewportValue(vp)
	return nil
}

func (v *viewportValue) Type() string { return "WxH" }

// kindsValue parses --kind names|seasons|all.
type kindsValue []catalog.Kind

var _ pflag.Value = (*kindsValue)(nil)

func (k *kindsValue) String() string {
	if len(*k) == 2 {
		return "all"
	}
	parts := make([]string, len(*k))
	for i, kind := range *k {
		parts[i] = string(kind)
	}
	return strings.Join(parts, ",")
}

func (k *kindsValue) Set(s string) error {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		*k = kindsValue{catalog.KindNames, catalog.KindSeasons}
		return nil
	}
	kind, err := catalog.ParseKind(s)
	if err != nil {
		return err
	}
	*k = kindsValue{kind}
	return nil
}

func (k *kindsValue) Type() string { return "kind" }
