package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/swatchwise/internal/agent"
	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/colour"
)

const swatchWidth = 4

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// swatch renders a colour block, or nothing when ANSI output is off.
func swatch(rgb colour.RGB, ansi bool) string {
	if !ansi {
		return ""
	}
	return colour.ColourPreview(rgb, swatchWidth)
}

// entryNames lists the display names of e.
func entryNames(e catalog.Entry) string {
	names := make([]string, len(e.Names))
	for i, n := range e.Names {
		names[i] = n.Display()
	}
	return strings.Join(names, ", ")
}

// entrySeasons lists the season types e suits, followed by those it does not.
func entrySeasons(e catalog.Entry) string {
	if e.Seasons == nil {
		return ""
	}
	good := make([]string, len(e.Seasons.Good))
	for i, s := range e.Seasons.Good {
		good[i] = s.Display()
	}
	out := strings.Join(good, ", ")
	if len(e.Seasons.Bad) > 0 {
		bad := make([]string, len(e.Seasons.Bad))
		for i, s := range e.Seasons.Bad {
			bad[i] = s.Label()
		}
		out += "; not " + strings.Join(bad, ", ")
	}
	return out
}

// matchDetail describes the kind-specific data of a match.
func matchDetail(m catalog.Match, kind catalog.Kind) string {
	if kind == catalog.KindSeasons {
		return entrySeasons(m.Entry)
	}
	return entryNames(m.Entry)
}

// matchTarget renders the matched key, marking non-exact matches with their distance.
func matchTarget(m catalog.Match) string {
	if m.Exact {
		return m.Entry.Hex()
	}
	return fmt.Sprintf("%s (~%.1f)", m.Entry.Hex(), m.Distance)
}

// describeLine summarises an identification on one line.
func describeLine(ident agent.Identification, ansi bool) string {
	d := ident.Description
	parts := []string{
		ident.RGBA.RGB().String(),
		identMatch(ident.Name, catalog.KindNames),
		identMatch(ident.Seasons, catalog.KindSeasons),
		d.Hue + ", " + d.Saturation + ", " + d.Value,
	}
	return colour.FormatColourWithPreview(ident.RGBA.RGB(), swatchWidth, ansi) + "  " + strings.Join(parts, " | ")
}

// identMatch renders one match of an identification.
func identMatch(m *catalog.Match, kind catalog.Kind) string {
	if m == nil {
		return "no data"
	}
	detail := firstName(m.Entry)
	if kind == catalog.KindSeasons {
		detail = entrySeasons(m.Entry)
	}
	return detail + " " + matchMarker(*m)
}

func firstName(e catalog.Entry) string {
	if len(e.Names) == 0 {
		return e.Hex()
	}
	return e.Names[0].Display()
}

func matchMarker(m catalog.Match) string {
	if m.Exact {
		return "(exact)"
	}
	return "(nearest " + m.Entry.Hex() + ")"
}
