package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jmylchreest/swatchwise/internal/colour"
)

// Kind selects which half of the catalog a lookup searches.
type Kind string

const (
	KindNames   Kind = "names"
	KindSeasons Kind = "seasons"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindNames, KindSeasons:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Source is the naming system a colour name comes from.
type Source string

const (
	SourceW3C     Source = "W3C"
	SourceX11     Source = "X11"
	SourceCrayola Source = "Crayola"
	SourceRAL     Source = "RAL"
	SourcePantone Source = "Pantone"
)

// Sources lists every known source in display order.
var Sources = []Source{SourceW3C, SourceX11, SourceCrayola, SourceRAL, SourcePantone}

var sourceURLs = map[Source]string{
	SourceCrayola: "https://www.w3schools.com/colors/colors_crayola.asp",
	SourceX11:     "https://en.wikipedia.org/wiki/X11_color_names",
	SourceW3C:     "https://www.w3schools.com/colors/colors_names.asp",
	SourceRAL:     "https://www.w3schools.com/colors/colors_ral.asp",
	SourcePantone: "https://en.wikipedia.org/wiki/Pantone",
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	_, ok := sourceURLs[s]
	return ok
}

// Digital reports whether the source is a digital colour space. Names from other
// sources are approximations of physical swatches.
func (s Source) Digital() bool {
	return s == SourceW3C || s == SourceX11
}

// URL returns a reference page for the source.
func (s Source) URL() string {
	return sourceURLs[s]
}

// Name is one catalogued name for a colour.
type Name struct {
	Name   string `json:"name"`
	Source Source `json:"source"`
	Number string `json:"number,omitempty"`
}

// Display renders the name as "Pure White [RAL 9010]*". The asterisk marks names from
// non-digital sources.
func (n Name) Display() string {
	var b strings.Builder
	b.WriteString(n.Name)
	b.WriteString(" [")
	b.WriteString(string(n.Source))
	if n.Number != "" {
		b.WriteString(" ")
		b.WriteString(n.Number)
	}
	b.WriteString("]")
	if !n.Source.Digital() {
		b.WriteString("*")
	}
	return b.String()
}

// Season is one of the four palette seasons.
type Season string

const (
	Winter Season = "winter"
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
)

// AllSeasons lists the four seasons in display order.
var AllSeasons = []Season{Winter, Spring, Summer, Autumn}

// SeasonType subdivides a season.
type SeasonType string

const (
	TypeDark   SeasonType = "dark"
	TypeTrue   SeasonType = "true"
	TypeBright SeasonType = "bright"
	TypeLight  SeasonType = "light"
	TypeSoft   SeasonType = "soft"
)

var seasonTypes = map[Season][]SeasonType{
	Winter: {TypeDark, TypeTrue, TypeBright},
	Spring: {TypeBright, TypeTrue, TypeLight},
	Summer: {TypeLight, TypeTrue, TypeSoft},
	Autumn: {TypeSoft, TypeTrue, TypeDark},
}

// Types returns the season types valid for s.
func (s Season) Types() []SeasonType {
	return slices.Clone(seasonTypes[s])
}

// Valid reports whether s is a known season.
func (s Season) Valid() bool {
	_, ok := seasonTypes[s]
	return ok
}

// Marker tags a good season swatch as a fashion neutral, an accent or a metal.
type Marker string

const (
	MarkerNone    Marker = ""
	MarkerNeutral Marker = "neutral"
	MarkerAccent  Marker = "accent"
	MarkerMetal   Marker = "metal"
)

// Short returns the abbreviated marker used in displays: fn, ca or m.
func (m Marker) Short() string {
	switch m {
	case MarkerNeutral:
		return "fn"
	case MarkerAccent:
		return "ca"
	case MarkerMetal:
		return "m"
	}
	return ""
}

// UnmarshalText accepts both the long and the short marker forms.
func (m *Marker) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "":
		*m = MarkerNone
	case "neutral", "fn":
		*m = MarkerNeutral
	case "accent", "ca":
		*m = MarkerAccent
	case "metal", "m":
		*m = MarkerMetal
	default:
		return fmt.Errorf("unknown colour marker %q", text)
	}
	return nil
}

// SeasonInfo places a colour in one season type.
type SeasonInfo struct {
	Season Season     `json:"season"`
	Type   SeasonType `json:"type"`
	Colour Marker     `json:"colour,omitempty"`
}

// Validate checks the season/type combination.
func (s SeasonInfo) Validate() error {
	if !s.Season.Valid() {
		return fmt.Errorf("unknown season %q", s.Season)
	}
	if !slices.Contains(s.Season.Types(), s.Type) {
		return fmt.Errorf("season type %q is not valid for %s", s.Type, s.Season)
	}
	return nil
}

// Label returns "Bright Winter".
func (s SeasonInfo) Label() string {
	return capitalise(string(s.Type)) + " " + capitalise(string(s.Season))
}

// Display returns "Bright Winter [FN]", omitting the bracket when no marker is set.
func (s SeasonInfo) Display() string {
	if s.Colour == MarkerNone {
		return s.Label()
	}
	return s.Label() + " [" + strings.ToUpper(s.Colour.Short()) + "]"
}

// Seasons lists the season types a colour suits and those it does not.
type Seasons struct {
	Good []SeasonInfo `json:"good,omitempty"`
	Bad  []SeasonInfo `json:"bad,omitempty"`
}

// Entry is one catalogued colour. Entries handed out by a Catalog are copies.
type Entry struct {
	Key     string   `json:"hex"`
	Names   []Name   `json:"names,omitempty"`
	Seasons *Seasons `json:"seasons,omitempty"`

	rgb colour.RGB
	hsl colour.HSL
}

// RGB returns the cached RGB value.
func (e Entry) RGB() colour.RGB { return e.rgb }

// HSL returns the cached HSL value.
func (e Entry) HSL() colour.HSL { return e.hsl }

// Hex returns the display form "#RRGGBB".
func (e Entry) Hex() string { return colour.UpperHex(e.rgb) }

// Has reports whether the entry carries data of the given kind.
func (e Entry) Has(kind Kind) bool {
	switch kind {
	case KindNames:
		return len(e.Names) > 0
	case KindSeasons:
		return e.Seasons != nil
	}
	return false
}

func (e Entry) clone() Entry {
	out := e
	out.Names = slices.Clone(e.Names)
	if e.Seasons != nil {
		out.Seasons = &Seasons{
			Good: slices.Clone(e.Seasons.Good),
			Bad:  slices.Clone(e.Seasons.Bad),
		}
	}
	return out
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
