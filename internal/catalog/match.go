package catalog

import (
	"fmt"
	"math"

	"github.com/jmylchreest/swatchwise/internal/colour"
)

// Match is the result of a lookup.
type Match struct {
	// Query is the normalised key that was looked up.
	Query string `json:"query"`
	// Entry is the matched catalog entry.
	Entry Entry `json:"entry"`
	// Exact is true when Entry.Key equals Query.
	Exact bool `json:"exact"`
	// Distance is the Euclidean RGB distance between query and entry.
	Distance float64 `json:"distance"`
}

// Distance returns the Euclidean distance between two colours in RGB space.
func Distance(a, b colour.RGB) float64 {
	return math.Sqrt(float64(distanceSq(a, b)))
}

func distanceSq(a, b colour.RGB) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}

// Lookup resolves hex to an entry of the given kind: the entry with the same key when it
// carries that kind, otherwise the nearest entry that does.
func (c *Catalog) Lookup(hex string, kind Kind) (Match, error) {
	if kind != KindNames && kind != KindSeasons {
		return Match{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	rgb, err := colour.ParseHex(hex)
	if err != nil {
		return Match{}, err
	}
	key := rgb.Key()

	if i, ok := c.index[key]; ok && c.entries[i].Has(kind) {
		return Match{Query: key, Entry: c.entries[i].clone(), Exact: true}, nil
	}

	return c.Nearest(rgb, kind)
}

// Nearest returns the entry of the given kind closest to rgb. Ties go to the entry that
// comes first in load order. An exact key hit is reported as Exact.
func (c *Catalog) Nearest(rgb colour.RGB, kind Kind) (Match, error) {
	best, bestDist := -1, math.MaxInt
	for i := range c.entries {
		e := &c.entries[i]
		if !e.Has(kind) {
			continue
		}
		if d := distanceSq(rgb, e.rgb); d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}

	if best < 0 {
		return Match{}, fmt.Errorf("%w %s", ErrNoData, kind)
	}

	return Match{
		Query:    rgb.Key(),
		Entry:    c.entries[best].clone(),
		Exact:    bestDist == 0,
		Distance: math.Sqrt(float64(bestDist)),
	}, nil
}

// Identification pairs the name and season matches for one colour. A nil match means
// the catalog has no data of that kind.
type Identification struct {
	Query   string `json:"query"`
	Name    *Match `json:"name,omitempty"`
	Seasons *Match `json:"seasons,omitempty"`
}

// Identify looks up both kinds for hex.
func (c *Catalog) Identify(hex string) (Identification, error) {
	rgb, err := colour.ParseHex(hex)
	if err != nil {
		return Identification{}, err
	}
	return c.IdentifyRGB(rgb), nil
}

// IdentifyRGB looks up both kinds for rgb.
func (c *Catalog) IdentifyRGB(rgb colour.RGB) Identification {
	id := Identification{Query: rgb.Key()}
	if m, err := c.Lookup(id.Query, KindNames); err == nil {
		id.Name = &m
	}
	if m, err := c.Lookup(id.Query, KindSeasons); err == nil {
		id.Seasons = &m
	}
	return id
}
