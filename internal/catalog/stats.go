package catalog

// Stats summarises a catalog.
type Stats struct {
	Entries     int            `json:"entries"`
	WithNames   int            `json:"with_names"`
	WithSeasons int            `json:"with_seasons"`
	Names       int            `json:"names"`
	BySource    map[Source]int `json:"by_source"`
	// GoodBySeason counts good swatches per "Type Season" label.
	GoodBySeason map[string]int `json:"good_by_season"`
	ByMarker     map[Marker]int `json:"by_marker"`
}

// Stats counts entries per kind, names per source and good swatches per season type.
func (c *Catalog) Stats() Stats {
	s := Stats{
		Entries:      len(c.entries),
		BySource:     make(map[Source]int),
		GoodBySeason: make(map[string]int),
		ByMarker:     make(map[Marker]int),
	}

	for _, e := range c.entries {
		if len(e.Names) > 0 {
			s.WithNames++
		}
		for _, n := range e.Names {
			s.Names++
			s.BySource[n.Source]++
		}
		if e.Seasons == nil {
			continue
		}
		s.WithSeasons++
		for _, g := range e.Seasons.Good {
			s.GoodBySeason[g.Label()]++
			if g.Colour != MarkerNone {
				s.ByMarker[g.Colour]++
			}
		}
	}

	return s
}
