package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmylchreest/swatchwise/internal/colour"
	"github.com/jmylchreest/swatchwise/internal/compression"
)

const smallCatalog = `[
  {"hex":"000000","names":[{"name":"Black","source":"X11"}],"seasons":{"good":[{"season":"winter","type":"bright","colour":"fn"}]}},
  {"hex":"FF0000","names":[{"name":"Red","source":"W3C"}]},
  {"hex":"#00ff00","seasons":{"bad":[{"season":"summer","type":"soft"}]}}
]`

func mustNew(t *testing.T, entries []Entry) *Catalog {
	t.Helper()
	c, err := New(entries)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func named(key, name string) Entry {
	return Entry{Key: key, Names: []Name{{Name: name, Source: SourceX11}}}
}

func TestLoadNormalisesKeys(t *testing.T) {
	c, err := Load(strings.NewReader(smallCatalog))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", c.Len())
	}

	e, ok := c.Get("#FF0000")
	if !ok {
		t.Fatal("Expected to find ff0000")
	}
	if e.Key != "ff0000" {
		t.Errorf("Expected normalised key ff0000, got %s", e.Key)
	}
	if e.RGB() != (colour.RGB{R: 255}) {
		t.Errorf("Unexpected cached RGB %v", e.RGB())
	}
	if e.HSL() != (colour.HSL{H: 0, S: 100, L: 50}) {
		t.Errorf("Unexpected cached HSL %v", e.HSL())
	}

	black, _ := c.Get("000000")
	if got := black.Seasons.Good[0].Colour; got != MarkerNeutral {
		t.Errorf("Expected short marker fn to decode as neutral, got %q", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"duplicate key", `[{"hex":"000000","names":[{"name":"A","source":"X11"}]},{"hex":"#000","names":[{"name":"B","source":"X11"}]}]`, "duplicate key"},
		{"malformed key", `[{"hex":"00000","names":[{"name":"A","source":"X11"}]}]`, "malformed hex"},
		{"empty name", `[{"hex":"000000","names":[{"name":" ","source":"X11"}]}]`, "is empty"},
		{"unknown source", `[{"hex":"000000","names":[{"name":"A","source":"Dulux"}]}]`, "unknown source"},
		{"bad season type", `[{"hex":"000000","seasons":{"good":[{"season":"winter","type":"soft"}]}}]`, "not valid for winter"},
		{"unknown season", `[{"hex":"000000","seasons":{"good":[{"season":"monsoon","type":"true"}]}}]`, "unknown season"},
		{"empty entry", `[{"hex":"000000"}]`, "neither names nor seasons"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.json))
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("Expected ErrInvalidCatalog, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %q, got %v", tt.want, err)
			}
		})
	}

	if _, err := Load(strings.NewReader(`[{"hex":"000000","seasons":{"good":[{"season":"winter","type":"true","colour":"gold"}]}}]`)); err == nil {
		t.Error("Expected unknown marker to fail")
	}
}

func TestLookupExact(t *testing.T) {
	c := mustNew(t, []Entry{named("000000", "Black"), named("ffffff", "White")})

	m, err := c.Lookup("#000000", KindNames)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !m.Exact || m.Entry.Key != "000000" || m.Distance != 0 {
		t.Errorf("Expected exact match on 000000, got %+v", m)
	}
}

func TestLookupNearestTieGoesToFirst(t *testing.T) {
	c := mustNew(t, []Entry{named("020202", "Two"), named("000000", "Zero")})

	m, err := c.Lookup("010101", KindNames)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if m.Exact {
		t.Error("Expected non-exact match")
	}
	if m.Entry.Key != "020202" {
		t.Errorf("Expected tie to resolve to first entry 020202, got %s", m.Entry.Key)
	}
}

func TestLookupSkipsEntriesWithoutKind(t *testing.T) {
	c, err := Load(strings.NewReader(smallCatalog))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// 00ff00 has only seasons, so a name lookup must fall through to the nearest named entry.
	m, err := c.Lookup("00ff00", KindNames)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if m.Exact || m.Entry.Key == "00ff00" {
		t.Errorf("Expected a non-exact named match, got %+v", m)
	}
}

func TestLookupErrors(t *testing.T) {
	c := mustNew(t, []Entry{named("000000", "Black")})

	if _, err := c.Lookup("zzz", KindNames); !errors.Is(err, colour.ErrMalformedHex) {
		t.Errorf("Expected ErrMalformedHex, got %v", err)
	}
	if _, err := c.Lookup("000000", "shades"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
	if _, err := c.Lookup("000000", KindSeasons); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

func TestNearestIsMinimal(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	queries := []colour.RGB{{R: 18, G: 52, B: 86}, {R: 200, G: 10, B: 99}, {R: 254}, {R: 1, G: 1, B: 1}}
	for _, q := range queries {
		for _, kind := range []Kind{KindNames, KindSeasons} {
			m, err := c.Nearest(q, kind)
			if err != nil {
				t.Fatalf("Nearest(%v, %s) failed: %v", q, kind, err)
			}
			for _, e := range c.Filter(kind) {
				if Distance(q, e.RGB()) < m.Distance {
					t.Fatalf("Nearest(%v, %s) = %s but %s is closer", q, kind, m.Entry.Key, e.Key)
				}
			}
		}
	}
}

func TestDistance(t *testing.T) {
	a := colour.RGB{R: 10, G: 20, B: 30}
	b := colour.RGB{R: 13, G: 24, B: 30}

	if Distance(a, b) != 5 {
		t.Errorf("Expected distance 5, got %v", Distance(a, b))
	}
	if Distance(a, b) != Distance(b, a) {
		t.Error("Distance is not symmetric")
	}
	if Distance(a, a) != 0 {
		t.Error("Distance to self is not zero")
	}
}

func TestDefaultCatalogScenarios(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	black, err := c.Lookup("000000", KindNames)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !black.Exact {
		t.Error("Expected exact match for 000000")
	}
	hasBlack := false
	for _, n := range black.Entry.Names {
		if n.Name == "Black" {
			hasBlack = true
		}
	}
	if !hasBlack {
		t.Errorf("Expected a Black name, got %+v", black.Entry.Names)
	}

	near, err := c.Lookup("010101", KindSeasons)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if near.Exact || near.Entry.Key != "000000" {
		t.Errorf("Expected non-exact 000000, got %+v", near)
	}

	red, err := c.Lookup("fe0000", KindNames)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if red.Entry.Key != "ff0000" {
		t.Errorf("Expected fe0000 to resolve to ff0000, got %s", red.Entry.Key)
	}
}

func TestDefaultCatalogTiesFollowFileOrder(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	tests := []struct {
		hex  string
		kind Kind
		want string
	}{
		// Equidistant from 927549 and 85754e.
		{"898645", KindNames, "927549"},
		// Equidistant from f9bf11 and f9be12.
		{"e1b205", KindSeasons, "f9bf11"},
	}

	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			m, err := c.Lookup(tt.hex, tt.kind)
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if m.Exact || m.Entry.Key != tt.want {
				t.Errorf("Expected non-exact %s, got %+v", tt.want, m)
			}
		})
	}
}

func TestEntriesAreCopies(t *testing.T) {
	c := mustNew(t, []Entry{named("000000", "Black")})

	e, _ := c.Get("000000")
	e.Names[0].Name = "Changed"

	again, _ := c.Get("000000")
	if again.Names[0].Name != "Black" {
		t.Error("Catalog entry was mutated through a returned copy")
	}
}

func TestLoadFileCompressed(t *testing.T) {
	dir := t.TempDir()

	for _, format := range []compression.Format{compression.None, compression.Xz, compression.Gzip} {
		t.Run(string(format), func(t *testing.T) {
			data, err := compression.Compress([]byte(smallCatalog), format)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			path := filepath.Join(dir, "colours.json"+map[compression.Format]string{compression.Xz: ".xz", compression.Gzip: ".gz"}[format])
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}

			c, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			if c.Len() != 3 {
				t.Errorf("Expected 3 entries, got %d", c.Len())
			}
		})
	}
}

func TestLoadSourceRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(smallCatalog))
	}))
	defer server.Close()

	c, err := LoadSource(context.Background(), server.URL+"/colours.json", SourceOptions{
		CacheDir:      t.TempDir(),
		AllowInsecure: true,
	})
	if err != nil {
		t.Fatalf("LoadSource failed: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", c.Len())
	}

	if _, err := LoadSource(context.Background(), server.URL+"/colours.json", SourceOptions{CacheDir: t.TempDir()}); err == nil {
		t.Error("Expected insecure remote source to be rejected")
	}
}

func TestLoadSourceEmbedded(t *testing.T) {
	c, err := LoadSource(context.Background(), EmbeddedSource, SourceOptions{})
	if err != nil {
		t.Fatalf("LoadSource failed: %v", err)
	}
	d, _ := Default()
	if c != d {
		t.Error("Expected embedded source to return the shared default catalog")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	c, err := Load(strings.NewReader(smallCatalog))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var b strings.Builder
	if err := c.Write(&b); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	again, err := Load(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Reload failed: %v\n%s", err, b.String())
	}
	if again.Len() != c.Len() {
		t.Errorf("Expected %d entries after reload, got %d", c.Len(), again.Len())
	}
}

func TestDisplay(t *testing.T) {
	if got := (Name{Name: "Pure White", Source: SourceRAL, Number: "9010"}).Display(); got != "Pure White [RAL 9010]*" {
		t.Errorf("Unexpected name display %q", got)
	}
	if got := (Name{Name: "White", Source: SourceW3C}).Display(); got != "White [W3C]" {
		t.Errorf("Unexpected name display %q", got)
	}
	if got := (SeasonInfo{Season: Winter, Type: TypeBright, Colour: MarkerNeutral}).Display(); got != "Bright Winter [FN]" {
		t.Errorf("Unexpected season display %q", got)
	}
	if got := (SeasonInfo{Season: Autumn, Type: TypeSoft}).Display(); got != "Soft Autumn" {
		t.Errorf("Unexpected season display %q", got)
	}
}

func TestStats(t *testing.T) {
	c, err := Load(strings.NewReader(smallCatalog))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	s := c.Stats()
	if s.Entries != 3 || s.WithNames != 2 || s.WithSeasons != 2 {
		t.Errorf("Unexpected counts %+v", s)
	}
	if s.BySource[SourceX11] != 1 || s.BySource[SourceW3C] != 1 {
		t.Errorf("Unexpected source counts %v", s.BySource)
	}
	if s.GoodBySeason["Bright Winter"] != 1 {
		t.Errorf("Unexpected season counts %v", s.GoodBySeason)
	}
}

func TestIdentify(t *testing.T) {
	c, err := Load(strings.NewReader(smallCatalog))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	id, err := c.Identify("#010101")
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if id.Name == nil || id.Name.Entry.Key != "000000" {
		t.Errorf("Unexpected name match %+v", id.Name)
	}
	if id.Seasons == nil || id.Seasons.Entry.Key != "000000" {
		t.Errorf("Unexpected season match %+v", id.Seasons)
	}
}
