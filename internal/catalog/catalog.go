// Package catalog holds the reference colour catalog and resolves colours to their
// closest catalogued names and season swatches.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jmylchreest/swatchwise/internal/colour"
	"github.com/jmylchreest/swatchwise/internal/compression"
	"github.com/jmylchreest/swatchwise/internal/util/filecache"
	httputil "github.com/jmylchreest/swatchwise/internal/util/http"
)

// EmbeddedSource names the catalog compiled into the binary.
const EmbeddedSource = "embedded"

var (
	// ErrInvalidCatalog wraps every validation problem found while loading.
	ErrInvalidCatalog = errors.New("catalog: invalid catalog")

	// ErrNoData is returned when no entry carries the requested kind.
	ErrNoData = errors.New("catalog: no data for kind")

	// ErrUnknownKind is returned for a kind other than names or seasons.
	ErrUnknownKind = errors.New("catalog: unknown kind")
)

//go:embed data/colours.json
var embedded []byte

// Catalog is an immutable, load-ordered set of entries. It is safe for concurrent use.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

// Load parses and validates a JSON catalog.
func Load(r io.Reader) (*Catalog, error) {
	var entries []Entry
	dec := json.NewDecoder(r)
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(entries)
}

// New builds a catalog from entries, validating keys, names and seasons and computing
// the cached RGB and HSL values. Input order is kept as the iteration order.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}

	var problems []error
	for i, e := range entries {
		key, err := colour.NormaliseHex(e.Key)
		if err != nil {
			problems = append(problems, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if prev, dup := c.index[key]; dup {
			problems = append(problems, fmt.Errorf("entry %d: duplicate key %s (first at entry %d)", i, key, prev))
			continue
		}

		if errs := validateEntry(e); len(errs) > 0 {
			for _, err := range errs {
				problems = append(problems, fmt.Errorf("entry %d (%s): %w", i, key, err))
			}
			continue
		}

		e = e.clone()
		e.Key = key
		e.rgb, _ = colour.ParseHex(key)
		e.hsl = colour.RGBToHSL(e.rgb)

		c.index[key] = len(c.entries)
		c.entries = append(c.entries, e)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(problems...))
	}
	return c, nil
}

func validateEntry(e Entry) []error {
	var errs []error
	if len(e.Names) == 0 && e.Seasons == nil {
		errs = append(errs, errors.New("entry has neither names nor seasons"))
	}
	for j, n := range e.Names {
		if strings.TrimSpace(n.Name) == "" {
			errs = append(errs, fmt.Errorf("name %d is empty", j))
		}
		if !n.Source.Valid() {
			errs = append(errs, fmt.Errorf("name %d has unknown source %q", j, n.Source))
		}
	}
	if e.Seasons != nil {
		for j, s := range e.Seasons.Good {
			if err := s.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("good season %d: %w", j, err))
			}
		}
		for j, s := range e.Seasons.Bad {
			if err := s.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("bad season %d: %w", j, err))
			}
		}
	}
	return errs
}

// LoadFile loads a catalog from disk. xz, gzip and bzip2 compressed files are
// decompressed transparently.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 - User-specified catalog path, intended to be read
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	data, err = compression.Decompress(data, path, 0)
	if err != nil {
		return nil, err
	}

	c, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return c, nil
}

// SourceOptions configures LoadSource.
type SourceOptions struct {
	// CacheDir holds downloaded remote catalogs. Empty uses filecache.DefaultDir().
	CacheDir string

	// Refresh forces remote catalogs to be downloaded again.
	Refresh bool

	// AllowInsecure permits plain HTTP and local hosts for remote catalogs.
	AllowInsecure bool
}

// LoadSource loads a catalog from a source string: "" or "embedded" for the built-in
// dataset, an http(s) URL, or a file path.
func LoadSource(ctx context.Context, source string, opts SourceOptions) (*Catalog, error) {
	switch {
	case source == "" || source == EmbeddedSource:
		return Default()
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		path, err := filecache.Get(ctx, source, filecache.Options{
			Dir:     opts.CacheDir,
			Refresh: opts.Refresh,
			Fetch:   httputil.FetchOptions{AllowInsecure: opts.AllowInsecure},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch remote catalog: %w", err)
		}
		return LoadFile(path)
	default:
		return LoadFile(source)
	}
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(bytes.NewReader(embedded))
})

// Default returns the embedded catalog. It is parsed once.
func Default() (*Catalog, error) {
	c, err := loadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded catalog: %w", err)
	}
	return c, nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Get returns the entry with the given hex key.
func (c *Catalog) Get(hex string) (Entry, bool) {
	key, err := colour.NormaliseHex(hex)
	if err != nil {
		return Entry{}, false
	}
	i, ok := c.index[key]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i].clone(), true
}

// Entries returns copies of all entries in load order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

// Filter returns copies of the entries carrying the given kind, in load order.
func (c *Catalog) Filter(kind Kind) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Has(kind) {
			out = append(out, e.clone())
		}
	}
	return out
}

// Write encodes the catalog in its JSON file form, one entry per line.
func (c *Catalog) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "[\n"); err != nil {
		return err
	}
	for i, e := range c.entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", e.Key, err)
		}
		sep := ",\n"
		if i == len(c.entries)-1 {
			sep = "\n"
		}
		if _, err := fmt.Fprintf(w, "  %s%s", line, sep); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}
