package cli

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/alitto/pond"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/swatchwise/internal/catalog"
)

type lookupOptions struct {
	kinds   kindsValue
	format  string
	workers int
}

func newLookupCmd(a *app) *cobra.Command {
	opts := lookupOptions{kinds: kindsValue{catalog.KindNames, catalog.KindSeasons}}

	cmd := &cobra.Command{
		Use:   "lookup <hex>...",
		Short: "Find the catalog entries for colours",
		Long: `Look up one or more hex colours in the catalog.

Each colour is matched exactly when the catalog has it, otherwise the nearest
entry by RGB distance is reported. Names and seasons are looked up
independently: a colour may match one entry by name and another by season.

Examples:
  # Names and seasons for pure red
  swatchwise lookup ff0000

  # Short form, seasons only
  swatchwise lookup '#fff' --kind seasons

  # Many colours as JSON
  swatchwise lookup 1a2b3c 808080 c0ffee --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLookup(cmd, args, opts)
		},
	}

	cmd.Flags().VarP(&opts.kinds, "kind", "k", "what to look up: names, seasons or all")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatText, "output format: text or json")
	cmd.Flags().IntVar(&opts.workers, "workers", runtime.NumCPU(), "number of parallel lookups")

	return cmd
}

// lookupResult is the outcome of one input colour.
type lookupResult struct {
	Input   string         `json:"input"`
	Name    *catalog.Match `json:"name,omitempty"`
	Seasons *catalog.Match `json:"seasons,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (r lookupResult) match(kind catalog.Kind) *catalog.Match {
	if kind == catalog.KindSeasons {
		return r.Seasons
	}
	return r.Name
}

func (a *app) runLookup(cmd *cobra.Command, inputs []string, opts lookupOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}

	cat, err := a.loadCatalog(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	results := lookupAll(cat, inputs, opts.kinds, opts.workers, a.logger)

	out := cmd.OutOrStdout()
	if opts.format == formatJSON {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		ansi := a.ansi(out)
		table := NewTable([]string{"Input", "", "Kind", "Match", "Details"})
		table.SetColumnMaxWidth(4, 72)
		for _, r := range results {
			if r.Error != "" {
				table.AddRow([]string{r.Input, "", "", "error", r.Error})
				continue
			}
			for _, kind := range opts.kinds {
				m := r.match(kind)
				if m == nil {
					table.AddRow([]string{r.Input, "", string(kind), "no data"})
					continue
				}
				table.AddRow([]string{r.Input, swatch(m.Entry.RGB(), ansi), string(kind), matchTarget(*m), matchDetail(*m, kind)})
			}
		}
		if err := table.Write(out); err != nil {
			return err
		}
	}

	for _, r := range results {
		if r.Error != "" {
			return errors.New("some colours could not be looked up")
		}
	}
	return nil
}

// lookupAll resolves inputs on a bounded worker pool. Results keep the input order.
func lookupAll(cat *catalog.Catalog, inputs []string, kinds []catalog.Kind, workers int, logger hclog.Logger) []lookupResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]lookupResult, len(inputs))
	pool := pond.New(workers, len(inputs), pond.MinWorkers(1), pond.PanicHandler(func(p interface{}) {
		logger.Error("lookup task panicked", "panic", p)
	}))

	for i, input := range inputs {
		pool.Submit(func() {
			results[i] = lookupOne(cat, input, kinds)
		})
	}
	pool.StopAndWait()

	if failed := pool.FailedTasks(); failed > 0 {
		logger.Warn("lookups failed", "count", failed)
	}
	return results
}

func lookupOne(cat *catalog.Catalog, input string, kinds []catalog.Kind) lookupResult {
	r := lookupResult{Input: input}
	for _, kind := range kinds {
		m, err := cat.Lookup(input, kind)
		switch {
		case err == nil:
			if kind == catalog.KindSeasons {
				r.Seasons = &m
			} else {
				r.Name = &m
			}
		case errors.Is(err, catalog.ErrNoData):
			// Reported as "no data" for this kind only.
		default:
			r.Error = err.Error()
			return r
		}
	}
	return r
}
