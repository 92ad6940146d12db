package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/compression"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and export the colour catalog",
		Long: `Inspect, validate and export the colour catalog.

The catalog is the embedded dataset unless --catalog or the config file names
another source.`,
	}

	cmd.AddCommand(
		newCatalogInfoCmd(a),
		newCatalogListCmd(a),
		newCatalogValidateCmd(a),
		newCatalogExportCmd(a),
	)

	return cmd
}

func newCatalogInfoCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Summarise the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			cat, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}
			stats := cat.Stats()
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			return writeStats(cmd.OutOrStdout(), a.cfg.Catalog.Source, stats)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text or json")

	return cmd
}

func writeStats(w io.Writer, source string, stats catalog.Stats) error {
	fmt.Fprintf(w, "Source:        %s\n", source)
	fmt.Fprintf(w, "Entries:       %d\n", stats.Entries)
	fmt.Fprintf(w, "With names:    %d (%d names)\n", stats.WithNames, stats.Names)
	fmt.Fprintf(w, "With seasons:  %d\n\n", stats.WithSeasons)

	sources := NewTable([]string{"Source", "Names", "Reference"})
	for _, s := range catalog.Sources {
		sources.AddRow([]string{string(s), strconv.Itoa(stats.BySource[s]), s.URL()})
	}
	if err := sources.Write(w); err != nil {
		return err
	}
	fmt.Fprintln(w)

	labels := make([]string, 0, len(stats.GoodBySeason))
	for label := range stats.GoodBySeason {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	seasons := NewTable([]string{"Season type", "Good swatches"})
	for _, label := range labels {
		seasons.AddRow([]string{label, strconv.Itoa(stats.GoodBySeason[label])})
	}
	return seasons.Write(w)
}

type catalogListOptions struct {
	kind   string
	source string
	season string
	format string
}

func newCatalogListCmd(a *app) *cobra.Command {
	var opts catalogListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		Long: `List catalog entries, optionally filtered.

Examples:
  # Every entry with season data
  swatchwise catalog list --kind seasons

  # Names from the RAL system
  swatchwise catalog list --source RAL

  # Swatches that suit a Bright Winter
  swatchwise catalog list --season "bright winter"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCatalogList(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "only entries with this kind: names or seasons")
	cmd.Flags().StringVar(&opts.source, "source", "", "only entries named by this source (W3C, X11, Crayola, RAL, Pantone)")
	cmd.Flags().StringVar(&opts.season, "season", "", `only entries good for this season type, e.g. "true autumn"`)
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatText, "output format: text or json")

	return cmd
}

func (a *app) runCatalogList(cmd *cobra.Command, opts catalogListOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}

	filter, err := newEntryFilter(opts)
	if err != nil {
		return err
	}

	cat, err := a.loadCatalog(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	entries := make([]catalog.Entry, 0)
	for _, e := range cat.Entries() {
		if filter(e) {
			entries = append(entries, e)
		}
	}

	out := cmd.OutOrStdout()
	if opts.format == formatJSON {
		return writeJSON(out, entries)
	}

	ansi := a.ansi(out)
	table := NewTable([]string{"Hex", "", "Names", "Seasons"})
	table.SetColumnMaxWidth(2, 48)
	table.SetColumnMaxWidth(3, 56)
	for _, e := range entries {
		table.AddRow([]string{e.Hex(), swatch(e.RGB(), ansi), entryNames(e), entrySeasons(e)})
	}
	if err := table.Write(out); err != nil {
		return err
	}
	a.logger.Debug("listed entries", "count", len(entries), "total", cat.Len())
	return nil
}

// newEntryFilter builds the predicate for catalog list.
func newEntryFilter(opts catalogListOptions) (func(catalog.Entry) bool, error) {
	var preds []func(catalog.Entry) bool

	if opts.kind != "" {
		kind, err := catalog.ParseKind(opts.kind)
		if err != nil {
			return nil, err
		}
		preds = append(preds, func(e catalog.Entry) bool { return e.Has(kind) })
	}

	if opts.source != "" {
		idx := slices.IndexFunc(catalog.Sources, func(s catalog.Source) bool {
			return strings.EqualFold(string(s), opts.source)
		})
		if idx < 0 {
			return nil, fmt.Errorf("unknown source %q", opts.source)
		}
		source := catalog.Sources[idx]
		preds = append(preds, func(e catalog.Entry) bool {
			return slices.ContainsFunc(e.Names, func(n catalog.Name) bool { return n.Source == source })
		})
	}

	if opts.season != "" {
		label := strings.ToLower(strings.Join(strings.Fields(opts.season), " "))
		preds = append(preds, func(e catalog.Entry) bool {
			if e.Seasons == nil {
				return false
			}
			return slices.ContainsFunc(e.Seasons.Good, func(s catalog.SeasonInfo) bool {
				return strings.ToLower(s.Label()) == label
			})
		})
	}

	return func(e catalog.Entry) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}, nil
}

func newCatalogValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate catalog files",
		Long: `Validate one or more catalog files, optionally compressed with xz, gzip
or bzip2. Every problem found is reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed []string
			for _, path := range args {
				cat, err := catalog.LoadFile(path)
				if err != nil {
					a.logger.Error("invalid catalog", "path", path)
					fmt.Fprintf(cmd.ErrOrStderr(), "%s:\n  %s\n", path, strings.ReplaceAll(err.Error(), "\n", "\n  "))
					failed = append(failed, path)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d entries)\n", path, cat.Len())
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d catalogs are invalid", len(failed), len(args))
			}
			return nil
		},
	}
}

type catalogExportOptions struct {
	output   string
	compress string
}

func newCatalogExportCmd(a *app) *cobra.Command {
	var opts catalogExportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog as JSON",
		Long: `Write the loaded catalog in its JSON file form, optionally compressed.

Examples:
  # Print the embedded catalog
  swatchwise catalog export

  # Save an xz-compressed copy
  swatchwise catalog export -o colours.json.xz --compress xz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCatalogExport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&opts.compress, "compress", "", "compression: none, xz or gz (default from the output extension)")

	return cmd
}

func (a *app) runCatalogExport(cmd *cobra.Command, opts catalogExportOptions) error {
	format, err := compression.ParseFormat(opts.compress)
	if err != nil {
		return err
	}
	if opts.compress == "" && opts.output != "" {
		format = compression.Detect(nil, opts.output)
		if format == compression.Bzip2 {
			return errors.New("bzip2 output is not supported; use xz or gz")
		}
	}

	cat, err := a.loadCatalog(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	var buf bytes.Buffer
	if err := cat.Write(&buf); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	data, err := compression.Compress(buf.Bytes(), format)
	if err != nil {
		return err
	}

	if opts.output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil { // #nosec G306 - Catalog exports are not secret
		return fmt.Errorf("failed to write %s: %w", opts.output, err)
	}
	a.logger.Info("catalog exported", "path", opts.output, "entries", cat.Len(), "compression", string(format), "bytes", len(data))
	return nil
}
