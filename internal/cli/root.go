// Package cli provides the command-line interface for swatchwise.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/config"
	"github.com/jmylchreest/swatchwise/internal/sampler"
	"github.com/jmylchreest/swatchwise/internal/session"
	"github.com/jmylchreest/swatchwise/internal/store"
	"github.com/jmylchreest/swatchwise/internal/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath    string
	catalogSource string
	verbose       bool
	quiet         bool
	noColour      bool
}

// app carries what commands share once the persistent flags are parsed.
type app struct {
	opts   globalOptions
	cfg    *config.Config
	logger hclog.Logger
}

// NewRootCmd builds the swatchwise command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "swatchwise",
		Short: "Identify colours by name and season",
		Long: `Swatchwise identifies the colour under the cursor on a web page and tells you
what it is called and which seasonal palettes it belongs to.

Look colours up directly, sample them from screenshots, browse the colour
catalog, drive a browser that shows the identification overlay, or serve
the catalog over HTTP.`,
		Version:      version.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.opts.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/swatchwise/config.yaml)")
	pf.StringVar(&a.opts.catalogSource, "catalog", "", "catalog source: embedded, a file (.json, .json.xz, .json.gz) or an https URL")
	pf.BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVarP(&a.opts.quiet, "quiet", "q", false, "suppress non-error output")
	pf.BoolVar(&a.opts.noColour, "no-colour", false, "disable ANSI colour swatches")

	rootCmd.SetVersionTemplate(version.String() + "\n")

	rootCmd.AddCommand(
		newVersionCmd(),
		newLookupCmd(a),
		newSampleCmd(a),
		newCatalogCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}

// setup builds the logger and loads the configuration.
func (a *app) setup(cmd *cobra.Command) error {
	level := hclog.Info
	switch {
	case a.opts.verbose:
		level = hclog.Debug
	case a.opts.quiet:
		level = hclog.Error
	}
	a.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "swatchwise",
		Output: cmd.ErrOrStderr(),
		Level:  level,
	})

	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.opts.catalogSource != "" {
		cfg.Catalog.Source = a.opts.catalogSource
	}
	a.cfg = cfg

	a.logger.Debug("configuration loaded", "catalog", cfg.Catalog.Source, "store", cfg.Store.Driver)
	return nil
}

// loadCatalog loads the configured catalog.
func (a *app) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cat, err := catalog.LoadSource(ctx, a.cfg.Catalog.Source, catalog.SourceOptions{
		CacheDir:      a.cfg.Catalog.CacheDir,
		Refresh:       a.cfg.Catalog.Refresh,
		AllowInsecure: a.cfg.Catalog.AllowInsecure,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("catalog loaded", "source", a.cfg.Catalog.Source, "entries", cat.Len())
	return cat, nil
}

// newSampler builds the configured sampler.
func (a *app) newSampler() (*sampler.Sampler, error) {
	return sampler.New(a.cfg.Sampler.SurfaceSize, a.cfg.Sampler.Interpolator)
}

// sessionStore is a session store that holds resources until closed.
type sessionStore interface {
	session.Store
	Close() error
}

// openStore opens the configured session store.
func (a *app) openStore() (sessionStore, error) {
	switch a.cfg.Store.Driver {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQLite:
		st, err := store.OpenSQLite(a.cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store %s: %w", a.cfg.Store.Path, err)
		}
		a.logger.Debug("session store opened", "path", a.cfg.Store.Path)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

// ansi reports whether colour swatches should be written to w.
func (a *app) ansi(w io.Writer) bool {
	if a.opts.noColour || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) // #nosec G115 - file descriptors fit in int
}

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print detailed version information including build date, commit hash, and Go version.`,
		// Version needs neither configuration nor a logger.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), version.GetInfo())
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")

	return cmd
}
