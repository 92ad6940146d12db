package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/swatchwise/internal/api"
	"github.com/jmylchreest/swatchwise/internal/config"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		listen     string
		noSessions bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog and sampler over HTTP",
		Long: `Serve colour lookups, identification, screenshot sampling and persisted
session summaries over HTTP.

Endpoints:
  GET  /healthz
  GET  /v1/catalog                 catalog statistics
  GET  /v1/catalog/entries?kind=   catalog entries
  GET  /v1/lookup/{hex}?kind=      nearest entry by names or seasons
  GET  /v1/identify/{hex}          conversions, description and both matches
  POST /v1/sample                  multipart image plus x, y, width, height
  GET  /v1/sessions                sessions persisted by watch

Examples:
  swatchwise serve --listen 127.0.0.1:8086
  curl http://127.0.0.1:8086/v1/identify/c0ffee`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			return a.runServe(cmd, noSessions)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from config, 127.0.0.1:8086)")
	cmd.Flags().BoolVar(&noSessions, "no-sessions", false, "do not open the session store")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, noSessions bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := a.loadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	smp, err := a.newSampler()
	if err != nil {
		return err
	}

	opts := api.Options{
		Catalog:        cat,
		Sampler:        smp,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		ReadTimeout:    a.cfg.Server.ReadTimeout,
		WriteTimeout:   a.cfg.Server.WriteTimeout,
		Logger:         a.logger,
	}

	// An in-memory store would always be empty here.
	if !noSessions && a.cfg.Store.Driver == config.StoreSQLite {
		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Sessions = st
	}

	srv, err := api.New(opts)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, a.cfg.Server.Listen)
}
