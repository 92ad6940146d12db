package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/swatchwise/internal/agent"
	"github.com/jmylchreest/swatchwise/internal/bus"
	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/host/rodhost"
	"github.com/jmylchreest/swatchwise/internal/session"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// connectPoll is how often watch checks whether a new agent has connected.
const connectPoll = 50 * time.Millisecond

type watchOptions struct {
	open     bool
	headless bool
	remote   string
	format   string
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <url>...",
		Short: "Open pages in a browser with the colour overlay",
		Long: `Open one or more pages in Chrome with the identification overlay.

Every page gets a page agent that mirrors the latest capture of the tab and
identifies the colour under the cursor. Clicking, scrolling and resizing the
page trigger a fresh capture. Identifications are printed as the cursor moves.

Session state survives restarts in the configured store.

Examples:
  # Open a page with a visible browser
  swatchwise watch https://example.com --headless=false

  # Attach to a running Chrome started with --remote-debugging-port=9222
  swatchwise watch https://example.com --remote ws://127.0.0.1:9222/devtools/browser/...

  # Load pages without showing the overlay yet
  swatchwise watch https://example.com --open=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("headless") {
				a.cfg.Browser.Headless = opts.headless
			}
			if opts.remote != "" {
				a.cfg.Browser.Remote = opts.remote
			}
			return a.runWatch(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.open, "open", true, "show the overlay once each page has loaded")
	cmd.Flags().BoolVar(&opts.headless, "headless", true, "run the browser without a window")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "DevTools WebSocket URL of a running Chrome")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatText, "output format: text or json")

	return cmd
}

// watcher ties the browser host, the bus, the coordinator and the page agents of one
// watch run together.
type watcher struct {
	host    *rodhost.Host
	bus     *bus.Bus
	coord   *session.Coordinator
	catalog *catalog.Catalog
	agents  agent.Options
	events  chan session.TabEvent
	conns   *connRelay
	logger  hclog.Logger

	outMu  sync.Mutex
	out    io.Writer
	format string
	ansi   bool
	last   map[protocol.TabID]string
}

func (a *app) runWatch(cmd *cobra.Command, urls []string, opts watchOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}

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

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	host, err := rodhost.New(rodhost.Config{
		RemoteURL:      a.cfg.Browser.Remote,
		Headless:       a.cfg.Browser.Headless,
		Stealth:        a.cfg.Browser.Stealth,
		CaptureFormat:  a.cfg.Browser.CaptureFormat,
		CaptureQuality: a.cfg.Browser.CaptureQuality,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}
	if err := host.Start(ctx); err != nil {
		return err
	}
	defer host.Close()

	b := bus.New(a.logger)
	defer b.Close()

	w := &watcher{
		host:    host,
		bus:     b,
		catalog: cat,
		agents: agent.Options{
			Channel:        a.cfg.Agent.Channel,
			ReconnectDelay: a.cfg.Agent.ReconnectDelay,
			Sampler:        smp,
			Logger:         a.logger,
		},
		events: make(chan session.TabEvent, 64),
		conns:  newConnRelay(b.Connected),
		logger: a.logger,
		out:    cmd.OutOrStdout(),
		format: opts.format,
		ansi:   a.ansi(cmd.OutOrStdout()),
		last:   make(map[protocol.TabID]string),
	}
	w.coord = session.NewCoordinator(host, b, st, session.Options{
		ResponseTimeout:   a.cfg.Coordinator.ResponseTimeout,
		RestrictedSchemes: a.cfg.Coordinator.RestrictedSchemes,
		Logger:            a.logger,
	})

	stopListening, err := b.Listen(a.cfg.Agent.Channel, bus.Listener{
		Handle:       w.coord.HandleFrame,
		Connected:    func(tab protocol.TabID) { w.conns.add(ctx, session.AgentConnected, tab) },
		Disconnected: func(tab protocol.TabID) { w.conns.add(ctx, session.AgentDisconnected, tab) },
	})
	if err != nil {
		return err
	}
	defer stopListening()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		w.pump(ctx)
	}()
	go func() {
		defer wg.Done()
		w.conns.run(ctx, w.events)
	}()
	go func() {
		defer wg.Done()
		if err := w.coord.Run(ctx, w.events); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("coordinator stopped", "error", err)
		}
	}()

	for _, url := range urls {
		if err := w.openPage(ctx, &wg, url, opts.open); err != nil {
			a.logger.Error("failed to open page", "url", url, "error", err)
		}
	}

	a.logger.Info("watching; press Ctrl+C to stop", "pages", len(urls))
	<-ctx.Done()
	wg.Wait()

	for _, s := range w.coord.States() {
		a.logger.Debug("final tab state", "tab", s.TabID, "identifier", s.Identifier, "session", s.SessionID, "stale", s.Stale)
	}
	return nil
}

// pump forwards host lifecycle events to the coordinator.
func (w *watcher) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.host.Events():
			if !ok {
				return
			}
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// connRelay passes bus connection changes to the coordinator in the order the bus
// reports them.
type connRelay struct {
	queue chan session.TabEvent
	live  func(protocol.TabID) bool
}

func newConnRelay(live func(protocol.TabID) bool) *connRelay {
	return &connRelay{queue: make(chan session.TabEvent, 64), live: live}
}

// add queues a change. The bus calls it while dialling and closing connections.
func (r *connRelay) add(ctx context.Context, kind session.EventKind, tab protocol.TabID) {
	select {
	case r.queue <- session.TabEvent{Kind: kind, Tab: session.TabInfo{ID: tab}}:
	case <-ctx.Done():
	}
}

// run forwards queued changes to out until ctx is cancelled. A disconnect is dropped
// once the tab has a newer live connection.
func (r *connRelay) run(ctx context.Context, out chan<- session.TabEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.queue:
			if ev.Kind == session.AgentDisconnected && r.live(ev.Tab.ID) {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// openPage opens url in a new tab, starts its page agent and bridges the page's events
// to it. With open set the overlay is toggled on once the agent is connected.
func (w *watcher) openPage(ctx context.Context, wg *sync.WaitGroup, url string, open bool) error {
	tab, err := w.host.OpenTab(ctx, url)
	if err != nil {
		return err
	}

	overlay, err := w.host.Overlay(tab)
	if err != nil {
		return err
	}
	ag := agent.New(tab, w.bus, w.catalog, overlay, w.agents)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ag.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("agent stopped", "tab", tab, "error", err)
		}
	}()

	if err := w.host.Bridge(ctx, tab, ag, func(ident agent.Identification) { w.print(tab, ident) }); err != nil {
		return err
	}

	if !open {
		return nil
	}
	if err := waitConnected(ctx, ag, w.agents.ReconnectDelay*5); err != nil {
		return fmt.Errorf("agent for tab %d did not connect: %w", tab, err)
	}
	if err := w.host.Activate(ctx, tab); err != nil {
		w.logger.Warn("failed to activate tab", "tab", tab, "error", err)
	}
	w.host.Action(tab)
	w.logger.Info("page opened", "tab", tab, "url", url)
	return nil
}

// waitConnected polls until ag is connected or timeout elapses.
func waitConnected(ctx context.Context, ag *agent.Agent, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * agent.DefaultReconnectDelay
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(connectPoll)
	defer ticker.Stop()
	for !ag.Connected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// print writes an identification unless it repeats the last one of the tab.
func (w *watcher) print(tab protocol.TabID, ident agent.Identification) {
	w.outMu.Lock()
	defer w.outMu.Unlock()

	if w.last[tab] == ident.Hex {
		return
	}
	w.last[tab] = ident.Hex

	if w.format == formatJSON {
		if err := writeJSON(w.out, struct {
			Tab protocol.TabID `json:"tab"`
			agent.Identification
		}{tab, ident}); err != nil {
			w.logger.Warn("failed to write identification", "error", err)
		}
		return
	}
	fmt.Fprintf(w.out, "[tab %d] %s\n", tab, describeLine(ident, w.ansi))
}
