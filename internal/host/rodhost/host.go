// Package rodhost runs tabs in a Chrome instance driven through go-rod. It captures the
// visible area of a tab, reports tab lifecycle events to the session coordinator and
// hosts the agent overlay inside the page.
package rodhost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/hashicorp/go-hclog"
	"github.com/ysmood/gson"

	"github.com/jmylchreest/swatchwise/internal/bitmap"
	"github.com/jmylchreest/swatchwise/internal/session"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

const eventBuffer = 64

var (
	// ErrUnknownTab is returned for tabs the host did not open or already closed.
	ErrUnknownTab = errors.New("rodhost: unknown tab")

	// ErrNotStarted is returned before Start or after Close.
	ErrNotStarted = errors.New("rodhost: browser not started")
)

// Config configures the browser host.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome. Empty launches a
	// local one.
	RemoteURL string
	Headless  bool
	// Stealth opens pages with automation fingerprints hidden.
	Stealth bool
	// CaptureFormat is png, jpeg or webp.
	CaptureFormat string
	// CaptureQuality applies to jpeg and webp, 0-100.
	CaptureQuality int
	Logger         hclog.Logger
}

// Host owns the browser and the tabs opened in it.
type Host struct {
	cfg    Config
	format proto.PageCaptureScreenshotFormat
	logger hclog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	lnch     *launcher.Launcher
	pages    map[protocol.TabID]*rod.Page
	targets  map[proto.TargetTargetID]protocol.TabID
	active   protocol.TabID
	nextID   protocol.TabID
	closeErr error
	closed   bool

	// emitMu orders sends on events against closing it.
	emitMu sync.RWMutex
	events chan session.TabEvent
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a host. Call Start to launch or connect to Chrome.
func New(cfg Config) (*Host, error) {
	format, err := ParseCaptureFormat(cfg.CaptureFormat)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		cfg:     cfg,
		format:  format,
		logger:  cfg.Logger.Named("rodhost"),
		pages:   make(map[protocol.TabID]*rod.Page),
		targets: make(map[proto.TargetTargetID]protocol.TabID),
		events:  make(chan session.TabEvent, eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// ParseCaptureFormat maps a configuration name to a screenshot format. The empty name
// selects png.
func ParseCaptureFormat(name string) (proto.PageCaptureScreenshotFormat, error) {
	switch strings.ToLower(name) {
	case "", "png":
		return proto.PageCaptureScreenshotFormatPng, nil
	case "jpeg", "jpg":
		return proto.PageCaptureScreenshotFormatJpeg, nil
	case "webp":
		return proto.PageCaptureScreenshotFormatWebp, nil
	default:
		return "", fmt.Errorf("unsupported capture format %q (expected png, jpeg or webp)", name)
	}
}

// Start launches a local Chrome, or connects to cfg.RemoteURL, and begins watching for
// closed targets.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrNotStarted
	}

	wsURL := h.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(h.cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		wsURL = u
		h.lnch = l
		h.logger.Info("launched local browser", "url", wsURL, "headless", h.cfg.Headless)
	} else {
		h.logger.Info("connecting to remote browser", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		h.cleanupLocked()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	h.browser = b

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		h.logger.Warn("target discovery unavailable", "error", err)
	}
	go b.Context(h.ctx).EachEvent(func(e *proto.TargetTargetDestroyed) {
		h.targetGone(e.TargetID)
	})()

	return nil
}

// Events returns the lifecycle event stream for session.Coordinator.Run. It is closed
// by Close.
func (h *Host) Events() <-chan session.TabEvent {
	return h.events
}

// OpenTab opens url in a new tab, makes it the active tab and waits for it to load.
func (h *Host) OpenTab(ctx context.Context, url string) (protocol.TabID, error) {
	h.mu.Lock()
	b := h.browser
	if b == nil || h.closed {
		h.mu.Unlock()
		return 0, ErrNotStarted
	}
	h.nextID++
	id := h.nextID
	h.mu.Unlock()

	var (
		page *rod.Page
		err  error
	)
	if h.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create tab: %w", err)
	}

	h.mu.Lock()
	h.pages[id] = page
	h.targets[page.TargetID] = id
	h.active = id
	h.mu.Unlock()

	h.emit(session.TabEvent{Kind: session.TabCreated, Tab: session.TabInfo{ID: id, URL: url, Active: true, Status: session.StatusLoading}})
	go h.watchNavigation(id, page)

	if err := page.Context(ctx).Navigate(url); err != nil {
		return id, fmt.Errorf("failed to navigate tab %d to %s: %w", id, url, err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		h.logger.Warn("wait for load failed", "tab", id, "url", url, "error", err)
	}
	return id, nil
}

// watchNavigation reports main-frame navigations and load completion as tab updates.
func (h *Host) watchNavigation(id protocol.TabID, page *rod.Page) {
	page.Context(h.ctx).EachEvent(
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			h.emit(session.TabEvent{Kind: session.TabUpdated, Tab: h.info(id, e.Frame.URL, session.StatusLoading)})
		},
		func(e *proto.PageLoadEventFired) {
			url := ""
			if info, err := page.Info(); err == nil {
				url = info.URL
			}
			h.emit(session.TabEvent{Kind: session.TabUpdated, Tab: h.info(id, url, session.StatusComplete)})
		},
	)()
}

func (h *Host) info(id protocol.TabID, url string, status session.TabStatus) session.TabInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return session.TabInfo{ID: id, URL: url, Active: h.active == id, Status: status}
}

// Activate brings tab to the front.
func (h *Host) Activate(ctx context.Context, tab protocol.TabID) error {
	page, err := h.Page(tab)
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("failed to activate tab %d: %w", tab, err)
	}

	h.mu.Lock()
	h.active = tab
	h.mu.Unlock()

	url := ""
	if info, err := page.Info(); err == nil {
		url = info.URL
	}
	h.emit(session.TabEvent{Kind: session.TabActivated, Tab: session.TabInfo{ID: tab, URL: url, Active: true, Status: session.StatusComplete}})
	return nil
}

// Action reports a click on the toolbar action for tab.
func (h *Host) Action(tab protocol.TabID) {
	h.emit(session.TabEvent{Kind: session.ActionClicked, Tab: session.TabInfo{ID: tab}})
}

// CloseTab closes tab in the browser.
func (h *Host) CloseTab(tab protocol.TabID) error {
	page, err := h.Page(tab)
	if err != nil {
		return err
	}
	if err := page.Close(); err != nil {
		return fmt.Errorf("failed to close tab %d: %w", tab, err)
	}
	h.targetGone(page.TargetID)
	return nil
}

// Page returns the rod page of tab.
func (h *Host) Page(tab protocol.TabID) (*rod.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	page, ok := h.pages[tab]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTab, tab)
	}
	return page, nil
}

// CaptureVisible captures the visible area of tab as an image data URL. It implements
// session.Capturer.
func (h *Host) CaptureVisible(ctx context.Context, tab protocol.TabID) (string, error) {
	page, err := h.Page(tab)
	if err != nil {
		return "", err
	}

	req := &proto.PageCaptureScreenshot{Format: h.format}
	if h.format != proto.PageCaptureScreenshotFormatPng && h.cfg.CaptureQuality > 0 {
		req.Quality = gson.Int(h.cfg.CaptureQuality)
	}

	data, err := page.Context(ctx).Screenshot(false, req)
	if err != nil {
		return "", fmt.Errorf("failed to capture tab %d: %w", tab, err)
	}
	return bitmap.EncodeDataURL(data, string(h.format)), nil
}

func (h *Host) targetGone(target proto.TargetTargetID) {
	h.mu.Lock()
	id, ok := h.targets[target]
	if ok {
		delete(h.targets, target)
		delete(h.pages, id)
	}
	h.mu.Unlock()

	if ok {
		h.logger.Debug("tab closed", "tab", id)
		h.emit(session.TabEvent{Kind: session.TabRemoved, Tab: session.TabInfo{ID: id}})
	}
}

func (h *Host) emit(ev session.TabEvent) {
	h.emitMu.RLock()
	defer h.emitMu.RUnlock()
	if h.ctx.Err() != nil {
		return
	}
	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}

// Close shuts down the browser (or disconnects from a remote one) and ends the event
// stream.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return h.closeErr
	}
	h.closed = true
	h.cancel()
	h.closeErr = h.cleanupLocked()
	err := h.closeErr
	h.mu.Unlock()

	h.emitMu.Lock()
	close(h.events)
	h.emitMu.Unlock()
	return err
}

func (h *Host) cleanupLocked() error {
	var err error
	if h.browser != nil {
		err = h.browser.Close()
		h.browser = nil
	}
	if h.lnch != nil {
		h.lnch.Cleanup()
		h.lnch = nil
	}
	h.pages = make(map[protocol.TabID]*rod.Page)
	h.targets = make(map[proto.TargetTargetID]protocol.TabID)
	return err
}
