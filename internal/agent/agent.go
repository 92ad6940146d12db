// Package agent implements the page-side half of the overlay: it keeps a channel to the
// coordinator open, mirrors the pushed capture and identifies the colour under the
// cursor.
package agent

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/swatchwise/internal/bitmap"
	"github.com/jmylchreest/swatchwise/internal/bus"
	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/colour"
	"github.com/jmylchreest/swatchwise/internal/sampler"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// DefaultReconnectDelay is the pause before each reconnect attempt.
const DefaultReconnectDelay = time.Second

// DefaultElementID names the overlay of tab. A reconnected agent finds the overlay it
// mounted before the channel dropped under the same identifier.
func DefaultElementID(tab protocol.TabID) string {
	return "swatchwise-" + strconv.FormatInt(int64(tab), 10)
}

var (
	// ErrNoBitmap is returned by Identify before the first capture arrives.
	ErrNoBitmap = errors.New("agent: no capture mirrored")

	// ErrNotConnected is returned by Notify while the channel is down.
	ErrNotConnected = errors.New("agent: not connected")
)

// Dialer opens the channel to the coordinator. bus.Bus implements it.
type Dialer interface {
	Dial(ctx context.Context, name string, tab protocol.TabID, h bus.Handler) (*bus.Conn, error)
}

// Overlay is the page element the agent draws into. Every call names the element by the
// identifier the agent generated on its current connection.
type Overlay interface {
	Present(ctx context.Context, id string) (bool, error)
	Mount(ctx context.Context, id string) error
	Unmount(ctx context.Context, id string) error
	Render(ctx context.Context, id string, ident Identification) error
}

// Options configures an Agent.
type Options struct {
	// Channel is the port name dialled on the bus.
	Channel string
	// ReconnectDelay is the fixed wait before every reconnect.
	ReconnectDelay time.Duration
	Sampler        *sampler.Sampler
	Logger         hclog.Logger
	// ElementID derives the overlay identifier of a tab. It is recomputed on every
	// connect and must return the same value each time.
	ElementID func(protocol.TabID) string
}

// Identification is the colour under the cursor and what the catalog says about it.
type Identification struct {
	Hex         string             `json:"hex"`
	RGBA        colour.RGBA        `json:"rgba"`
	HSV         colour.HSV         `json:"hsv"`
	Description colour.Description `json:"description"`
	Name        *catalog.Match     `json:"name,omitempty"`
	Seasons     *catalog.Match     `json:"seasons,omitempty"`
}

// Agent is the page agent of one tab.
type Agent struct {
	tab     protocol.TabID
	dialer  Dialer
	catalog *catalog.Catalog
	overlay Overlay
	opts    Options
	logger  hclog.Logger

	mu        sync.RWMutex
	mirror    image.Image
	conn      *bus.Conn
	elementID string
}

// New creates the agent for tab.
func New(tab protocol.TabID, dialer Dialer, cat *catalog.Catalog, overlay Overlay, opts Options) *Agent {
	if opts.Channel == "" {
		opts.Channel = protocol.ChannelName
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Sampler == nil {
		opts.Sampler = &sampler.Sampler{}
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.ElementID == nil {
		opts.ElementID = DefaultElementID
	}

	return &Agent{
		tab:     tab,
		dialer:  dialer,
		catalog: cat,
		overlay: overlay,
		opts:    opts,
		logger:  opts.Logger.Named("agent").With("tab", tab),

		elementID: opts.ElementID(tab),
	}
}

// Run keeps the channel open until ctx is cancelled. A failed dial or a lost channel is
// followed by exactly one reconnect attempt after the fixed delay, indefinitely. The
// coordinator learns about each connection from the bus.
func (a *Agent) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.disconnect()
			return ctx.Err()
		case <-timer.C:
		}

		conn, err := a.connect(ctx)
		if err != nil {
			a.logger.Debug("connect failed", "error", err, "retry_in", a.opts.ReconnectDelay)
			timer.Reset(a.opts.ReconnectDelay)
			continue
		}

		select {
		case <-ctx.Done():
			a.disconnect()
			return ctx.Err()
		case <-conn.Done():
			a.logger.Debug("channel lost", "retry_in", a.opts.ReconnectDelay)
			a.mu.Lock()
			if a.conn == conn {
				a.conn = nil
			}
			a.mu.Unlock()
			timer.Reset(a.opts.ReconnectDelay)
		}
	}
}

func (a *Agent) connect(ctx context.Context) (*bus.Conn, error) {
	// Identifiers are rebuilt before dialling so the first pushed command sees them.
	id := a.opts.ElementID(a.tab)
	a.mu.Lock()
	a.elementID = id
	a.mu.Unlock()

	conn, err := a.dialer.Dial(ctx, a.opts.Channel, a.tab, a.HandleMessage)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	a.logger.Debug("connected", "element", id)
	return conn, nil
}

func (a *Agent) disconnect() {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Connected reports whether the channel is currently open.
func (a *Agent) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn != nil
}

// ElementID returns the overlay identifier rebuilt on the last connect.
func (a *Agent) ElementID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.elementID
}

// HandleMessage answers a frame sent by the coordinator. It is the agent's bus handler.
func (a *Agent) HandleMessage(ctx context.Context, _ protocol.TabID, frame []byte) ([]byte, error) {
	resp := protocol.Failure

	msg, err := protocol.Decode(frame)
	if err != nil {
		a.logger.Warn("undecodable message", "error", err)
		return protocol.Encode(resp)
	}

	switch m := msg.(type) {
	case protocol.Command:
		if err := a.command(ctx, m.Identifier); err != nil {
			a.logger.Error("command failed", "identifier", m.Identifier, "error", err)
		} else {
			resp = protocol.Success
		}
	case protocol.Screenshot:
		if err := a.mirrorCapture(m.Screenshot); err != nil {
			a.logger.Error("failed to mirror capture", "error", err)
		} else {
			resp = protocol.Success
		}
	default:
		a.logger.Warn("unexpected message", "type", msg.Type())
	}

	return protocol.Encode(resp)
}

func (a *Agent) command(ctx context.Context, id protocol.Identifier) error {
	el := a.ElementID()
	present, err := a.overlay.Present(ctx, el)
	if err != nil {
		return fmt.Errorf("failed to query overlay: %w", err)
	}

	switch id {
	case protocol.IdentifierOpen:
		if present {
			return nil
		}
		return a.overlay.Mount(ctx, el)
	case protocol.IdentifierClose:
		if !present {
			return nil
		}
		return a.overlay.Unmount(ctx, el)
	default:
		return fmt.Errorf("%w: identifier %q", protocol.ErrInvalidMessage, id)
	}
}

func (a *Agent) mirrorCapture(ref string) error {
	img, err := bitmap.DecodeDataURL(ref)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.mirror = img
	a.mu.Unlock()
	return nil
}

// Notify reports a page event to the coordinator. The response status is only logged.
func (a *Agent) Notify(ctx context.Context, kind protocol.EventKind) error {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	resp, err := conn.Request(ctx, protocol.Event{Event: kind})
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", kind, err)
	}
	if !resp.OK() {
		a.logger.Debug("event not accepted", "event", kind)
	}
	return nil
}

// Identify samples the mirrored capture at viewport position (x, y) and resolves the
// colour against the catalog.
func (a *Agent) Identify(x, y float64, vp sampler.Viewport) (Identification, error) {
	a.mu.RLock()
	img := a.mirror
	a.mu.RUnlock()
	if img == nil {
		return Identification{}, ErrNoBitmap
	}

	px, err := a.opts.Sampler.Sample(img, x, y, vp.Width, vp.Height)
	if err != nil {
		return Identification{}, err
	}
	return Describe(a.catalog, px), nil
}

// Describe resolves a sampled pixel against cat.
func Describe(cat *catalog.Catalog, px colour.RGBA) Identification {
	rgb := px.RGB()
	hsv := colour.RGBToHSV(rgb)
	matches := cat.IdentifyRGB(rgb)

	return Identification{
		Hex:         rgb.Hex(),
		RGBA:        px,
		HSV:         hsv,
		Description: hsv.Describe(),
		Name:        matches.Name,
		Seasons:     matches.Seasons,
	}
}

// Track identifies the colour at (x, y) and renders it into the overlay.
func (a *Agent) Track(ctx context.Context, x, y float64, vp sampler.Viewport) (Identification, error) {
	ident, err := a.Identify(x, y, vp)
	if err != nil {
		return Identification{}, err
	}
	if err := a.overlay.Render(ctx, a.ElementID(), ident); err != nil {
		return ident, fmt.Errorf("failed to render overlay: %w", err)
	}
	return ident, nil
}
