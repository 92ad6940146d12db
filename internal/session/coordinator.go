package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// DefaultResponseTimeout bounds every host call.
const DefaultResponseTimeout = 5 * time.Second

// Options configures a Coordinator.
type Options struct {
	// ResponseTimeout bounds each capture, request and store call.
	ResponseTimeout time.Duration
	// RestrictedSchemes lists URL schemes that are never initialised.
	RestrictedSchemes []string
	Logger            hclog.Logger

	// Now and NewSessionID are replaceable for tests.
	Now          func() time.Time
	NewSessionID func() string
}

// Coordinator owns the session state of every tab. Operations on one tab are
// serialised; tabs are independent.
type Coordinator struct {
	capturer  Capturer
	messenger Messenger
	store     Store
	opts      Options
	logger    hclog.Logger

	mu   sync.Mutex
	tabs map[protocol.TabID]*tabSession
}

type tabSession struct {
	id      protocol.TabID
	mu      sync.Mutex
	state   State
	removed bool
}

// NewCoordinator creates a coordinator using the given host collaborators.
func NewCoordinator(capturer Capturer, messenger Messenger, st Store, opts Options) *Coordinator {
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.RestrictedSchemes == nil {
		opts.RestrictedSchemes = DefaultRestrictedSchemes
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}

	return &Coordinator{
		capturer:  capturer,
		messenger: messenger,
		store:     st,
		opts:      opts,
		logger:    opts.Logger.Named("coordinator"),
		tabs:      make(map[protocol.TabID]*tabSession),
	}
}

// State returns a copy of the state of tab.
func (c *Coordinator) State(tab protocol.TabID) (State, bool) {
	c.mu.Lock()
	t, ok := c.tabs[tab]
	c.mu.Unlock()
	if !ok {
		return State{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, true
}

// States returns copies of all known states ordered by tab.
func (c *Coordinator) States() []State {
	c.mu.Lock()
	tabs := make([]*tabSession, 0, len(c.tabs))
	for _, t := range c.tabs {
		tabs = append(tabs, t)
	}
	c.mu.Unlock()

	out := make([]State, 0, len(tabs))
	for _, t := range tabs {
		t.mu.Lock()
		out = append(out, t.state)
		t.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b State) int { return cmp.Compare(a.TabID, b.TabID) })
	return out
}

// Eligible reports whether a tab can host an agent: active, fully loaded and not on a
// restricted scheme.
func (c *Coordinator) Eligible(info TabInfo) bool {
	return info.Active && info.Status == StatusComplete && !restricted(info.URL, c.opts.RestrictedSchemes)
}

// Initialize resets an eligible tab to closed with no capture, opens a fresh channel
// and persists the result. Ineligible tabs are ignored.
func (c *Coordinator) Initialize(ctx context.Context, info TabInfo) {
	if !c.Eligible(info) {
		c.logger.Trace("skipping ineligible tab", "tab", info.ID, "url", info.URL, "status", info.Status)
		return
	}

	c.mu.Lock()
	t, ok := c.tabs[info.ID]
	if !ok {
		t = &tabSession{id: info.ID}
		c.tabs[info.ID] = t
	}
	c.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return
	}

	t.state = State{TabID: info.ID, Identifier: Closed, UpdatedAt: c.opts.Now()}
	c.openChannel(ctx, t)
	c.persist(ctx, t.state)
	c.logger.Debug("tab initialised", "tab", info.ID)
}

// Open moves a closed tab to opened: the agent is told to mount its overlay, a new
// session starts and the first capture is pushed. Opening an opened tab does nothing.
// If the agent does not confirm, the tab stays closed and an error is returned.
func (c *Coordinator) Open(ctx context.Context, tab protocol.TabID) error {
	t, err := c.session(ctx, tab)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.state.Identifier == Opened {
		t.mu.Unlock()
		return nil
	}
	sid, err := c.openLocked(ctx, t)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	c.capture(ctx, t, sid)
	return nil
}

// Close moves an opened tab to closed after the agent confirms unmounting its overlay.
// Closing a closed tab does nothing.
func (c *Coordinator) Close(ctx context.Context, tab protocol.TabID) error {
	t, err := c.session(ctx, tab)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Identifier == Closed {
		return nil
	}
	return c.closeLocked(ctx, t)
}

// Toggle opens a closed tab and closes an opened one. It handles the toolbar action.
func (c *Coordinator) Toggle(ctx context.Context, tab protocol.TabID) error {
	t, err := c.session(ctx, tab)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.state.Identifier == Opened {
		defer t.mu.Unlock()
		return c.closeLocked(ctx, t)
	}
	sid, err := c.openLocked(ctx, t)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	c.capture(ctx, t, sid)
	return nil
}

// HandleEvent applies a page event reported by tab's agent. Recapturing events are
// honoured only while the tab is opened; every one of them triggers a capture.
func (c *Coordinator) HandleEvent(ctx context.Context, tab protocol.TabID, ev protocol.Event) protocol.Response {
	c.mu.Lock()
	t, ok := c.tabs[tab]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("event for unknown tab", "tab", tab, "event", ev.Event)
		return protocol.Failure
	}

	t.mu.Lock()
	if t.removed || t.state.Identifier != Opened {
		t.mu.Unlock()
		if ev.Event == protocol.EventClosed {
			return protocol.Success
		}
		c.logger.Debug("event for closed tab", "tab", tab, "event", ev.Event)
		return protocol.Failure
	}

	if ev.Event == protocol.EventClosed {
		t.state.Identifier = Closed
		t.state.UpdatedAt = c.opts.Now()
		c.persist(ctx, t.state)
		t.mu.Unlock()
		c.logger.Debug("agent reported overlay closed", "tab", tab)
		return protocol.Success
	}

	sid := t.state.SessionID
	t.mu.Unlock()

	c.capture(ctx, t, sid)
	return protocol.Success
}

// HandleFrame decodes an agent frame and answers it with an encoded response. It is
// the listener handler for the agent channel.
func (c *Coordinator) HandleFrame(ctx context.Context, tab protocol.TabID, frame []byte) ([]byte, error) {
	resp := protocol.Failure

	msg, err := protocol.Decode(frame)
	switch {
	case err != nil:
		c.logger.Warn("undecodable agent message", "tab", tab, "error", err)
	default:
		if ev, ok := msg.(protocol.Event); ok {
			resp = c.HandleEvent(ctx, tab, ev)
		} else {
			c.logger.Warn("unexpected agent message", "tab", tab, "type", msg.Type())
		}
	}

	return protocol.Encode(resp)
}

// AgentConnected records a new channel from tab's agent. If the tab is opened its last
// capture is pushed again so the agent can rebuild its mirror.
func (c *Coordinator) AgentConnected(ctx context.Context, tab protocol.TabID) {
	t, err := c.session(ctx, tab)
	if err != nil {
		c.logger.Warn("failed to restore tab on connect", "tab", tab, "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Stale = false

	if t.state.Identifier == Opened && t.state.LastCapture != "" {
		c.push(ctx, t)
	}
}

// AgentDisconnected marks tab's channel stale. The session state is left as is.
func (c *Coordinator) AgentDisconnected(tab protocol.TabID) {
	c.mu.Lock()
	t, ok := c.tabs[tab]
	c.mu.Unlock()
	if !ok {
		return
	}
	t.mu.Lock()
	t.state.Stale = true
	t.mu.Unlock()
	c.logger.Debug("channel lost", "tab", tab)
}

// Remove forgets tab in memory and in the store.
func (c *Coordinator) Remove(ctx context.Context, tab protocol.TabID) {
	c.mu.Lock()
	t, ok := c.tabs[tab]
	delete(c.tabs, tab)
	c.mu.Unlock()

	if ok {
		t.mu.Lock()
		t.removed = true
		t.mu.Unlock()
	}

	sctx, cancel := context.WithTimeout(ctx, c.opts.ResponseTimeout)
	defer cancel()
	if err := c.store.Delete(sctx, tab); err != nil {
		c.logger.Warn("failed to delete persisted state", "tab", tab, "error", err)
	}
	c.logger.Debug("tab removed", "tab", tab)
}

// session returns the in-memory session of tab, restoring it from the store (or
// creating a closed one) when the tab is unknown.
func (c *Coordinator) session(ctx context.Context, tab protocol.TabID) (*tabSession, error) {
	c.mu.Lock()
	t, ok := c.tabs[tab]
	c.mu.Unlock()
	if ok {
		return t, nil
	}

	sctx, cancel := context.WithTimeout(ctx, c.opts.ResponseTimeout)
	rec, found, err := c.store.Load(sctx, tab)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted state for tab %d: %w", tab, err)
	}

	fresh := &tabSession{id: tab, state: State{TabID: tab, Identifier: Closed, UpdatedAt: c.opts.Now()}}
	if found {
		fresh.state = stateFromRecord(rec)
	}

	c.mu.Lock()
	if existing, ok := c.tabs[tab]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.tabs[tab] = fresh
	c.mu.Unlock()

	fresh.mu.Lock()
	defer fresh.mu.Unlock()
	c.openChannel(ctx, fresh)
	if found {
		c.logger.Debug("restored persisted state", "tab", tab, "identifier", fresh.state.Identifier)
	} else {
		c.persist(ctx, fresh.state)
	}
	return fresh, nil
}

// openLocked sends the open command and, on success, starts a new session. It returns
// the new session ID. t.mu must be held.
func (c *Coordinator) openLocked(ctx context.Context, t *tabSession) (string, error) {
	if t.removed {
		return "", ErrTabRemoved
	}
	if err := c.command(ctx, t, protocol.IdentifierOpen); err != nil {
		return "", err
	}

	t.state.Identifier = Opened
	t.state.SessionID = c.opts.NewSessionID()
	t.state.UpdatedAt = c.opts.Now()
	c.persist(ctx, t.state)
	c.logger.Debug("session opened", "tab", t.state.TabID, "session", t.state.SessionID)
	return t.state.SessionID, nil
}

// closeLocked sends the close command and, on success, ends the session. t.mu must be
// held.
func (c *Coordinator) closeLocked(ctx context.Context, t *tabSession) error {
	if t.removed {
		return ErrTabRemoved
	}
	if err := c.command(ctx, t, protocol.IdentifierClose); err != nil {
		return err
	}

	t.state.Identifier = Closed
	t.state.UpdatedAt = c.opts.Now()
	c.persist(ctx, t.state)
	c.logger.Debug("session closed", "tab", t.state.TabID)
	return nil
}

func (c *Coordinator) command(ctx context.Context, t *tabSession, id protocol.Identifier) error {
	resp, err := c.request(ctx, t, protocol.Command{Identifier: id})
	if err != nil {
		return fmt.Errorf("failed to send %s to tab %d: %w", id, t.state.TabID, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: %s on tab %d", ErrRequestRejected, id, t.state.TabID)
	}
	return nil
}

// capture takes a screenshot with the tab unlocked and applies it only if the tab is
// still in session sid.
func (c *Coordinator) capture(ctx context.Context, t *tabSession, sid string) {
	tab := t.id

	cctx, cancel := context.WithTimeout(ctx, c.opts.ResponseTimeout)
	ref, err := c.capturer.CaptureVisible(cctx, tab)
	cancel()
	if err != nil {
		c.logger.Error("capture failed", "tab", tab, "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed || t.state.Identifier != Opened || t.state.SessionID != sid {
		c.logger.Debug("discarding stale capture", "tab", tab, "session", sid)
		return
	}

	t.state.LastCapture = ref
	t.state.UpdatedAt = c.opts.Now()
	c.persist(ctx, t.state)
	c.push(ctx, t)
}

// push sends the last capture to the agent. t.mu must be held.
func (c *Coordinator) push(ctx context.Context, t *tabSession) {
	resp, err := c.request(ctx, t, protocol.Screenshot{Screenshot: t.state.LastCapture, TabID: t.state.TabID})
	switch {
	case err != nil:
		c.logger.Warn("failed to push capture", "tab", t.state.TabID, "error", err)
	case !resp.OK():
		c.logger.Warn("agent rejected capture", "tab", t.state.TabID)
	}
}

// request sends msg with the response timeout, marking the channel stale when it is
// unavailable. t.mu must be held.
func (c *Coordinator) request(ctx context.Context, t *tabSession, msg protocol.Message) (protocol.Response, error) {
	rctx, cancel := context.WithTimeout(ctx, c.opts.ResponseTimeout)
	defer cancel()

	resp, err := c.messenger.Request(rctx, t.state.TabID, msg)
	if err != nil {
		t.state.Stale = true
		return protocol.Response{}, err
	}
	t.state.Stale = false
	return resp, nil
}

// openChannel asks the messenger for a fresh channel. t.mu must be held.
func (c *Coordinator) openChannel(ctx context.Context, t *tabSession) {
	octx, cancel := context.WithTimeout(ctx, c.opts.ResponseTimeout)
	defer cancel()

	if err := c.messenger.Open(octx, t.state.TabID); err != nil {
		t.state.Stale = true
		c.logger.Debug("channel unavailable", "tab", t.state.TabID, "error", err)
		return
	}
	t.state.Stale = false
}

// persist saves s. Failures are logged and never block a transition.
func (c *Coordinator) persist(ctx context.Context, s State) {
	sctx, cancel := context.WithTimeout(ctx, c.opts.ResponseTimeout)
	defer cancel()

	if err := c.store.Save(sctx, s.record()); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("failed to persist state", "tab", s.TabID, "error", err)
	}
}
