package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/swatchwise/internal/store"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

type fakeCapturer struct {
	mu    sync.Mutex
	calls int
	err   error
	// gate, when set, blocks each capture until a value is received.
	gate chan struct{}
	// started is signalled when a capture begins.
	started chan struct{}
}

func (f *fakeCapturer) CaptureVisible(ctx context.Context, tab protocol.TabID) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	err := f.err
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:image/png;base64,capture-%d-%d", tab, n), nil
}

func (f *fakeCapturer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []protocol.Message
	reply    protocol.Response
	err      error
	openErr  error
	openings int
}

func newMessenger() *fakeMessenger {
	return &fakeMessenger{reply: protocol.Success}
}

func (f *fakeMessenger) Open(_ context.Context, _ protocol.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openings++
	return f.openErr
}

func (f *fakeMessenger) Request(_ context.Context, _ protocol.TabID, msg protocol.Message) (protocol.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return protocol.Response{}, f.err
	}
	return f.reply, nil
}

func (f *fakeMessenger) commands(id protocol.Identifier) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if cmd, ok := m.(protocol.Command); ok && cmd.Identifier == id {
			n++
		}
	}
	return n
}

func (f *fakeMessenger) screenshots() []protocol.Screenshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Screenshot
	for _, m := range f.sent {
		if s, ok := m.(protocol.Screenshot); ok {
			out = append(out, s)
		}
	}
	return out
}

type failingStore struct {
	*store.Memory
}

func (failingStore) Save(context.Context, store.Record) error {
	return errors.New("disk full")
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeCapturer, *fakeMessenger, *store.Memory) {
	t.Helper()
	capt := &fakeCapturer{}
	msgr := newMessenger()
	st := store.NewMemory()
	seq := 0
	c := NewCoordinator(capt, msgr, st, Options{
		ResponseTimeout: time.Second,
		NewSessionID: func() string {
			seq++
			return fmt.Sprintf("session-%d", seq)
		},
	})
	return c, capt, msgr, st
}

func activeTab(id protocol.TabID) TabInfo {
	return TabInfo{ID: id, URL: "https://example.com/", Active: true, Status: StatusComplete}
}

func mustState(t *testing.T, c *Coordinator, tab protocol.TabID) State {
	t.Helper()
	s, ok := c.State(tab)
	if !ok {
		t.Fatalf("Expected state for tab %d", tab)
	}
	return s
}

func TestInitialize(t *testing.T) {
	c, _, msgr, st := newTestCoordinator(t)
	ctx := context.Background()

	c.Initialize(ctx, activeTab(1))

	s := mustState(t, c, 1)
	if s.Identifier != Closed || s.LastCapture != "" || s.SessionID != "" {
		t.Errorf("Expected fresh closed state, got %+v", s)
	}
	if msgr.openings != 1 {
		t.Errorf("Expected one channel opening, got %d", msgr.openings)
	}
	if rec, ok, _ := st.Load(ctx, 1); !ok || rec.Identifier != "closed" {
		t.Errorf("Expected persisted closed record, got %+v ok=%v", rec, ok)
	}
}

func TestInitializeSkipsIneligibleTabs(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	tests := []struct {
		name string
		info TabInfo
	}{
		{"inactive", TabInfo{ID: 1, URL: "https://example.com", Status: StatusComplete}},
		{"loading", TabInfo{ID: 2, URL: "https://example.com", Active: true, Status: StatusLoading}},
		{"restricted", TabInfo{ID: 3, URL: "chrome://settings", Active: true, Status: StatusComplete}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.Initialize(ctx, tt.info)
			if _, ok := c.State(tt.info.ID); ok {
				t.Errorf("Expected tab %d to be skipped", tt.info.ID)
			}
		})
	}
}

func TestInitializeMarksStaleChannel(t *testing.T) {
	c, _, msgr, _ := newTestCoordinator(t)
	msgr.openErr = errors.New("no receiver")

	c.Initialize(context.Background(), activeTab(1))

	if s := mustState(t, c, 1); !s.Stale || s.Identifier != Closed {
		t.Errorf("Expected stale closed state, got %+v", s)
	}
}

func TestOpenCloseLifecycle(t *testing.T) {
	c, capt, msgr, st := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))

	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s := mustState(t, c, 1)
	if s.Identifier != Opened || s.SessionID != "session-1" {
		t.Errorf("Expected opened session-1, got %+v", s)
	}
	if s.LastCapture != "data:image/png;base64,capture-1-1" {
		t.Errorf("Unexpected last capture %q", s.LastCapture)
	}
	shots := msgr.screenshots()
	if len(shots) != 1 || shots[0].TabID != 1 || shots[0].Screenshot != s.LastCapture {
		t.Errorf("Expected one pushed screenshot, got %+v", shots)
	}

	if err := c.Close(ctx, 1); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s := mustState(t, c, 1); s.Identifier != Closed {
		t.Errorf("Expected closed, got %s", s.Identifier)
	}
	if capt.count() != 1 {
		t.Errorf("Expected exactly one capture, got %d", capt.count())
	}
	if rec, _, _ := st.Load(ctx, 1); rec.Identifier != "closed" {
		t.Errorf("Expected persisted closed, got %q", rec.Identifier)
	}
}

func TestOpenTwiceSendsOneCreate(t *testing.T) {
	c, capt, msgr, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))

	for i := 0; i < 2; i++ {
		if err := c.Open(ctx, 1); err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
	}

	if n := msgr.commands(protocol.IdentifierOpen); n != 1 {
		t.Errorf("Expected one open command, got %d", n)
	}
	if capt.count() != 1 {
		t.Errorf("Expected one capture, got %d", capt.count())
	}
}

func TestToggle(t *testing.T) {
	c, _, msgr, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))

	if err := c.Toggle(ctx, 1); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if s := mustState(t, c, 1); s.Identifier != Opened {
		t.Fatalf("Expected opened after first toggle, got %s", s.Identifier)
	}
	if err := c.Toggle(ctx, 1); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if s := mustState(t, c, 1); s.Identifier != Closed {
		t.Errorf("Expected closed after second toggle, got %s", s.Identifier)
	}
	if msgr.commands(protocol.IdentifierOpen) != 1 || msgr.commands(protocol.IdentifierClose) != 1 {
		t.Error("Expected one open and one close command")
	}
}

func TestOpenRejectedStaysClosed(t *testing.T) {
	tests := []struct {
		name  string
		reply protocol.Response
		err   error
	}{
		{"failure response", protocol.Failure, nil},
		{"channel error", protocol.Response{}, errors.New("no receiver")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, capt, msgr, _ := newTestCoordinator(t)
			ctx := context.Background()
			c.Initialize(ctx, activeTab(1))
			msgr.reply, msgr.err = tt.reply, tt.err

			if err := c.Open(ctx, 1); err == nil {
				t.Fatal("Expected Open to fail")
			}
			if s := mustState(t, c, 1); s.Identifier != Closed || s.SessionID != "" {
				t.Errorf("Expected closed without session, got %+v", s)
			}
			if capt.count() != 0 {
				t.Errorf("Expected no capture, got %d", capt.count())
			}
		})
	}

	c, _, msgr, _ := newTestCoordinator(t)
	c.Initialize(context.Background(), activeTab(1))
	msgr.reply = protocol.Failure
	if err := c.Open(context.Background(), 1); !errors.Is(err, ErrRequestRejected) {
		t.Errorf("Expected ErrRequestRejected, got %v", err)
	}
}

func TestCloseRejectedStaysOpened(t *testing.T) {
	c, _, msgr, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))
	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	msgr.reply = protocol.Failure
	if err := c.Close(ctx, 1); err == nil {
		t.Fatal("Expected Close to fail")
	}
	if s := mustState(t, c, 1); s.Identifier != Opened {
		t.Errorf("Expected tab to stay opened, got %s", s.Identifier)
	}
}

func TestEventsRecaptureWhileOpened(t *testing.T) {
	c, capt, msgr, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))

	if resp := c.HandleEvent(ctx, 1, protocol.Event{Event: protocol.EventScrolled}); resp.OK() {
		t.Error("Expected failure for event on closed tab")
	}
	if resp := c.HandleEvent(ctx, 42, protocol.Event{Event: protocol.EventScrolled}); resp.OK() {
		t.Error("Expected failure for event on unknown tab")
	}

	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, kind := range []protocol.EventKind{protocol.EventClicked, protocol.EventScrolled, protocol.EventResized, protocol.EventScrolled} {
		if resp := c.HandleEvent(ctx, 1, protocol.Event{Event: kind}); !resp.OK() {
			t.Errorf("Expected success for %s", kind)
		}
	}

	if capt.count() != 5 {
		t.Errorf("Expected 1 initial capture plus 4 recaptures, got %d", capt.count())
	}
	if len(msgr.screenshots()) != 5 {
		t.Errorf("Expected 5 pushed screenshots, got %d", len(msgr.screenshots()))
	}
	if s := mustState(t, c, 1); s.LastCapture != "data:image/png;base64,capture-1-5" {
		t.Errorf("Expected latest capture stored, got %q", s.LastCapture)
	}
}

func TestAgentReportedClose(t *testing.T) {
	c, _, msgr, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))
	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if resp := c.HandleEvent(ctx, 1, protocol.Event{Event: protocol.EventClosed}); !resp.OK() {
		t.Error("Expected success")
	}
	if s := mustState(t, c, 1); s.Identifier != Closed {
		t.Errorf("Expected closed, got %s", s.Identifier)
	}
	if msgr.commands(protocol.IdentifierClose) != 0 {
		t.Error("Agent-reported close must not send a close command")
	}
}

func TestCaptureFailureKeepsLastCapture(t *testing.T) {
	c, capt, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))
	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	before := mustState(t, c, 1).LastCapture

	capt.mu.Lock()
	capt.err = errors.New("capture quota exceeded")
	capt.mu.Unlock()

	c.HandleEvent(ctx, 1, protocol.Event{Event: protocol.EventScrolled})

	s := mustState(t, c, 1)
	if s.LastCapture != before || s.Identifier != Opened {
		t.Errorf("Expected unchanged opened state, got %+v", s)
	}
}

func TestStaleCaptureDiscarded(t *testing.T) {
	c, capt, msgr, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))

	capt.gate = make(chan struct{})
	capt.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- c.Open(ctx, 1) }()

	<-capt.started
	// The tab lock is free while the capture is in flight.
	if err := c.Close(ctx, 1); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	close(capt.gate)

	if err := <-done; err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	s := mustState(t, c, 1)
	if s.Identifier != Closed || s.LastCapture != "" {
		t.Errorf("Expected stale capture to be discarded, got %+v", s)
	}
	if len(msgr.screenshots()) != 0 {
		t.Error("Stale capture must not be pushed")
	}
}

func TestStaleCaptureFromPreviousSession(t *testing.T) {
	c, capt, msgr, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))

	capt.gate = make(chan struct{})
	capt.started = make(chan struct{}, 2)

	first := make(chan error, 1)
	go func() { first <- c.Open(ctx, 1) }()
	<-capt.started

	if err := c.Close(ctx, 1); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	second := make(chan error, 1)
	go func() { second <- c.Open(ctx, 1) }()
	<-capt.started

	close(capt.gate)
	if err := <-first; err != nil {
		t.Fatalf("First open failed: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("Second open failed: %v", err)
	}

	s := mustState(t, c, 1)
	if s.SessionID != "session-2" {
		t.Errorf("Expected session-2, got %s", s.SessionID)
	}
	if len(msgr.screenshots()) != 1 {
		t.Errorf("Expected only the current session's capture to be pushed, got %d", len(msgr.screenshots()))
	}
}

func TestNavigationResetsOpenedTab(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))
	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c.Dispatch(ctx, TabEvent{Kind: TabUpdated, Tab: TabInfo{ID: 1, URL: "https://example.com/a", Active: true, Status: StatusLoading}})
	if s := mustState(t, c, 1); s.Identifier != Opened {
		t.Fatalf("Loading update must not reset, got %s", s.Identifier)
	}

	c.Dispatch(ctx, TabEvent{Kind: TabUpdated, Tab: TabInfo{ID: 1, URL: "https://example.com/a", Active: true, Status: StatusComplete}})
	s := mustState(t, c, 1)
	if s.Identifier != Closed || s.LastCapture != "" {
		t.Errorf("Expected reset after navigation, got %+v", s)
	}
}

func TestActivatedInitialisesOnlyUnknownTabs(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))
	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c.Dispatch(ctx, TabEvent{Kind: TabActivated, Tab: activeTab(1)})
	if s := mustState(t, c, 1); s.Identifier != Opened {
		t.Errorf("Activation must not reset a known tab, got %s", s.Identifier)
	}

	c.Dispatch(ctx, TabEvent{Kind: TabActivated, Tab: activeTab(2)})
	if s := mustState(t, c, 2); s.Identifier != Closed {
		t.Errorf("Expected unknown tab initialised, got %s", s.Identifier)
	}
}

func TestRemove(t *testing.T) {
	c, _, _, st := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(2))
	c.Initialize(ctx, activeTab(1))
	if states := c.States(); len(states) != 2 || states[0].TabID != 1 || states[1].TabID != 2 {
		t.Fatalf("Expected states for tabs 1 and 2 in order, got %+v", states)
	}

	c.Dispatch(ctx, TabEvent{Kind: TabRemoved, Tab: TabInfo{ID: 1}})
	if states := c.States(); len(states) != 1 || states[0].TabID != 2 {
		t.Errorf("Expected only tab 2 left, got %+v", states)
	}

	if _, ok := c.State(1); ok {
		t.Error("Expected in-memory state to be removed")
	}
	if _, ok, _ := st.Load(ctx, 1); ok {
		t.Error("Expected persisted state to be removed")
	}
}

func TestStatesOrderedByTab(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	ids := []protocol.TabID{math.MaxInt, -1, 5}
	for _, id := range ids {
		c.Initialize(ctx, activeTab(id))
	}

	states := c.States()
	want := []protocol.TabID{-1, 5, math.MaxInt}
	if len(states) != len(want) {
		t.Fatalf("Expected %d states, got %d", len(want), len(states))
	}
	for i, s := range states {
		if s.TabID != want[i] {
			t.Errorf("Expected tab %d at %d, got %d", want[i], i, s.TabID)
		}
	}
}

func TestRestoreFromStoreOnAction(t *testing.T) {
	ctx := context.Background()
	capt := &fakeCapturer{}
	msgr := newMessenger()
	st := store.NewMemory()
	if err := st.Save(ctx, store.Record{TabID: 9, Identifier: "opened", SessionID: "old", LastCapture: "data:old"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	c := NewCoordinator(capt, msgr, st, Options{})

	// The persisted state says opened, so the action closes.
	if err := c.Toggle(ctx, 9); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if s := mustState(t, c, 9); s.Identifier != Closed {
		t.Errorf("Expected restored opened tab to close, got %s", s.Identifier)
	}
	if msgr.commands(protocol.IdentifierClose) != 1 || msgr.commands(protocol.IdentifierOpen) != 0 {
		t.Error("Expected a single close command")
	}
	if msgr.openings != 1 {
		t.Errorf("Expected a fresh channel for the restored tab, got %d openings", msgr.openings)
	}
}

func TestActionOnUnknownTabOpens(t *testing.T) {
	c, capt, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.Dispatch(ctx, TabEvent{Kind: ActionClicked, Tab: TabInfo{ID: 5}})

	if s := mustState(t, c, 5); s.Identifier != Opened {
		t.Errorf("Expected opened, got %s", s.Identifier)
	}
	if capt.count() != 1 {
		t.Errorf("Expected one capture, got %d", capt.count())
	}
}

func TestStoreFailuresAreNotFatal(t *testing.T) {
	capt := &fakeCapturer{}
	msgr := newMessenger()
	c := NewCoordinator(capt, msgr, failingStore{store.NewMemory()}, Options{})
	ctx := context.Background()

	c.Initialize(ctx, activeTab(1))
	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed despite store errors: %v", err)
	}
	if s := mustState(t, c, 1); s.Identifier != Opened || s.LastCapture == "" {
		t.Errorf("Expected opened with capture, got %+v", s)
	}
}

func TestAgentReconnectRepushesCapture(t *testing.T) {
	c, _, msgr, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))
	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c.AgentDisconnected(1)
	if s := mustState(t, c, 1); !s.Stale || s.Identifier != Opened {
		t.Errorf("Expected stale channel without transition, got %+v", s)
	}

	c.AgentConnected(ctx, 1)
	if s := mustState(t, c, 1); s.Stale {
		t.Error("Expected channel to be fresh after reconnect")
	}
	if len(msgr.screenshots()) != 2 {
		t.Errorf("Expected capture to be pushed again, got %d pushes", len(msgr.screenshots()))
	}
}

func TestHandleFrame(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	c.Initialize(ctx, activeTab(1))
	if err := c.Open(ctx, 1); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	tests := []struct {
		frame string
		want  string
	}{
		{`{"event":"scrolled"}`, `{"status":"success"}`},
		{`{"identifier":"open"}`, `{"status":"failure"}`},
		{`{"event":"hovered"}`, `{"status":"failure"}`},
		{`garbage`, `{"status":"failure"}`},
	}
	for _, tt := range tests {
		reply, err := c.HandleFrame(ctx, 1, []byte(tt.frame))
		if err != nil {
			t.Fatalf("HandleFrame(%s) failed: %v", tt.frame, err)
		}
		if string(reply) != tt.want {
			t.Errorf("HandleFrame(%s) = %s, want %s", tt.frame, reply, tt.want)
		}
	}
}
