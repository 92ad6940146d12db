// Package bus is the in-process message channel between the session coordinator and
// page agents. Frames cross the bus as encoded protocol messages.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

var (
	// ErrNoReceiver is returned when nothing is attached at the other end.
	ErrNoReceiver = errors.New("bus: no receiver")

	// ErrClosed is returned for operations on a closed connection or bus.
	ErrClosed = errors.New("bus: closed")
)

// Handler answers one frame with a reply frame.
type Handler func(ctx context.Context, tab protocol.TabID, frame []byte) ([]byte, error)

// Listener is the coordinator end of a named port.
type Listener struct {
	// Handle receives frames sent by agents.
	Handle Handler
	// Connected is called after an agent dials in. Optional.
	Connected func(tab protocol.TabID)
	// Disconnected is called after an agent connection closes. Optional.
	Disconnected func(tab protocol.TabID)
}

// Bus routes frames between one listener per port name and one agent connection per
// tab. It is safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	listeners map[string]Listener
	conns     map[protocol.TabID]*Conn
	closed    bool
	logger    hclog.Logger
}

// New creates an empty bus.
func New(logger hclog.Logger) *Bus {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Bus{
		listeners: make(map[string]Listener),
		conns:     make(map[protocol.TabID]*Conn),
		logger:    logger.Named("bus"),
	}
}

// Listen attaches l to the port name, replacing any previous listener. The returned
// function detaches it.
func (b *Bus) Listen(name string, l Listener) (func(), error) {
	if l.Handle == nil {
		return nil, fmt.Errorf("listener for %q has no handler", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.listeners[name] = l

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, name)
	}, nil
}

// Dial connects an agent for tab to the port name. Frames the coordinator sends to the
// tab are passed to h. An existing connection for the tab is closed and replaced.
// ErrNoReceiver is returned when no listener is attached to name.
func (b *Bus) Dial(ctx context.Context, name string, tab protocol.TabID, h Handler) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("dial %q: nil handler", name)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	l, ok := b.listeners[name]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: port %q", ErrNoReceiver, name)
	}

	conn := &Conn{
		bus:     b,
		name:    name,
		tab:     tab,
		handler: h,
		done:    make(chan struct{}),
	}
	prev := b.conns[tab]
	b.conns[tab] = conn
	b.mu.Unlock()

	if prev != nil {
		prev.close(false)
	}

	b.logger.Debug("agent connected", "tab", tab, "port", name)
	if l.Connected != nil {
		l.Connected(tab)
	}
	return conn, nil
}

// Connected reports whether an agent connection exists for tab.
func (b *Bus) Connected(tab protocol.TabID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conns[tab]
	return ok
}

// Send delivers frame to the agent of tab and returns its reply.
func (b *Bus) Send(ctx context.Context, tab protocol.TabID, frame []byte) ([]byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	conn, ok := b.conns[tab]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: tab %d", ErrNoReceiver, tab)
	}

	return conn.deliver(ctx, &conn.toAgent, conn.handler, frame)
}

// Broadcast sends frame to every connected agent. The result holds the delivery error
// of each tab that failed.
func (b *Bus) Broadcast(ctx context.Context, frame []byte) map[protocol.TabID]error {
	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	failed := make(map[protocol.TabID]error)
	for _, c := range conns {
		if _, err := c.deliver(ctx, &c.toAgent, c.handler, frame); err != nil {
			failed[c.tab] = err
		}
	}
	return failed
}

// Request encodes msg, sends it to tab and decodes the reply as a Response.
func (b *Bus) Request(ctx context.Context, tab protocol.TabID, msg protocol.Message) (protocol.Response, error) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return protocol.Response{}, err
	}
	reply, err := b.Send(ctx, tab, frame)
	if err != nil {
		return protocol.Response{}, err
	}
	return decodeResponse(reply)
}

// Open reports whether tab has a live agent connection. The coordinator calls it when
// it (re)initialises a tab.
func (b *Bus) Open(_ context.Context, tab protocol.TabID) error {
	if !b.Connected(tab) {
		return fmt.Errorf("%w: tab %d", ErrNoReceiver, tab)
	}
	return nil
}

// Disconnect drops the agent connection of tab, as when its page goes away.
func (b *Bus) Disconnect(tab protocol.TabID) {
	b.mu.Lock()
	conn := b.conns[tab]
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close shuts the bus down and closes every connection.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	conns := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (b *Bus) listener(name string) (Listener, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.listeners[name]
	return l, ok
}

// detach removes c from the connection table if it is still current and notifies the
// listener.
func (b *Bus) detach(c *Conn, notify bool) {
	b.mu.Lock()
	if b.conns[c.tab] == c {
		delete(b.conns, c.tab)
	}
	l, ok := b.listeners[c.name]
	b.mu.Unlock()

	b.logger.Debug("agent disconnected", "tab", c.tab, "port", c.name)
	if notify && ok && l.Disconnected != nil {
		l.Disconnected(c.tab)
	}
}

func decodeResponse(reply []byte) (protocol.Response, error) {
	msg, err := protocol.Decode(reply)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	resp, ok := msg.(protocol.Response)
	if !ok {
		return protocol.Response{}, fmt.Errorf("%w: expected response, got %s", protocol.ErrUnknownMessage, msg.Type())
	}
	return resp, nil
}
