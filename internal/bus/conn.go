package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// Conn is an agent's connection to a port.
type Conn struct {
	bus     *Bus
	name    string
	tab     protocol.TabID
	handler Handler

	// Deliveries are serialised per direction so each side sees frames in order.
	toAgent   sync.Mutex
	fromAgent sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Tab returns the tab the connection belongs to.
func (c *Conn) Tab() protocol.TabID { return c.tab }

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send delivers frame to the port's listener and returns its reply.
func (c *Conn) Send(ctx context.Context, frame []byte) ([]byte, error) {
	l, ok := c.bus.listener(c.name)
	if !ok {
		return nil, fmt.Errorf("%w: port %q", ErrNoReceiver, c.name)
	}
	return c.deliver(ctx, &c.fromAgent, l.Handle, frame)
}

// Request encodes msg, sends it to the listener and decodes the reply.
func (c *Conn) Request(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return protocol.Response{}, err
	}
	reply, err := c.Send(ctx, frame)
	if err != nil {
		return protocol.Response{}, err
	}
	return decodeResponse(reply)
}

// Close closes the connection and notifies the listener.
func (c *Conn) Close() {
	c.close(true)
}

func (c *Conn) close(notify bool) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.bus.detach(c, notify)
	})
}

func (c *Conn) closedErr() error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: tab %d", ErrClosed, c.tab)
	default:
		return nil
	}
}

// deliver returns when ctx ends or the connection closes, even if h is still running.
func (c *Conn) deliver(ctx context.Context, mu *sync.Mutex, h Handler, frame []byte) ([]byte, error) {
	if err := c.closedErr(); err != nil {
		return nil, err
	}

	type result struct {
		reply []byte
		err   error
	}
	out := make(chan result, 1)

	go func() {
		mu.Lock()
		defer mu.Unlock()
		if err := c.closedErr(); err != nil {
			out <- result{err: err}
			return
		}
		// Handlers receive their own copy of the frame.
		reply, err := h(ctx, c.tab, append([]byte(nil), frame...))
		out <- result{reply: reply, err: err}
	}()

	select {
	case r := <-out:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("%w: tab %d", ErrClosed, c.tab)
	}
}
