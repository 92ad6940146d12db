package session

import (
	"context"
	"sync"

	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// mailbox queues the events of one tab. push never blocks.
type mailbox struct {
	mu     sync.Mutex
	queue  []TabEvent
	closed bool
	wake   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) push(ev TabEvent) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// next waits for the oldest queued event. It reports false once the mailbox is closed
// and empty.
func (m *mailbox) next() (TabEvent, bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			ev := m.queue[0]
			m.queue[0] = TabEvent{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return ev, true
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return TabEvent{}, false
		}
		<-m.wake
	}
}

// Dispatch applies one host event synchronously.
func (c *Coordinator) Dispatch(ctx context.Context, ev TabEvent) {
	switch ev.Kind {
	case TabCreated:
		c.Initialize(ctx, ev.Tab)
	case TabUpdated:
		if ev.Tab.Status == StatusComplete {
			c.Initialize(ctx, ev.Tab)
		}
	case TabActivated:
		if _, known := c.State(ev.Tab.ID); !known {
			c.Initialize(ctx, ev.Tab)
		}
	case TabRemoved:
		c.Remove(ctx, ev.Tab.ID)
	case ActionClicked:
		if err := c.Toggle(ctx, ev.Tab.ID); err != nil {
			c.logger.Warn("toggle failed", "tab", ev.Tab.ID, "error", err)
		}
	case AgentConnected:
		c.AgentConnected(ctx, ev.Tab.ID)
	case AgentDisconnected:
		c.AgentDisconnected(ev.Tab.ID)
	default:
		c.logger.Warn("unknown tab event", "kind", ev.Kind, "tab", ev.Tab.ID)
	}
}

// Run dispatches events until ctx is cancelled or events is closed. Each tab gets its
// own unbounded mailbox and goroutine, so events for one tab are applied in order and a
// slow tab never holds up the others. Run returns after every mailbox has drained.
func (c *Coordinator) Run(ctx context.Context, events <-chan TabEvent) error {
	var wg sync.WaitGroup
	mailboxes := make(map[protocol.TabID]*mailbox)

	defer func() {
		for _, mb := range mailboxes {
			mb.close()
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			mb, exists := mailboxes[ev.Tab.ID]
			if !exists {
				mb = newMailbox()
				mailboxes[ev.Tab.ID] = mb
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						ev, ok := mb.next()
						if !ok {
							return
						}
						c.Dispatch(ctx, ev)
					}
				}()
			}
			mb.push(ev)

			// A removed tab's mailbox drains and exits; later events start a new one.
			if ev.Kind == TabRemoved {
				mb.close()
				delete(mailboxes, ev.Tab.ID)
			}
		}
	}
}
