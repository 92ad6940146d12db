// Package session implements the coordinator that keeps each tab's overlay session,
// its captured bitmap and the page agent in step.
package session

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/jmylchreest/swatchwise/internal/store"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

var (
	// ErrRequestRejected is returned when the agent answers a command with a failure.
	ErrRequestRejected = errors.New("session: request rejected by agent")

	// ErrTabRemoved is returned for operations on a tab removed while they ran.
	ErrTabRemoved = errors.New("session: tab removed")
)

// Identifier is the open/closed state of a tab's session.
type Identifier string

const (
	Closed Identifier = "closed"
	Opened Identifier = "opened"
)

// State is the coordinator's view of one tab.
type State struct {
	TabID       protocol.TabID `json:"tab_id"`
	Identifier  Identifier     `json:"identifier"`
	SessionID   string         `json:"session_id,omitempty"`
	LastCapture string         `json:"last_capture,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
	// Stale is set while the tab's channel is known to be lost.
	Stale bool `json:"stale"`
}

func (s State) record() store.Record {
	return store.Record{
		TabID:       s.TabID,
		Identifier:  string(s.Identifier),
		SessionID:   s.SessionID,
		LastCapture: s.LastCapture,
		UpdatedAt:   s.UpdatedAt,
	}
}

func stateFromRecord(r store.Record) State {
	id := Identifier(r.Identifier)
	if id != Opened {
		id = Closed
	}
	return State{
		TabID:       r.TabID,
		Identifier:  id,
		SessionID:   r.SessionID,
		LastCapture: r.LastCapture,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Capturer captures the visible area of a tab as an image data URL.
type Capturer interface {
	CaptureVisible(ctx context.Context, tab protocol.TabID) (string, error)
}

// Messenger is the coordinator end of the tab channels.
type Messenger interface {
	// Open (re)establishes the channel to tab.
	Open(ctx context.Context, tab protocol.TabID) error
	// Request sends msg to tab's agent and waits for its response.
	Request(ctx context.Context, tab protocol.TabID, msg protocol.Message) (protocol.Response, error)
}

// Store persists session records.
type Store interface {
	Load(ctx context.Context, tab protocol.TabID) (store.Record, bool, error)
	Save(ctx context.Context, rec store.Record) error
	Delete(ctx context.Context, tab protocol.TabID) error
	List(ctx context.Context) ([]store.Record, error)
}

// TabStatus is the loading status reported by the host.
type TabStatus string

const (
	StatusLoading  TabStatus = "loading"
	StatusComplete TabStatus = "complete"
)

// TabInfo describes a tab as reported by the host.
type TabInfo struct {
	ID     protocol.TabID `json:"id"`
	URL    string         `json:"url,omitempty"`
	Active bool           `json:"active"`
	Status TabStatus      `json:"status,omitempty"`
}

// EventKind names a host lifecycle event.
type EventKind string

const (
	TabCreated        EventKind = "created"
	TabRemoved        EventKind = "removed"
	TabUpdated        EventKind = "updated"
	TabActivated      EventKind = "activated"
	ActionClicked     EventKind = "action"
	AgentConnected    EventKind = "agent-connected"
	AgentDisconnected EventKind = "agent-disconnected"
)

// TabEvent is a host lifecycle event delivered to Run.
type TabEvent struct {
	Kind EventKind
	Tab  TabInfo
}

// DefaultRestrictedSchemes lists URL schemes whose pages can host no agent.
var DefaultRestrictedSchemes = []string{"chrome"}

func restricted(rawURL string, schemes []string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, strings.TrimSuffix(s, "://")) {
			return true
		}
	}
	return false
}
