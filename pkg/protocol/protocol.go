// Package protocol defines the messages exchanged between the session coordinator and
// the page agent.
//
// Messages are JSON objects told apart by their discriminating key:
//
//	{"event":"scrolled"}                        agent → coordinator
//	{"screenshot":"data:image/png;…","tabId":7} coordinator → agent
//	{"identifier":"open"}                       coordinator → agent
//	{"status":"success"}                        either direction, as a reply
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ChannelName is the port name agents dial.
const ChannelName = "swatchwise-agent"

var (
	ErrUnknownMessage = errors.New("protocol: unknown message")
	ErrInvalidMessage = errors.New("protocol: invalid message")
)

// TabID identifies a browser tab.
type TabID int

// MessageType enumerates the message variants.
type MessageType uint8

const (
	MsgEvent MessageType = iota + 1
	MsgScreenshot
	MsgCommand
	MsgResponse
)

func (t MessageType) String() string {
	switch t {
	case MsgEvent:
		return "event"
	case MsgScreenshot:
		return "screenshot"
	case MsgCommand:
		return "command"
	case MsgResponse:
		return "response"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Message is implemented by Event, Screenshot, Command and Response only.
type Message interface {
	Type() MessageType
	validate() error
}

// EventKind names a page event reported by the agent.
type EventKind string

const (
	EventClicked  EventKind = "clicked"
	EventScrolled EventKind = "scrolled"
	EventResized  EventKind = "resized"
	// EventClosed reports that the overlay went away without a close command.
	EventClosed EventKind = "closed"
)

// Recaptures reports whether the event invalidates the current bitmap.
func (k EventKind) Recaptures() bool {
	return k == EventClicked || k == EventScrolled || k == EventResized
}

// Identifier is a lifecycle instruction for the agent.
type Identifier string

const (
	IdentifierOpen  Identifier = "open"
	IdentifierClose Identifier = "close"
)

// Status is the outcome carried by a Response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Event is sent by the agent when the page changes.
type Event struct {
	Event EventKind `json:"event"`
}

func (Event) Type() MessageType { return MsgEvent }

func (m Event) validate() error {
	switch m.Event {
	case EventClicked, EventScrolled, EventResized, EventClosed:
		return nil
	}
	return fmt.Errorf("%w: event %q", ErrInvalidMessage, m.Event)
}

// Screenshot delivers a fresh bitmap reference to the agent.
type Screenshot struct {
	Screenshot string `json:"screenshot"`
	TabID      TabID  `json:"tabId"`
}

func (Screenshot) Type() MessageType { return MsgScreenshot }

func (m Screenshot) validate() error {
	if m.Screenshot == "" {
		return fmt.Errorf("%w: empty screenshot", ErrInvalidMessage)
	}
	return nil
}

// Command instructs the agent to mount or unmount its overlay.
type Command struct {
	Identifier Identifier `json:"identifier"`
}

func (Command) Type() MessageType { return MsgCommand }

func (m Command) validate() error {
	switch m.Identifier {
	case IdentifierOpen, IdentifierClose:
		return nil
	}
	return fmt.Errorf("%w: identifier %q", ErrInvalidMessage, m.Identifier)
}

// Response acknowledges a request.
type Response struct {
	Status Status `json:"status"`
}

func (Response) Type() MessageType { return MsgResponse }

func (m Response) validate() error {
	switch m.Status {
	case StatusSuccess, StatusFailure:
		return nil
	}
	return fmt.Errorf("%w: status %q", ErrInvalidMessage, m.Status)
}

// OK reports whether the response is a success.
func (m Response) OK() bool { return m.Status == StatusSuccess }

// Success and Failure are the two possible responses.
var (
	Success = Response{Status: StatusSuccess}
	Failure = Response{Status: StatusFailure}
)

// Encode validates m and serialises it.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", m.Type(), err)
	}
	return data, nil
}

// Decode parses a frame into exactly one message variant. Frames with no known
// discriminating key, or with more than one, return ErrUnknownMessage. Bad enum values
// return ErrInvalidMessage.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownMessage, err)
	}

	var found []MessageType
	for key, t := range discriminators {
		if _, ok := fields[key]; ok {
			found = append(found, t)
		}
	}
	if len(found) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, bytes.TrimSpace(data))
	}

	var (
		m   Message
		err error
	)
	switch found[0] {
	case MsgEvent:
		var v Event
		err = json.Unmarshal(data, &v)
		m = v
	case MsgScreenshot:
		var v Screenshot
		err = json.Unmarshal(data, &v)
		m = v
	case MsgCommand:
		var v Command
		err = json.Unmarshal(data, &v)
		m = v
	case MsgResponse:
		var v Response
		err = json.Unmarshal(data, &v)
		m = v
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

var discriminators = map[string]MessageType{
	"event":      MsgEvent,
	"screenshot": MsgScreenshot,
	"identifier": MsgCommand,
	"status":     MsgResponse,
}
