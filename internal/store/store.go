// Package store persists per-tab session records.
package store

import (
	"time"

	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// Record is the persisted form of one tab's session.
type Record struct {
	TabID       protocol.TabID `json:"tab_id"`
	Identifier  string         `json:"identifier"`
	SessionID   string         `json:"session_id,omitempty"`
	LastCapture string         `json:"last_capture,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
