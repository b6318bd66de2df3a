package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (JSON snapshots + audit jsonl)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Settings is the persisted whole-object settings blob. Callers
// read-modify-write it; there is no partial update protocol.
type Settings struct {
	Patterns  []string  `json:"patterns"`
	FocusMode FocusMode `json:"focus_mode"`
}

type FocusMode struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "HH:MM"
	End     string `json:"end"`   // "HH:MM"
}

// Customization is a per-job display override, keyed by job label.
type Customization struct {
	DisplayName string `json:"display_name,omitempty"`
}

// AuditEntry records one toggle/run action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time
	Action  string // "load", "unload", "run"
	Label   string
	OK      bool
	Message string
	TookMS  int64
}
