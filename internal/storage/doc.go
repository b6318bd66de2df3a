package storage

// Package storage provides the persistence layer behind the daemon.
//
// It currently holds:
//   - The user settings blob (discovery patterns + focus-mode window),
//     read-modify-written whole by the API layer.
//   - Per-job display-name customizations, keyed by job label. Entries for
//     vanished jobs are tolerated, never compacted.
//   - An append-only audit log of toggle/run actions.
