package storage

import (
	"context"
	"errors"
	"strings"

	logx "agentdeck/pkg/logx"
)

// Store is the minimal persistence API used by the job service and the API
// layer.
type Store interface {
	GetSettings(ctx context.Context) (Settings, bool, error)
	PutSettings(ctx context.Context, s Settings) error

	GetCustomization(ctx context.Context, label string) (Customization, bool, error)
	PutCustomization(ctx context.Context, label string, c Customization) error
	DeleteCustomization(ctx context.Context, label string) error
	ListCustomizations(ctx context.Context) (map[string]Customization, error)

	AppendAudit(ctx context.Context, e AuditEntry) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
