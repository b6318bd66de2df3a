// Package customize merges persisted per-job display overrides onto
// discovered jobs. Overrides for vanished job ids are retained; garbage is
// tolerated, not compacted.
package customize

import (
	"context"
	"strings"

	"agentdeck/internal/storage"
	logx "agentdeck/pkg/logx"
)

// Service reads and writes customizations through the storage layer.
// With storage disabled it degrades to a no-op: every lookup misses.
type Service struct {
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log}
}

// All returns the current override map. Storage problems degrade to an
// empty map: a broken overlay must not break the job list.
func (s *Service) All(ctx context.Context) map[string]storage.Customization {
	if s == nil || s.store == nil {
		return nil
	}
	m, err := s.store.ListCustomizations(ctx)
	if err != nil {
		s.log.Warn("customization list failed", logx.Err(err))
		return nil
	}
	return m
}

func (s *Service) Get(ctx context.Context, label string) (storage.Customization, bool, error) {
	if s == nil || s.store == nil {
		return storage.Customization{}, false, nil
	}
	return s.store.GetCustomization(ctx, label)
}

// Set stores a display-name override. An empty name removes the override.
func (s *Service) Set(ctx context.Context, label, displayName string) error {
	if s == nil || s.store == nil {
		return storage.ErrDisabled
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return s.store.DeleteCustomization(ctx, label)
	}
	return s.store.PutCustomization(ctx, label, storage.Customization{DisplayName: displayName})
}

// ApplyName picks the display name for a job: the override when present
// and non-blank, else the derived default.
func ApplyName(defaultName string, overrides map[string]storage.Customization, label string) string {
	if c, ok := overrides[label]; ok {
		if name := strings.TrimSpace(c.DisplayName); name != "" {
			return name
		}
	}
	return defaultName
}
