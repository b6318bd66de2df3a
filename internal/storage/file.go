package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "agentdeck/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.settings.json        (whole-object snapshot)
//   - <prefix>.customizations.json  (whole-map snapshot)
//   - <prefix>.audit.jsonl          (append-only JSON Lines)
//
// Snapshots are rewritten atomically (temp file + rename); the audit log
// only ever appends.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	settingsPath string
	customPath   string

	auditFile *os.File

	settings *Settings
	custom   map[string]Customization
}

type auditRecord struct {
	At      string `json:"at"`
	Action  string `json:"action"`
	Label   string `json:"label"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	TookMS  int64  `json:"took_ms,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		settingsPath: prefix + ".settings.json",
		customPath:   prefix + ".customizations.json",
		custom:       map[string]Customization{},
	}

	// Load snapshots; absence is a fresh state, not an error.
	if b, err := os.ReadFile(s.settingsPath); err == nil {
		var st Settings
		if jerr := json.Unmarshal(b, &st); jerr == nil {
			s.settings = &st
		} else {
			log.Warn("settings snapshot corrupt; starting fresh", logx.Err(jerr))
		}
	}
	if b, err := os.ReadFile(s.customPath); err == nil {
		m := map[string]Customization{}
		if jerr := json.Unmarshal(b, &m); jerr == nil {
			s.custom = m
		} else {
			log.Warn("customization snapshot corrupt; starting fresh", logx.Err(jerr))
		}
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.auditFile = af

	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile != nil {
		err := s.auditFile.Close()
		s.auditFile = nil
		return err
	}
	return nil
}

func (s *fileStore) GetSettings(_ context.Context) (Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return Settings{}, false, nil
	}
	return *s.settings, true, nil
}

func (s *fileStore) PutSettings(_ context.Context, st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSONAtomic(s.settingsPath, st); err != nil {
		return err
	}
	cp := st
	s.settings = &cp
	return nil
}

func (s *fileStore) GetCustomization(_ context.Context, label string) (Customization, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.custom[label]
	return c, ok, nil
}

func (s *fileStore) PutCustomization(_ context.Context, label string, c Customization) error {
	if label == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom[label] = c
	return writeJSONAtomic(s.customPath, s.custom)
}

func (s *fileStore) DeleteCustomization(_ context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.custom[label]; !ok {
		return nil
	}
	delete(s.custom, label)
	return writeJSONAtomic(s.customPath, s.custom)
}

func (s *fileStore) ListCustomizations(_ context.Context) (map[string]Customization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Customization, len(s.custom))
	for k, v := range s.custom {
		out[k] = v
	}
	return out, nil
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	rec := auditRecord{
		At:      e.At.Format(time.RFC3339Nano),
		Action:  e.Action,
		Label:   e.Label,
		OK:      e.OK,
		Message: e.Message,
		TookMS:  e.TookMS,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrDisabled
	}
	_, err = s.auditFile.Write(append(b, '\n'))
	return err
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
