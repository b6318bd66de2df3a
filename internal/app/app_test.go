package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"agentdeck/internal/storage"
)

func writeAppConfig(t *testing.T, withStorage bool) string {
	t.Helper()
	dir := t.TempDir()
	storageBlock := ""
	if withStorage {
		storageBlock = fmt.Sprintf(`,
  "storage": {"driver": "file", "path": %q}`, filepath.Join(dir, "state"))
	}
	body := fmt.Sprintf(`{
  "logging": {"level": "error", "console": false, "file": {"enabled": false}},
  "launchd": {"agents_dir": %q},
  "discovery": {"patterns": ["com.fromconfig."]}%s
}`, dir, storageBlock)
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func equalPatterns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewLoadsConfig(t *testing.T) {
	t.Parallel()
	a, err := New(writeAppConfig(t, false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background())

	if got := a.jobs.Patterns(); !equalPatterns(got, []string{"com.fromconfig."}) {
		t.Fatalf("startup patterns = %v", got)
	}
}

func TestReloadKeepsPersistedPatterns(t *testing.T) {
	t.Parallel()
	a, err := New(writeAppConfig(t, true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background())

	ctx := context.Background()
	// Simulate an accepted PUT /api/settings: persist and apply live.
	persisted := storage.Settings{Patterns: []string{"com.persisted."}}
	if err := a.store.PutSettings(ctx, persisted); err != nil {
		t.Fatal(err)
	}
	a.jobs.SetPatterns(persisted.Patterns)

	// An unrelated config edit (logging level) must not swap discovery
	// back to the config-file patterns.
	cfg := *a.cfgMgr.Get()
	cfg.Logging.Level = "debug"
	a.applyConfig(ctx, &cfg)

	if got := a.jobs.Patterns(); !equalPatterns(got, []string{"com.persisted."}) {
		t.Fatalf("patterns after reload = %v, want the persisted blob's", got)
	}
}

func TestReloadKeepsLivePatternsWithoutStore(t *testing.T) {
	t.Parallel()
	a, err := New(writeAppConfig(t, false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background())

	ctx := context.Background()
	a.jobs.SetPatterns([]string{"com.live."})

	cfg := *a.cfgMgr.Get()
	cfg.Logging.Level = "debug"
	a.applyConfig(ctx, &cfg)

	if got := a.jobs.Patterns(); !equalPatterns(got, []string{"com.live."}) {
		t.Fatalf("patterns after reload = %v, want the live settings", got)
	}
}

func TestReloadAppliesConfigPatternsWithoutBlob(t *testing.T) {
	t.Parallel()
	a, err := New(writeAppConfig(t, true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background())

	// No persisted blob: the config file still governs.
	cfg := *a.cfgMgr.Get()
	cfg.Discovery.Patterns = []string{"com.edited."}
	a.applyConfig(context.Background(), &cfg)

	if got := a.jobs.Patterns(); !equalPatterns(got, []string{"com.edited."}) {
		t.Fatalf("patterns after reload = %v, want the edited config's", got)
	}
}
