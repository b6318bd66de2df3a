package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const jsonConfig = `{
  "logging": {"level": "debug", "file": {"enabled": false}},
  "http": {"addr": "127.0.0.1:9000"},
  "launchd": {"agents_dir": "/tmp/agents", "op_timeout": "5s"},
  "discovery": {"patterns": ["com.example."], "tail_lines": 50},
  "focus_mode": {"enabled": true, "start": "22:00", "end": "07:00"},
  "refresh": {"interval": "15s"}
}`

const yamlConfig = `
logging:
  level: debug
  file:
    enabled: false
http:
  addr: 127.0.0.1:9000
launchd:
  agents_dir: /tmp/agents
  op_timeout: 5s
discovery:
  patterns:
    - com.example.
  tail_lines: 50
focus_mode:
  enabled: true
  start: "22:00"
  end: "07:00"
refresh:
  interval: 15s
`

func checkParsed(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q", cfg.Logging.Level)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Fatalf("Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Launchd.AgentsDir != "/tmp/agents" || cfg.Launchd.OpTimeout != "5s" {
		t.Fatalf("Launchd = %+v", cfg.Launchd)
	}
	if len(cfg.Discovery.Patterns) != 1 || cfg.Discovery.TailLines != 50 {
		t.Fatalf("Discovery = %+v", cfg.Discovery)
	}
	if !cfg.FocusMode.Enabled || cfg.FocusMode.Start != "22:00" {
		t.Fatalf("FocusMode = %+v", cfg.FocusMode)
	}
}

func TestParseJSONAndYAML(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		m := NewManager(writeConfig(t, "config.json", jsonConfig))
		cfg, err := m.Parse()
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		checkParsed(t, cfg)
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		m := NewManager(writeConfig(t, "config.yaml", yamlConfig))
		cfg, err := m.Parse()
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		checkParsed(t, cfg)
	})
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown field", file: "c.json", body: `{"no_such_section": {}}`},
		{name: "trailing data", file: "c.json", body: `{} {}`},
		{name: "broken json", file: "c.json", body: `{"logging": `},
		{name: "broken yaml", file: "c.yaml", body: "logging:\n  - :\n- bad indent"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeConfig(t, tt.file, tt.body))
			if _, err := m.Parse(); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "absent.json"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadCommitsAndGetReturnsIt(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", jsonConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestHashSkipsRedundantCommits(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", jsonConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}

	// Re-parsing identical content hashes identically; changed content
	// does not.
	again, err := m.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if hashConfig(cfg) != hashConfig(again) {
		t.Fatal("identical configs must hash equal")
	}
	again.HTTP.Addr = "127.0.0.1:9999"
	if hashConfig(cfg) == hashConfig(again) {
		t.Fatal("changed config must hash differently")
	}
}

func TestSubscribePublishDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b) // buffer full: oldest dropped, newest pushed

	got := <-ch
	if got != b {
		t.Fatal("expected the newest config to survive")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra config %p", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	// Unsubscribing twice is a no-op.
	m.Unsubscribe(ch)
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 5s "); err != nil || d.Seconds() != 5 {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("expected error for junk")
	}
	if d, _ := ParseDurationOrDefault("x", "", 7); d != 7 {
		t.Fatalf("default: got %v", d)
	}
}

func TestConsoleEnabledDefault(t *testing.T) {
	t.Parallel()
	var l LoggingConfig
	if !l.ConsoleEnabled() {
		t.Fatal("console defaults to enabled")
	}
	off := false
	l.Console = &off
	if l.ConsoleEnabled() {
		t.Fatal("explicit false must disable console")
	}
}
