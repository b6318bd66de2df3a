package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	HTTP    HTTPConfig    `json:"http"`

	// Launchd locates the per-user supervisor surface: the LaunchAgents
	// directory that is scanned for job descriptors and the launchctl
	// binary used to query/mutate loaded state.
	Launchd LaunchdConfig `json:"launchd"`

	// Discovery filters which descriptor files are inventoried.
	Discovery DiscoveryConfig `json:"discovery"`

	// FocusMode suppresses job notifications inside a daily time window.
	FocusMode FocusModeConfig `json:"focus_mode"`

	Refresh  RefreshConfig   `json:"refresh"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Pprof    PprofConfig     `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"` // nil means enabled
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file"`
}

// ConsoleEnabled reports whether console logging is on (default true).
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

type HTTPConfig struct {
	// Addr defaults to "127.0.0.1:8990". The API is a local presentation
	// boundary; binding beyond loopback is the operator's decision.
	Addr string `json:"addr,omitempty"`

	// Server timeouts as Go duration strings.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

type LaunchdConfig struct {
	// AgentsDir is the watched descriptor directory.
	// Defaults to ~/Library/LaunchAgents.
	AgentsDir string `json:"agents_dir,omitempty"`

	// LaunchctlPath is the supervisor control binary, resolved once at
	// startup and injected into the bridge. Defaults to "launchctl".
	LaunchctlPath string `json:"launchctl_path,omitempty"`

	// OpTimeout bounds every launchctl invocation (Go duration string,
	// default "10s").
	OpTimeout string `json:"op_timeout,omitempty"`
}

type DiscoveryConfig struct {
	// Patterns are label-prefix filters applied to descriptor filenames.
	// Empty means "inventory everything in the directory".
	Patterns []string `json:"patterns,omitempty"`

	// TailLines is the default log tail length (default 25).
	TailLines int `json:"tail_lines,omitempty"`
}

type FocusModeConfig struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"` // "HH:MM"
	End     string `json:"end,omitempty"`   // "HH:MM"
}

type RefreshConfig struct {
	// Interval between background refresh cycles (Go duration string,
	// default "30s"). "0s" disables the background poller; refreshes
	// then happen only on API request or visibility triggers.
	Interval string `json:"interval,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./agentdeck.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the job-event notification pipeline.
// All durations are Go duration strings.
type NotifierConfig struct {
	Enabled     bool   `json:"enabled"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
// Prefer binding to localhost; set a token if you bind wider.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)
}
