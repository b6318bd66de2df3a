// Package app assembles the daemon: config, logging, storage, the job
// service, the poller, the notifier and the HTTP boundary.
package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"agentdeck/internal/api"
	"agentdeck/internal/config"
	"agentdeck/internal/customize"
	"agentdeck/internal/eventbus"
	"agentdeck/internal/jobs"
	"agentdeck/internal/notifier"
	pprofsvc "agentdeck/internal/observability/pprof"
	"agentdeck/internal/poller"
	"agentdeck/internal/quiet"
	"agentdeck/internal/storage"
	"agentdeck/pkg/launchctl"
	logx "agentdeck/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store  storage.Store
	bus    eventbus.Bus
	jobs   *jobs.Service
	poll   *poller.Poller
	notify *notifier.Service
	server *api.Server
	pprof  *pprofsvc.Service

	cfgCh chan *config.Config
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	mgr.SetValidator(validate)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", cfgPath, err)
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	bus := eventbus.New()

	// Settings precedence: the persisted blob wins over the config file.
	settings := settingsFromConfig(cfg)
	if store != nil {
		if persisted, ok, serr := store.GetSettings(context.Background()); serr == nil && ok {
			settings = persisted
		}
	}

	opTimeout, _ := config.ParseDurationOrDefault("launchd.op_timeout", cfg.Launchd.OpTimeout, launchctl.DefaultTimeout)
	bridge := launchctl.New(resolveLaunchctl(cfg.Launchd.LaunchctlPath), opTimeout)

	custom := customize.New(store, log.With(logx.String("comp", "customize")))
	jobSvc := jobs.NewService(jobs.Options{
		AgentsDir: agentsDir(cfg.Launchd.AgentsDir),
		Patterns:  settings.Patterns,
		TailLines: cfg.Discovery.TailLines,
	}, bridge, custom, store, log.With(logx.String("comp", "jobs")))

	window := quiet.Window{
		Enabled: settings.FocusMode.Enabled,
		Start:   settings.FocusMode.Start,
		End:     settings.FocusMode.End,
	}
	notify := notifier.New(notifierConfig(cfg), window, nil, bus,
		log.With(logx.String("comp", "notifier")))

	interval, _ := config.ParseDurationOrDefault("refresh.interval", cfg.Refresh.Interval, 30*time.Second)
	if strings.TrimSpace(cfg.Refresh.Interval) == "0s" || strings.TrimSpace(cfg.Refresh.Interval) == "0" {
		interval = 0
	}
	poll := poller.New(jobSvc, bus, log.With(logx.String("comp", "poller")), interval)

	handler := api.NewHandler(jobSvc, custom, notify, store, bus,
		log.With(logx.String("comp", "api")), settings)
	readTO, _ := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	writeTO, _ := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	server := api.NewServer(api.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
	}, api.NewRouter(handler), log.With(logx.String("comp", "api")))

	pp := pprofsvc.New(pprofsvc.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
		Token:   cfg.Pprof.Token,
	}, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		store:  store,
		bus:    bus,
		jobs:   jobSvc,
		poll:   poll,
		notify: notify,
		server: server,
		pprof:  pp,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.notify.Start(ctx)
	if err := a.poll.Start(ctx); err != nil {
		return err
	}
	a.server.Start()
	if err := a.pprof.Start(); err != nil {
		a.log.Warn("pprof disabled", logx.Err(err))
	}

	// Hot-reload: watch the config file and apply ambient changes.
	a.cfgCh = a.cfgMgr.Subscribe(4)
	go a.applyUpdates(ctx)
	go func() { _ = a.cfgMgr.Watch(ctx) }()

	a.log.Info("agentdeck started")
	return nil
}

func (a *App) applyUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok || cfg == nil {
				return
			}
			a.applyConfig(ctx, cfg)
			a.log.Info("config reloaded")
		}
	}
}

// applyConfig applies a reloaded config to the running services.
// Discovery patterns keep settings precedence: a persisted blob (or the
// live PUT settings when persistence is off) wins over the config file,
// mirroring startup.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logSvc.Apply(loggingConfig(cfg))
	a.notify.Apply(notifierConfig(cfg))

	patterns := cfg.Discovery.Patterns
	if a.store != nil {
		if persisted, ok, err := a.store.GetSettings(ctx); err == nil && ok {
			patterns = persisted.Patterns
		}
	} else {
		patterns = a.jobs.Patterns()
	}
	a.jobs.Apply(jobs.Options{
		AgentsDir: agentsDir(cfg.Launchd.AgentsDir),
		Patterns:  patterns,
		TailLines: cfg.Discovery.TailLines,
	})
}

func (a *App) Stop(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_ = a.server.Shutdown(sctx)
	a.pprof.Stop(sctx)
	a.poll.Stop()
	a.notify.Stop()
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logSvc.Close()
	return nil
}

// ---- config plumbing ----

func validate(_ context.Context, cfg *config.Config) error {
	for _, f := range []struct{ path, raw string }{
		{"launchd.op_timeout", cfg.Launchd.OpTimeout},
		{"refresh.interval", cfg.Refresh.Interval},
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
	} {
		if _, err := config.ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	win := quiet.Window{
		Enabled: cfg.FocusMode.Enabled,
		Start:   cfg.FocusMode.Start,
		End:     cfg.FocusMode.End,
	}
	if err := win.Validate(); err != nil {
		return err
	}
	if cfg.Storage != nil {
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

func notifierConfig(cfg *config.Config) notifier.Config {
	nc := notifier.Config{Enabled: true}
	if cfg.Notifier != nil {
		nc.Enabled = cfg.Notifier.Enabled
		nc.RatePerSec = cfg.Notifier.RatePerSec
		if d, err := config.ParseDurationField("notifier.dedup_window", cfg.Notifier.DedupWindow); err == nil {
			nc.DedupWindow = d
		}
	}
	return nc
}

func settingsFromConfig(cfg *config.Config) storage.Settings {
	return storage.Settings{
		Patterns: cfg.Discovery.Patterns,
		FocusMode: storage.FocusMode{
			Enabled: cfg.FocusMode.Enabled,
			Start:   cfg.FocusMode.Start,
			End:     cfg.FocusMode.End,
		},
	}
}

// agentsDir defaults to the per-user LaunchAgents directory.
func agentsDir(configured string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Library/LaunchAgents"
	}
	return filepath.Join(home, "Library", "LaunchAgents")
}

// resolveLaunchctl resolves the control binary once at startup so the
// bridge gets an explicit path instead of a process-wide lookup cache.
func resolveLaunchctl(configured string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	if p, err := exec.LookPath("launchctl"); err == nil {
		return p
	}
	return "launchctl"
}
