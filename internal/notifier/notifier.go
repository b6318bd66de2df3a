// Package notifier turns job events into user-facing notifications.
//
// It subscribes to the event bus, suppresses delivery during the
// focus-mode window, dedups bursts within a TTL window and rate-limits
// the sink. Suppression here never blocks discovery or job operations.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"agentdeck/internal/eventbus"
	"agentdeck/internal/quiet"
	logx "agentdeck/pkg/logx"
)

type Config struct {
	Enabled     bool
	RatePerSec  int
	DedupWindow time.Duration
}

// Notification is one rendered user-facing message.
type Notification struct {
	Title string
	Body  string
	At    time.Time
}

// Sink delivers notifications to wherever the user sees them. The default
// sink writes to the log; the desktop shell substitutes its own.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// LogSink is the fallback sink.
type LogSink struct{ Log logx.Logger }

func (s LogSink) Notify(_ context.Context, n Notification) error {
	s.Log.Info("notification", logx.String("title", n.Title), logx.String("body", n.Body))
	return nil
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	window  quiet.Window
	limiter *rate.Limiter

	sink  Sink
	bus   eventbus.Bus
	log   logx.Logger
	dedup *gocache.Cache

	now func() time.Time // injectable clock for tests

	stopOnce sync.Once
	unsub    func()
	done     chan struct{}
}

func New(cfg Config, window quiet.Window, sink Sink, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sink == nil {
		sink = LogSink{Log: log}
	}
	s := &Service{
		sink: sink,
		bus:  bus,
		log:  log,
		now:  time.Now,
		done: make(chan struct{}),
	}
	s.applyLocked(cfg)
	s.window = window
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 2 * time.Minute
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.dedup = gocache.New(cfg.DedupWindow, 2*cfg.DedupWindow)
}

// SetWindow swaps the focus-mode window (settings updates).
func (s *Service) SetWindow(w quiet.Window) {
	s.mu.Lock()
	s.window = w
	s.mu.Unlock()
}

// Start begins consuming job events. It does not block.
func (s *Service) Start(ctx context.Context) {
	events, unsub := s.bus.Subscribe(32)
	s.unsub = unsub
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.handle(ctx, ev)
			}
		}
	}()
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.unsub != nil {
			s.unsub()
		}
	})
}

func (s *Service) handle(ctx context.Context, ev eventbus.Event) {
	n, key, ok := render(ev)
	if !ok {
		return
	}

	s.mu.Lock()
	enabled := s.cfg.Enabled
	window := s.window
	limiter := s.limiter
	dedup := s.dedup
	s.mu.Unlock()

	if !enabled {
		return
	}
	if quiet.IsQuiet(window, s.now()) {
		s.log.Debug("notification suppressed (focus mode)", logx.String("key", key))
		return
	}
	if _, dup := dedup.Get(key); dup {
		s.log.Debug("notification deduplicated", logx.String("key", key))
		return
	}
	if !limiter.Allow() {
		// The key is deliberately not claimed: a rate-limited event was
		// never delivered, so a later identical one still may be.
		s.log.Debug("notification rate-limited", logx.String("key", key))
		return
	}
	_ = dedup.Add(key, struct{}{}, gocache.DefaultExpiration)

	if err := s.sink.Notify(ctx, n); err != nil {
		s.log.Warn("notification delivery failed", logx.String("key", key), logx.Err(err))
	}
}

// render maps bus events to notifications. Unknown event types are not
// this service's business.
func render(ev eventbus.Event) (Notification, string, bool) {
	switch data := ev.Data.(type) {
	case eventbus.JobStateChange:
		state := "deactivated"
		if data.Loaded {
			state = "activated"
		}
		return Notification{
			Title: data.Name,
			Body:  fmt.Sprintf("Job %s", state),
			At:    ev.Time,
		}, fmt.Sprintf("state:%s:%t", data.Label, data.Loaded), true
	case eventbus.JobRunObserved:
		body := "Run completed"
		if !data.Success {
			body = "Run failed"
			if data.Message != "" {
				body = "Run failed: " + data.Message
			}
		}
		return Notification{
			Title: data.Name,
			Body:  body,
			At:    ev.Time,
		}, fmt.Sprintf("run:%s:%d", data.Label, data.At.Unix()), true
	default:
		return Notification{}, "", false
	}
}
