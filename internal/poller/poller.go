// Package poller drives periodic job refreshes. The supervisor offers no
// change-notification API, so state is re-derived by polling; consecutive
// cycles are diffed to synthesize job events for the notifier.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agentdeck/internal/eventbus"
	"agentdeck/internal/jobs"
	logx "agentdeck/pkg/logx"
)

type snapshot struct {
	loaded    bool
	lastRunAt time.Time
}

type Poller struct {
	svc *jobs.Service
	bus eventbus.Bus
	log logx.Logger

	interval time.Duration

	cron    *cron.Cron
	entryID cron.EntryID

	mu   sync.Mutex
	prev map[string]snapshot

	stopOnce sync.Once
	unsub    func()
	done     chan struct{}
}

// New builds a poller. A zero interval disables the periodic schedule;
// refreshes then run only on refresh-requested events.
func New(svc *jobs.Service, bus eventbus.Bus, log logx.Logger, interval time.Duration) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		svc:      svc,
		bus:      bus,
		log:      log,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the periodic schedule and the visibility-trigger
// subscription. It does not block.
func (p *Poller) Start(ctx context.Context) error {
	if p.interval > 0 {
		p.cron = cron.New()
		id, err := p.cron.AddFunc("@every "+p.interval.String(), func() {
			p.Refresh(ctx)
		})
		if err != nil {
			return err
		}
		p.entryID = id
		p.cron.Start()
	}

	events, unsub := p.bus.Subscribe(16)
	p.unsub = unsub
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Type == eventbus.TypeRefreshRequested {
					p.Refresh(ctx)
				}
			}
		}
	}()

	// Seed the diff baseline so the first periodic cycle doesn't emit an
	// event per pre-existing job.
	go p.Refresh(ctx)
	return nil
}

func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		if p.unsub != nil {
			p.unsub()
		}
		if p.cron != nil {
			<-p.cron.Stop().Done()
		}
	})
}

// Refresh runs one cycle and publishes diffs. Every invocation builds an
// independent list; overlapping invocations only race on the diff
// baseline, which is guarded.
func (p *Poller) Refresh(ctx context.Context) {
	started := time.Now()
	list, err := p.svc.List(ctx)
	if err != nil {
		p.log.Warn("refresh failed", logx.Err(err))
		return
	}
	p.log.Debug("refresh cycle complete",
		logx.Int("jobs", len(list)),
		logx.Duration("took", time.Since(started)))

	cur := make(map[string]snapshot, len(list))
	for _, j := range list {
		s := snapshot{loaded: j.IsLoaded}
		if j.LastRun != nil {
			s.lastRunAt = j.LastRun.Timestamp
		}
		cur[j.ID] = s
	}

	p.mu.Lock()
	prev := p.prev
	p.prev = cur
	p.mu.Unlock()

	if prev == nil {
		return // first cycle is the baseline
	}

	for _, j := range list {
		old, known := prev[j.ID]
		if !known {
			// Newly discovered jobs are baseline, not events.
			continue
		}
		if old.loaded != j.IsLoaded {
			p.bus.Publish(eventbus.Event{
				Type: eventbus.TypeJobStateChanged,
				Data: eventbus.JobStateChange{Label: j.ID, Name: j.Name, Loaded: j.IsLoaded},
			})
		}
		if j.LastRun != nil && j.LastRun.Timestamp.After(old.lastRunAt) {
			p.bus.Publish(eventbus.Event{
				Type: eventbus.TypeJobRunObserved,
				Data: eventbus.JobRunObserved{
					Label:   j.ID,
					Name:    j.Name,
					At:      j.LastRun.Timestamp,
					Success: j.LastRun.Success,
					Message: j.LastRun.Message,
				},
			})
		}
	}
}

// Interval reports the configured periodic interval (zero when disabled).
// Interval changes take effect by recreating the poller.
func (p *Poller) Interval() time.Duration { return p.interval }
