// Package jobs reconciles the descriptor inventory against the
// supervisor's live loaded state and owns the toggle/run/log operations
// exposed to the presentation layer.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kushsharma/parallel"

	"agentdeck/internal/customize"
	"agentdeck/internal/descriptor"
	"agentdeck/internal/discovery"
	"agentdeck/internal/logtail"
	"agentdeck/internal/schedule"
	"agentdeck/internal/storage"
	"agentdeck/pkg/launchctl"
	logx "agentdeck/pkg/logx"
)

// ErrNotFound marks an operation against a label no descriptor declares.
var ErrNotFound = errors.New("job not found")

// Supervisor is the slice of the launchctl bridge this service needs.
// Accepting the interface keeps the reconciler testable with a fake.
type Supervisor interface {
	IsLoaded(ctx context.Context, label string) (bool, error)
	Load(ctx context.Context, label, descriptorPath string) launchctl.Result
	Unload(ctx context.Context, label, descriptorPath string) launchctl.Result
	RunNow(ctx context.Context, label string) launchctl.Result
}

// Job is the presentation-ready aggregate, rebuilt fresh on every
// discovery cycle. Instances are never mutated in place; ID is the only
// identity callers may correlate across refreshes.
type Job struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	DescriptorPath string           `json:"descriptor_path"`
	Schedule       string           `json:"schedule"`
	ScheduleText   string           `json:"schedule_text"`
	IsLoaded       bool             `json:"is_loaded"`
	LastRun        *logtail.LastRun `json:"last_run,omitempty"`
}

// OpResult is the structured outcome of a toggle/run operation. The
// presentation layer renders it directly; operations never surface raw
// faults.
type OpResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Options is the read-only configuration one refresh cycle operates on.
type Options struct {
	AgentsDir string
	Patterns  []string
	TailLines int

	// Parallelism bounds the per-job fan-out during refresh (default 4).
	Parallelism int
}

type Service struct {
	mu   sync.RWMutex
	opts Options

	bridge   Supervisor
	renderer *schedule.Renderer
	custom   *customize.Service
	store    storage.Store // audit only; nil when storage is disabled
	log      logx.Logger
}

func NewService(opts Options, bridge Supervisor, custom *customize.Service, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	return &Service{
		opts:     opts,
		bridge:   bridge,
		renderer: schedule.NewRenderer(""),
		custom:   custom,
		store:    store,
		log:      log,
	}
}

// Apply swaps the discovery configuration for subsequent cycles.
func (s *Service) Apply(opts Options) {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// SetPatterns replaces only the pattern filter (settings updates).
func (s *Service) SetPatterns(patterns []string) {
	s.mu.Lock()
	s.opts.Patterns = append([]string(nil), patterns...)
	s.mu.Unlock()
}

// Patterns returns the active pattern filter.
func (s *Service) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.opts.Patterns...)
}

func (s *Service) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// List builds the current job inventory: scan, parse, normalize, query
// the supervisor per label, inspect logs, merge customizations, sort by
// name. Each call returns an independent result set; nothing is cached
// between calls, so overlapping refreshes cannot corrupt each other.
//
// A descriptor that fails to parse is logged and omitted; one bad file
// must not blank the whole view.
func (s *Service) List(ctx context.Context) ([]Job, error) {
	opts := s.options()

	paths, err := discovery.Scan(opts.AgentsDir, opts.Patterns)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", opts.AgentsDir, err)
	}
	if len(paths) == 0 {
		return []Job{}, nil
	}

	overrides := s.custom.All(ctx)

	runner := parallel.NewRunner(parallel.WithLimit(opts.Parallelism))
	for _, path := range paths {
		path := path
		runner.Add(func() (interface{}, error) {
			return s.buildJob(ctx, path)
		})
	}

	// States come back in Add order, which is scan order; merging in that
	// order makes "last scanned wins" hold for duplicate labels.
	byLabel := make(map[string]Job, len(paths))
	for i, state := range runner.Run() {
		if state.Err != nil {
			s.log.Warn("descriptor skipped", logx.String("path", paths[i]), logx.Err(state.Err))
			continue
		}
		job, ok := state.Val.(Job)
		if !ok {
			continue
		}
		job.Name = customize.ApplyName(job.Name, overrides, job.ID)
		byLabel[job.ID] = job
	}

	out := make([]Job, 0, len(byLabel))
	for _, j := range byLabel {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Service) buildJob(ctx context.Context, path string) (Job, error) {
	d, err := descriptor.ParseFile(path)
	if err != nil {
		return Job{}, err
	}

	sched := schedule.Normalize(d)

	loaded, err := s.bridge.IsLoaded(ctx, d.Label)
	if err != nil {
		// A bridge hiccup degrades to "not loaded" for this cycle rather
		// than dropping the job from the view.
		s.log.Warn("loaded-state query failed", logx.String("label", d.Label), logx.Err(err))
		loaded = false
	}

	job := Job{
		ID:             d.Label,
		Name:           defaultName(d.Label),
		DescriptorPath: path,
		Schedule:       sched.Kind.String(),
		ScheduleText:   s.renderer.Describe(sched),
		IsLoaded:       loaded,
	}
	if d.StandardOutPath != "" || d.StandardErrorPath != "" {
		job.LastRun = logtail.DeriveLastRun(d.StandardOutPath, d.StandardErrorPath)
	}
	return job, nil
}

// defaultName is the label's leaf segment: "com.example.backup" → "backup".
func defaultName(label string) string {
	if i := strings.LastIndex(label, "."); i >= 0 && i+1 < len(label) {
		return label[i+1:]
	}
	return label
}

// Toggle flips the job's loaded state: unload when loaded, load when not.
// The caller never chooses the direction.
func (s *Service) Toggle(ctx context.Context, id string) OpResult {
	start := time.Now()

	d, err := s.findDescriptor(id)
	if err != nil {
		return s.audited(ctx, "toggle", id, start, OpResult{Success: false, Message: opMessage(err)})
	}

	loaded, err := s.bridge.IsLoaded(ctx, id)
	if err != nil {
		return s.audited(ctx, "toggle", id, start, OpResult{Success: false, Message: err.Error()})
	}

	var res launchctl.Result
	action := "load"
	if loaded {
		action = "unload"
		res = s.bridge.Unload(ctx, id, d.Path)
	} else {
		res = s.bridge.Load(ctx, id, d.Path)
	}
	return s.audited(ctx, action, id, start, OpResult{Success: res.OK, Message: res.Message})
}

// Run requests an immediate execution. Running an unloaded job is a
// reported user error; the bridge is not invoked.
func (s *Service) Run(ctx context.Context, id string) OpResult {
	start := time.Now()

	if _, err := s.findDescriptor(id); err != nil {
		return s.audited(ctx, "run", id, start, OpResult{Success: false, Message: opMessage(err)})
	}

	loaded, err := s.bridge.IsLoaded(ctx, id)
	if err != nil {
		return s.audited(ctx, "run", id, start, OpResult{Success: false, Message: err.Error()})
	}
	if !loaded {
		return s.audited(ctx, "run", id, start, OpResult{
			Success: false,
			Message: "Activate the job before running it",
		})
	}

	res := s.bridge.RunNow(ctx, id)
	return s.audited(ctx, "run", id, start, OpResult{Success: res.OK, Message: res.Message})
}

// Logs tails the job's stdout log. Lines <= 0 uses the configured default.
func (s *Service) Logs(ctx context.Context, id string, lines int) (logtail.TailResult, error) {
	d, err := s.findDescriptor(id)
	if err != nil {
		return logtail.TailResult{}, err
	}
	if lines <= 0 {
		lines = s.options().TailLines
	}
	return logtail.Tail(d.StandardOutPath, lines), nil
}

// findDescriptor re-derives the descriptor for a label from the watched
// directory. Nothing is cached between calls; the directory is the source
// of truth. For duplicate labels the last scanned file wins, matching
// List.
func (s *Service) findDescriptor(id string) (*descriptor.JobDescriptor, error) {
	opts := s.options()
	paths, err := discovery.Scan(opts.AgentsDir, opts.Patterns)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", opts.AgentsDir, err)
	}

	var found *descriptor.JobDescriptor
	for _, path := range paths {
		d, err := descriptor.ParseFile(path)
		if err != nil {
			continue
		}
		if d.Label == id {
			found = d
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

func (s *Service) audited(ctx context.Context, action, label string, start time.Time, res OpResult) OpResult {
	if s.store != nil {
		err := s.store.AppendAudit(ctx, storage.AuditEntry{
			At:      start,
			Action:  action,
			Label:   label,
			OK:      res.Success,
			Message: res.Message,
			TookMS:  time.Since(start).Milliseconds(),
		})
		if err != nil && !errors.Is(err, storage.ErrDisabled) {
			s.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
		}
	}
	return res
}

func opMessage(err error) string {
	if errors.Is(err, ErrNotFound) {
		return "Job not found; refresh and try again"
	}
	return err.Error()
}
