// Package launchctl wraps the host supervisor's control binary.
//
// Every operation shells out to launchctl with a bounded timeout; stdout,
// stderr and the exit code are the only contract. The binary path is
// injected at construction so tests can point the bridge at a fake.
package launchctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds one launchctl invocation when the config does not
// override it.
const DefaultTimeout = 10 * time.Second

// Result is the outcome of one supervisor mutation. Message carries the
// raw diagnostic text on failure and a fixed human string on success.
type Result struct {
	OK      bool
	Message string
}

func success(msg string) Result { return Result{OK: true, Message: msg} }
func failure(msg string) Result { return Result{OK: false, Message: msg} }

// Bridge runs launchctl subcommands for per-user jobs keyed by label.
type Bridge struct {
	bin     string
	timeout time.Duration
}

// New builds a bridge around the given launchctl binary path.
// A non-positive timeout falls back to DefaultTimeout.
func New(bin string, timeout time.Duration) *Bridge {
	if strings.TrimSpace(bin) == "" {
		bin = "launchctl"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{bin: bin, timeout: timeout}
}

// IsLoaded reports whether the supervisor currently lists the label.
// This is a point-in-time fact and is never cached.
func (b *Bridge) IsLoaded(ctx context.Context, label string) (bool, error) {
	out, err := b.run(ctx, "list", label)
	if err != nil {
		if out.timedOut {
			return false, out.diag(err)
		}
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			// `launchctl list <label>` exits non-zero for unknown labels.
			return false, nil
		}
		return false, fmt.Errorf("launchctl list %s: %w", label, out.diag(err))
	}
	return true, nil
}

// Load registers and activates the job from its descriptor file.
// Loading an already-loaded job is a success no-op.
func (b *Bridge) Load(ctx context.Context, label, descriptorPath string) Result {
	out, err := b.run(ctx, "load", descriptorPath)
	switch {
	case out.timedOut:
		return failure(out.diag(err).Error())
	case err == nil && out.stderrEmpty():
		return success("Job activated")
	case out.stderrContains("already loaded"):
		return success("Job already active")
	default:
		return failure(out.diag(err).Error())
	}
}

// Unload deregisters the job. Unloading an already-unloaded job is a
// success no-op, symmetric with Load.
func (b *Bridge) Unload(ctx context.Context, label, descriptorPath string) Result {
	out, err := b.run(ctx, "unload", descriptorPath)
	switch {
	case out.timedOut:
		return failure(out.diag(err).Error())
	case err == nil && out.stderrEmpty():
		return success("Job deactivated")
	case out.stderrContains("not currently loaded"),
		out.stderrContains("could not find specified service"):
		return success("Job already inactive")
	default:
		return failure(out.diag(err).Error())
	}
}

// RunNow requests an immediate one-shot execution of a loaded job.
// The caller is responsible for verifying the job is loaded first.
func (b *Bridge) RunNow(ctx context.Context, label string) Result {
	out, err := b.run(ctx, "start", label)
	if err == nil && !out.timedOut && out.stderrEmpty() {
		return success("Run requested")
	}
	return failure(out.diag(err).Error())
}

type output struct {
	stdout   string
	stderr   string
	args     []string
	timedOut bool
	timeout  time.Duration
}

func (o output) stderrEmpty() bool { return strings.TrimSpace(o.stderr) == "" }

func (o output) stderrContains(needle string) bool {
	return strings.Contains(strings.ToLower(o.stderr), needle)
}

// diag folds the raw subprocess diagnostics into one error for surfacing.
func (o output) diag(err error) error {
	if o.timedOut {
		return fmt.Errorf("launchctl %s timed out after %s", strings.Join(o.args, " "), o.timeout)
	}
	msg := strings.TrimSpace(o.stderr)
	if msg == "" {
		msg = strings.TrimSpace(o.stdout)
	}
	switch {
	case err != nil && msg != "":
		return fmt.Errorf("launchctl %s: %v: %s", strings.Join(o.args, " "), err, msg)
	case err != nil:
		return fmt.Errorf("launchctl %s: %w", strings.Join(o.args, " "), err)
	default:
		return fmt.Errorf("launchctl %s: %s", strings.Join(o.args, " "), msg)
	}
}

func (b *Bridge) run(ctx context.Context, args ...string) (output, error) {
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cctx, b.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := output{
		stdout:  stdout.String(),
		stderr:  stderr.String(),
		args:    args,
		timeout: b.timeout,
	}
	if cctx.Err() == context.DeadlineExceeded {
		out.timedOut = true
		if err == nil {
			err = cctx.Err()
		}
	}
	return out, err
}
