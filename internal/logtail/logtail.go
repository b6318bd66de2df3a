// Package logtail reads job output logs and derives last-run information.
//
// Log absence is expected (jobs that never ran have no log), so nothing in
// this package returns an error to its caller; unreadable input degrades to
// an empty result.
package logtail

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"
)

// DefaultTailLines is the tail length used when the caller passes <= 0.
const DefaultTailLines = 25

// maxTailRead caps how much of a log file is read per request.
const maxTailRead = 256 * 1024

// TailResult is the trailing content of one log file.
// LastModified is nil when the file does not exist or cannot be read.
type TailResult struct {
	Content      string
	LastModified *time.Time
}

// LastRun is the derived outcome of a job's most recent observed run.
type LastRun struct {
	Timestamp time.Time
	Success   bool
	Message   string
}

// Tail returns the trailing n lines of the file at path. A missing or
// unreadable path yields an empty result.
func Tail(path string, n int) TailResult {
	if n <= 0 {
		n = DefaultTailLines
	}
	if strings.TrimSpace(path) == "" {
		return TailResult{}
	}

	f, err := os.Open(path)
	if err != nil {
		return TailResult{}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		return TailResult{}
	}

	// Read only the trailing chunk of large files.
	var off int64
	size := fi.Size()
	if size > maxTailRead {
		off = size - maxTailRead
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return TailResult{}
	}
	b, err := io.ReadAll(io.LimitReader(f, maxTailRead))
	if err != nil {
		return TailResult{}
	}
	if off > 0 {
		// Drop the partial first line introduced by seeking mid-file.
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			b = b[i+1:]
		}
	}

	mt := fi.ModTime()
	return TailResult{Content: lastLines(string(b), n), LastModified: &mt}
}

func lastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// DeriveLastRun infers a job's last run from its stream files.
//
// The host guarantees no exit-code log format, so the only signal treated
// as reliable is stream recency: the run timestamp is the stdout mtime (or
// the stderr mtime when stdout never existed), and the run counts as failed
// only when the stderr file is non-empty and at least as recent as stdout.
// With no stream file at all there is no last-run information; absence is
// reported rather than a guess.
func DeriveLastRun(stdoutPath, stderrPath string) *LastRun {
	outInfo := statFile(stdoutPath)
	errInfo := statFile(stderrPath)

	switch {
	case outInfo == nil && errInfo == nil:
		return nil
	case outInfo == nil:
		if errInfo.Size() == 0 {
			// An empty stderr file alone says nothing about a run.
			return nil
		}
		return &LastRun{
			Timestamp: errInfo.ModTime(),
			Success:   false,
			Message:   lastStderrLine(stderrPath),
		}
	}

	run := &LastRun{Timestamp: outInfo.ModTime(), Success: true}
	if errInfo != nil && errInfo.Size() > 0 && !errInfo.ModTime().Before(outInfo.ModTime()) {
		run.Success = false
		run.Message = lastStderrLine(stderrPath)
	}
	return run
}

func statFile(path string) os.FileInfo {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil
	}
	return fi
}

func lastStderrLine(path string) string {
	t := Tail(path, 1)
	return strings.TrimSpace(t.Content)
}
