// Package quiet implements the focus-mode gate that suppresses job
// notifications inside a configured daily time window. It gates
// notification emission only; discovery, toggle and run operations are
// never blocked by it.
package quiet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a possibly wrap-around daily time range. Start numerically
// after End means the window crosses midnight.
type Window struct {
	Enabled bool
	Start   string // "HH:MM"
	End     string // "HH:MM"
}

// Validate checks the window's clock fields. A disabled window is always
// valid regardless of its fields.
func (w Window) Validate() error {
	if !w.Enabled {
		return nil
	}
	if _, err := ParseClock(w.Start); err != nil {
		return fmt.Errorf("focus_mode.start: %w", err)
	}
	if _, err := ParseClock(w.End); err != nil {
		return fmt.Errorf("focus_mode.end: %w", err)
	}
	return nil
}

// IsQuiet reports whether now's time-of-day falls inside the window.
// The range is [start, end): the end minute itself is outside. Unparsable
// clock fields make the window inert rather than permanently quiet.
func IsQuiet(w Window, now time.Time) bool {
	if !w.Enabled {
		return false
	}
	start, err := ParseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur < end
	}
	// Wraps midnight.
	return cur >= start || cur < end
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q: bad minute", s)
	}
	return h*60 + m, nil
}
