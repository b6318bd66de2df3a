package descriptor

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"howett.net/plist"
)

// Classified parse failures. Both are per-descriptor: one bad file must
// never abort a directory scan.
var (
	// ErrMalformed marks a file that was read but could not be decoded
	// into a usable job descriptor (bad plist, missing label, wrong
	// value types).
	ErrMalformed = errors.New("malformed descriptor")

	// ErrUnreadable marks a file that could not be read at all.
	ErrUnreadable = errors.New("unreadable descriptor")
)

// JobDescriptor is the parsed, immutable form of one launchd property list.
// Identity is Label; two descriptors with the same label are the same job.
type JobDescriptor struct {
	Label             string
	Program           string
	ProgramArguments  []string
	StandardOutPath   string
	StandardErrorPath string

	// Path is the descriptor file this was parsed from.
	Path string

	Raw RawSchedule
}

// RawSchedule is the typed record of recognized scheduling keys, built
// before normalization so a malformed calendar key fails parsing instead
// of silently degrading to an unknown schedule.
type RawSchedule struct {
	Calendar        *CalendarKeys
	IntervalSeconds *int64
	KeepAlive       bool
}

// CalendarKeys mirrors StartCalendarInterval. A nil field means the unit
// is absent, i.e. "every value of that unit", not zero.
type CalendarKeys struct {
	Weekdays []int // 0=Sunday .. 6=Saturday, deduplicated, ascending
	Hour     *int
	Minute   *int
}

// ParseFile reads and parses one descriptor file.
// Read errors classify as ErrUnreadable, decode errors as ErrMalformed.
func ParseFile(path string) (*JobDescriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	d, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// Parse decodes descriptor bytes (XML or binary property list) into a
// JobDescriptor. Anything structurally surprising (truncated input,
// missing label, non-UTF8 strings, wrong value types on recognized keys)
// returns ErrMalformed.
func Parse(data []byte) (d *JobDescriptor, err error) {
	// The plist decoder can panic on some corrupt binary inputs; keep
	// that contained to this descriptor.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("%w: decoder panic: %v", ErrMalformed, r)
		}
	}()

	var raw map[string]any
	if _, uerr := plist.Unmarshal(data, &raw); uerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, uerr)
	}

	label, err := requiredString(raw, "Label")
	if err != nil {
		return nil, err
	}

	out := &JobDescriptor{Label: label}

	if out.Program, err = optionalString(raw, "Program"); err != nil {
		return nil, err
	}
	if out.StandardOutPath, err = optionalString(raw, "StandardOutPath"); err != nil {
		return nil, err
	}
	if out.StandardErrorPath, err = optionalString(raw, "StandardErrorPath"); err != nil {
		return nil, err
	}
	if out.ProgramArguments, err = optionalStringSlice(raw, "ProgramArguments"); err != nil {
		return nil, err
	}

	if err = parseScheduleKeys(raw, &out.Raw); err != nil {
		return nil, err
	}

	return out, nil
}

func parseScheduleKeys(raw map[string]any, sched *RawSchedule) error {
	if v, ok := raw["StartCalendarInterval"]; ok {
		cal, err := parseCalendar(v)
		if err != nil {
			return err
		}
		sched.Calendar = cal
	}

	if v, ok := raw["StartInterval"]; ok {
		n, err := asInt64(v)
		if err != nil {
			return fmt.Errorf("%w: StartInterval: %v", ErrMalformed, err)
		}
		sched.IntervalSeconds = &n
	}

	if v, ok := raw["KeepAlive"]; ok {
		switch x := v.(type) {
		case bool:
			sched.KeepAlive = x
		case map[string]any:
			// Conditional keep-alive dict still means the supervisor
			// restarts the job; treat any dict as truthy.
			sched.KeepAlive = true
		default:
			return fmt.Errorf("%w: KeepAlive has type %T", ErrMalformed, v)
		}
	}

	return nil
}

// parseCalendar accepts StartCalendarInterval as a single dict or an array
// of dicts. Weekday values are collected across entries; Hour/Minute come
// from the first entry that defines them (the format's common shape is one
// dict, or several dicts differing only by Weekday).
func parseCalendar(v any) (*CalendarKeys, error) {
	var entries []map[string]any
	switch x := v.(type) {
	case map[string]any:
		entries = []map[string]any{x}
	case []any:
		for _, e := range x {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: StartCalendarInterval entry has type %T", ErrMalformed, e)
			}
			entries = append(entries, m)
		}
	default:
		return nil, fmt.Errorf("%w: StartCalendarInterval has type %T", ErrMalformed, v)
	}

	cal := &CalendarKeys{}
	seen := map[int]bool{}
	for _, m := range entries {
		if wv, ok := m["Weekday"]; ok {
			n, err := asInt64(wv)
			if err != nil {
				return nil, fmt.Errorf("%w: Weekday: %v", ErrMalformed, err)
			}
			// launchd accepts 7 as an alias for Sunday.
			if n == 7 {
				n = 0
			}
			if n < 0 || n > 6 {
				return nil, fmt.Errorf("%w: Weekday %d out of range", ErrMalformed, n)
			}
			if !seen[int(n)] {
				seen[int(n)] = true
				cal.Weekdays = insertSorted(cal.Weekdays, int(n))
			}
		}
		if hv, ok := m["Hour"]; ok && cal.Hour == nil {
			n, err := asInt64(hv)
			if err != nil || n < 0 || n > 23 {
				return nil, fmt.Errorf("%w: Hour: %v", ErrMalformed, errOrRange(err, n))
			}
			h := int(n)
			cal.Hour = &h
		}
		if mv, ok := m["Minute"]; ok && cal.Minute == nil {
			n, err := asInt64(mv)
			if err != nil || n < 0 || n > 59 {
				return nil, fmt.Errorf("%w: Minute: %v", ErrMalformed, errOrRange(err, n))
			}
			mi := int(n)
			cal.Minute = &mi
		}
	}
	return cal, nil
}

func errOrRange(err error, n int64) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("value %d out of range", n)
}

func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func requiredString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformed, key)
	}
	s, err := asString(v, key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: empty %s", ErrMalformed, key)
	}
	return s, nil
}

func optionalString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", nil
	}
	return asString(v, key)
}

func optionalStringSlice(raw map[string]any, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s has type %T", ErrMalformed, key, v)
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, err := asString(e, key)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func asString(v any, key string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s has type %T", ErrMalformed, key, v)
	}
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrMalformed, key)
	}
	return s, nil
}

// asInt64 accepts the integer shapes the plist decoder can produce.
func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case uint64:
		return int64(x), nil
	case int:
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("non-integral value %v", x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
