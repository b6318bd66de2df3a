package schedule

import (
	"time"

	"agentdeck/internal/descriptor"
)

// Kind discriminates the schedule union. Exactly one kind applies per job.
type Kind int

const (
	KindCalendar Kind = iota
	KindInterval
	KindKeepAlive
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindCalendar:
		return "calendar"
	case KindInterval:
		return "interval"
	case KindKeepAlive:
		return "keepalive"
	default:
		return "unknown"
	}
}

// Schedule is the normalized form of a descriptor's scheduling keys.
// Calendar fields follow the source format's convention: an absent field
// means "every value of that unit", not zero.
type Schedule struct {
	Kind Kind

	// Calendar fields (Kind == KindCalendar).
	Weekdays []int // 0=Sunday .. 6=Saturday; nil or empty = every day
	Hour     *int
	Minute   *int

	// Interval field (Kind == KindInterval).
	Seconds int64
}

// Normalize maps a descriptor to its schedule. It is pure and total:
// every descriptor yields exactly one schedule, selection order follows
// the format's mutual-exclusivity convention (calendar, then interval,
// then keep-alive), and unrecognizable input yields KindUnknown rather
// than an error.
func Normalize(d *descriptor.JobDescriptor) Schedule {
	if d == nil {
		return Schedule{Kind: KindUnknown}
	}

	if cal := d.Raw.Calendar; cal != nil {
		s := Schedule{Kind: KindCalendar}
		if len(cal.Weekdays) > 0 {
			s.Weekdays = append([]int(nil), cal.Weekdays...)
		}
		if cal.Hour != nil {
			h := *cal.Hour
			s.Hour = &h
		}
		if cal.Minute != nil {
			m := *cal.Minute
			s.Minute = &m
		}
		return s
	}

	if d.Raw.IntervalSeconds != nil {
		secs := *d.Raw.IntervalSeconds
		if secs <= 0 {
			// Cannot be rendered meaningfully; the interval key still
			// claims this slot, so it does not fall through to keep-alive.
			return Schedule{Kind: KindUnknown}
		}
		return Schedule{Kind: KindInterval, Seconds: secs}
	}

	if d.Raw.KeepAlive {
		return Schedule{Kind: KindKeepAlive}
	}

	return Schedule{Kind: KindUnknown}
}

func validWeekday(n int) bool { return n >= 0 && n <= 6 }

func weekdayName(n int) string {
	if !validWeekday(n) {
		return "?"
	}
	return time.Weekday(n).String()
}
