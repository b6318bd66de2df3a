package schedule

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Renderer turns schedules into human-readable text. The phrasing lives
// behind an x/text printer so number formatting follows the matched locale;
// only English has a catalog today.
type Renderer struct {
	p *message.Printer
}

var supported = language.NewMatcher([]language.Tag{
	language.English, // first entry is the fallback
})

// NewRenderer matches the requested BCP-47 locale against the supported
// set. Unknown or empty locales fall back to English.
func NewRenderer(locale string) *Renderer {
	tag, _ := language.MatchStrings(supported, locale)
	return &Renderer{p: message.NewPrinter(tag)}
}

// Describe renders one schedule. Never returns an empty string.
func (r *Renderer) Describe(s Schedule) string {
	switch s.Kind {
	case KindCalendar:
		return r.describeCalendar(s)
	case KindInterval:
		return r.describeInterval(s.Seconds)
	case KindKeepAlive:
		return "Always running"
	default:
		return "Schedule not recognized"
	}
}

func (r *Renderer) describeCalendar(s Schedule) string {
	if len(s.Weekdays) == 0 && s.Hour == nil && s.Minute == nil {
		return "Whenever the supervisor triggers it"
	}

	day := r.dayClause(s.Weekdays)
	tod := r.timeClause(s.Hour, s.Minute)

	switch {
	case tod == "":
		return day
	case day == "":
		return "Every day " + tod
	default:
		return day + " " + tod
	}
}

func (r *Renderer) dayClause(weekdays []int) string {
	// A full set enumerates nothing; collapse to the daily phrasing.
	if len(weekdays) == 0 || len(weekdays) >= 7 {
		return "Every day"
	}
	names := make([]string, 0, len(weekdays))
	for _, d := range weekdays {
		names = append(names, weekdayName(d))
	}
	if len(names) == 1 {
		return r.p.Sprintf("Every %s", names[0])
	}
	last := names[len(names)-1]
	return r.p.Sprintf("Every %s and %s", strings.Join(names[:len(names)-1], ", "), last)
}

func (r *Renderer) timeClause(hour, minute *int) string {
	switch {
	case hour != nil && minute != nil:
		return r.p.Sprintf("at %02d:%02d", *hour, *minute)
	case hour != nil:
		return r.p.Sprintf("during hour %02d", *hour)
	case minute != nil:
		return r.p.Sprintf("at minute %d of every hour", *minute)
	default:
		return ""
	}
}

// describeInterval buckets seconds into the largest whole unit of at least
// a minute, rounding down. Never fractional; sub-minute intervals clamp to
// the one-minute bucket.
func (r *Renderer) describeInterval(secs int64) string {
	const (
		minute = 60
		hour   = 60 * minute
		day    = 24 * hour
	)
	switch {
	case secs >= day:
		return r.unitEvery(secs/day, "day", "days")
	case secs >= hour:
		return r.unitEvery(secs/hour, "hour", "hours")
	default:
		n := secs / minute
		if n < 1 {
			n = 1
		}
		return r.unitEvery(n, "minute", "minutes")
	}
}

func (r *Renderer) unitEvery(n int64, singular, plural string) string {
	unit := plural
	if n == 1 {
		unit = singular
	}
	return r.p.Sprintf("Every %d %s", n, unit)
}
