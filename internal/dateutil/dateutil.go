// Package dateutil holds the calendar arithmetic shared by the engine.
//
// All functions are pure and take the date as an explicit argument. Day
// boundaries are computed in the location of the given time.
package dateutil

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60

	// DayKeyLayout is the layout of date-only keys (StartFormatted, bucket keys).
	DayKeyLayout = "2006-01-02"
)

var ErrUnparseable = errors.New("dateutil: unparseable date")

// parseLayouts are tried in order by Parse.
var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	DayKeyLayout,
}

func AddDays(t time.Time, n int) time.Time      { return t.AddDate(0, 0, n) }
func SubtractDays(t time.Time, n int) time.Time { return t.AddDate(0, 0, -n) }

func AddHours(t time.Time, n int) time.Time      { return t.Add(time.Duration(n) * time.Hour) }
func SubtractHours(t time.Time, n int) time.Time { return t.Add(-time.Duration(n) * time.Hour) }

func AddMinutes(t time.Time, n int) time.Time      { return t.Add(time.Duration(n) * time.Minute) }
func SubtractMinutes(t time.Time, n int) time.Time { return t.Add(-time.Duration(n) * time.Minute) }

// StartOfDay returns 00:00 of t's day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's day (millisecond precision).
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// NextDay returns 00:00 of the day after t.
func NextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the first day of t's week at 00:00.
func StartOfWeek(t time.Time, startOnSunday bool) time.Time {
	d := StartOfDay(t)
	offset := int(d.Weekday())
	if !startOnSunday {
		// Monday = 0 ... Sunday = 6
		offset = (offset + 6) % 7
	}
	return d.AddDate(0, 0, -offset)
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns 23:59:59.999 of the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	return EndOfDay(time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()))
}

func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// CountDays returns the number of calendar days spanned by [a, b], counting
// both ends. Returns 0 if b is before a.
func CountDays(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	n := 1
	for d := StartOfDay(a); !SameDay(d, b); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// WeekNumber returns the ISO week number of t. When weeks start on Sunday,
// the Sunday belongs to the week of the following Monday.
func WeekNumber(t time.Time, startOnSunday bool) int {
	if startOnSunday && t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	_, w := t.ISOWeek()
	return w
}

// IsInRange reports whether start <= t <= end.
func IsInRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// Overlaps is the half-open interval test [aStart, aEnd) ∩ [bStart, bEnd) ≠ ∅.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// MinutesOfDay returns the offset of t within its day in minutes.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// AtMinutes returns day's 00:00 plus m minutes.
func AtMinutes(day time.Time, m int) time.Time {
	d := StartOfDay(day)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, m, 0, 0, d.Location())
}

// SnapMinutes rounds m to the nearest multiple of interval; exact halves
// round up. A non-positive interval returns m unchanged.
func SnapMinutes(m, interval int) int {
	if interval <= 0 {
		return m
	}
	r := m % interval
	if r < 0 {
		r += interval
	}
	if r*2 >= interval {
		return m - r + interval
	}
	return m - r
}

// SnapToInterval snaps t's minutes-of-day to the nearest interval boundary
// using SnapMinutes. Seconds are dropped.
func SnapToInterval(t time.Time, interval int) time.Time {
	if interval <= 0 {
		return t
	}
	return AtMinutes(t, SnapMinutes(MinutesOfDay(t), interval))
}

// TruncateToMinute drops seconds and sub-seconds, except that a time ending in
// :59 seconds rounds up to the next minute so 23:59:59 means "until midnight".
func TruncateToMinute(t time.Time) time.Time {
	if t.Second() == 59 {
		return t.Truncate(time.Minute).Add(time.Minute)
	}
	return t.Truncate(time.Minute)
}

// DayKey formats t as a date-only key.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// Parse parses s in one of the accepted layouts, in loc when the layout has
// no zone.
func Parse(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparseable
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseable
}

// Format renders t with a token pattern:
//
//	YYYY YY  year         MMMM MMM MM M  month
//	DD D     day          dddd ddd  d     weekday (name, short, 1-7 Mon-Sun)
//	HH H     24h hour     hh h             12h hour
//	mm       minutes      am               am/pm
//
// Text between curly braces is copied verbatim.
func Format(t time.Time, pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		if pattern[i] == '{' {
			if j := strings.IndexByte(pattern[i:], '}'); j > 0 {
				b.WriteString(pattern[i+1 : i+j])
				i += j + 1
				continue
			}
		}
		tok, val := formatToken(t, pattern[i:])
		if tok == 0 {
			b.WriteByte(pattern[i])
			i++
			continue
		}
		b.WriteString(val)
		i += tok
	}
	return b.String()
}

func formatToken(t time.Time, s string) (int, string) {
	has := func(p string) bool { return strings.HasPrefix(s, p) }
	switch {
	case has("YYYY"):
		return 4, strconv.Itoa(t.Year())
	case has("YY"):
		return 2, pad2(t.Year() % 100)
	case has("MMMM"):
		return 4, t.Month().String()
	case has("MMM"):
		return 3, t.Month().String()[:3]
	case has("MM"):
		return 2, pad2(int(t.Month()))
	case has("M"):
		return 1, strconv.Itoa(int(t.Month()))
	case has("DD"):
		return 2, pad2(t.Day())
	case has("D"):
		return 1, strconv.Itoa(t.Day())
	case has("dddd"):
		return 4, t.Weekday().String()
	case has("ddd"):
		return 3, t.Weekday().String()[:3]
	case has("d"):
		return 1, strconv.Itoa((int(t.Weekday())+6)%7 + 1)
	case has("HH"):
		return 2, pad2(t.Hour())
	case has("H"):
		return 1, strconv.Itoa(t.Hour())
	case has("hh"):
		return 2, pad2(hour12(t.Hour()))
	case has("h"):
		return 1, strconv.Itoa(hour12(t.Hour()))
	case has("mm"):
		return 2, pad2(t.Minute())
	case has("am"):
		if t.Hour() < 12 {
			return 2, "am"
		}
		return 2, "pm"
	}
	return 0, ""
}

func hour12(h int) int {
	h %= 12
	if h == 0 {
		return 12
	}
	return h
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// FormatMinutes renders minutes-of-day as HH:mm; 1440 renders as 24:00.
func FormatMinutes(m int) string {
	return pad2(m/60) + ":" + pad2(m%60)
}
