package view

import (
	"fmt"
	"time"

	"calgrid/internal/dateutil"
)

// title renders the heading of st. Ranges crossing a month show both month
// names, ranges crossing a year show both years. Month names are abbreviated
// only when TruncateMonths is set and the viewport is narrow or the range
// crosses a month.
func (m *Manager) title(st State) string {
	first, last := st.Start, st.End.Add(-time.Nanosecond)
	crossesMonth := first.Month() != last.Month() || first.Year() != last.Year()
	month := "MMMM"
	if m.opts.TruncateMonths && (m.narrow || crossesMonth) {
		month = "MMM"
	}

	var t string
	switch st.ID {
	case Day:
		t = dateutil.Format(st.Start, "dddd D "+month+" YYYY")
	case Days:
		t = dayRange(first, last, month)
	case Week:
		t = fmt.Sprintf("Week %d (%s)",
			dateutil.WeekNumber(first, m.opts.StartWeekOnSunday), monthRange(first, last, month))
	case Month:
		t = dateutil.Format(st.Start, month+" YYYY")
	case Year:
		t = dateutil.Format(st.Start, "YYYY")
	case Years:
		t = dateutil.Format(first, "YYYY") + " - " + dateutil.Format(last, "YYYY")
	}
	return m.caser.String(t)
}

func monthRange(first, last time.Time, month string) string {
	switch {
	case first.Year() != last.Year():
		return dateutil.Format(first, month+" YYYY") + " - " + dateutil.Format(last, month+" YYYY")
	case first.Month() != last.Month():
		return dateutil.Format(first, month) + " - " + dateutil.Format(last, month+" YYYY")
	default:
		return dateutil.Format(first, month+" YYYY")
	}
}

func dayRange(first, last time.Time, month string) string {
	switch {
	case dateutil.SameDay(first, last):
		return dateutil.Format(first, "D "+month+" YYYY")
	case first.Year() != last.Year():
		return dateutil.Format(first, "D "+month+" YYYY") + " - " + dateutil.Format(last, "D "+month+" YYYY")
	case first.Month() != last.Month():
		return dateutil.Format(first, "D "+month) + " - " + dateutil.Format(last, "D "+month+" YYYY")
	default:
		return dateutil.Format(first, "D") + " - " + dateutil.Format(last, "D "+month+" YYYY")
	}
}
