package events

import (
	"time"

	"github.com/teambition/rrule-go"

	"calgrid/internal/dateutil"
	appLog "calgrid/internal/log"
)

const (
	defaultMaxOccurrences = 5000

	// occurrenceIDLayout is appended to the base id of each occurrence.
	occurrenceIDLayout = "20060102T1504"
)

// expandRecurring returns the occurrences of a recurring event that overlap
// [rangeStart, rangeEnd). A recurring event without a rule, or with a rule
// that fails to parse, yields its own span only.
//
// Each occurrence keeps the base duration; EXDATEs remove occurrences whose
// start matches exactly.
func (idx *Index) expandRecurring(base *Event, rangeStart, rangeEnd time.Time) []*Event {
	if base.RRule == "" {
		if dateutil.Overlaps(base.Start, base.End, rangeStart, rangeEnd) {
			return []*Event{base}
		}
		return nil
	}

	r, err := rrule.StrToRRule(base.RRule)
	if err != nil {
		appLog.Error("recurrence: failed to parse RRULE", err, "id", base.ID, "rrule", base.RRule)
		if dateutil.Overlaps(base.Start, base.End, rangeStart, rangeEnd) {
			return []*Event{base}
		}
		return nil
	}

	// Ensure Dtstart is set to the event's start.
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range base.ExDates {
		set.ExDate(ex.In(base.Start.Location()))
	}

	dur := base.End.Sub(base.Start)

	// An occurrence starting up to one duration before the range may still
	// overlap it.
	from := rangeStart.Add(-dur).In(base.Start.Location())
	to := rangeEnd.In(base.Start.Location())
	starts := set.Between(from, to, true)

	if len(starts) > idx.opts.MaxOccurrences {
		appLog.Warn("recurrence: occurrences truncated", "id", base.ID, "cap", idx.opts.MaxOccurrences)
		starts = starts[:idx.opts.MaxOccurrences]
	}

	out := make([]*Event, 0, len(starts))
	for _, s := range starts {
		end := s.Add(dur)
		if !dateutil.Overlaps(s, end, rangeStart, rangeEnd) {
			continue
		}
		occ := base.clone()
		occ.ID = base.ID + "@" + s.Format(occurrenceIDLayout)
		occ.OccurrenceOf = base.ID
		occ.Start = s
		occ.End = end
		derive(occ)
		out = append(out, occ)
	}
	return out
}
