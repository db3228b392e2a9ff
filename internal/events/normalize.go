package events

import (
	"time"

	"github.com/pkg/errors"

	"calgrid/internal/dateutil"
	"calgrid/internal/model"
)

// normalize turns a raw record into an indexed Event. It never coerces an
// invalid record: missing or unparseable dates and end-before-start are
// returned as ErrInvalidEvent.
func (idx *Index) normalize(rec model.Event) (*Event, error) {
	loc := idx.opts.Location

	if rec.Start.IsZero() {
		if rec.StartText == "" {
			return nil, errors.Wrap(ErrInvalidEvent, "missing start")
		}
		t, err := dateutil.Parse(rec.StartText, loc)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidEvent, "unparseable start %q", rec.StartText)
		}
		rec.Start = t
	}
	if rec.End.IsZero() {
		if rec.EndText == "" {
			return nil, errors.Wrap(ErrInvalidEvent, "missing end")
		}
		t, err := dateutil.Parse(rec.EndText, loc)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidEvent, "unparseable end %q", rec.EndText)
		}
		rec.End = t
	}
	rec.StartText, rec.EndText = "", ""

	if loc != nil {
		rec.Start = rec.Start.In(loc)
		rec.End = rec.End.In(loc)
	}
	if rec.End.Before(rec.Start) {
		return nil, errors.Wrapf(ErrInvalidEvent, "end %s before start %s",
			rec.End.Format(time.RFC3339), rec.Start.Format(time.RFC3339))
	}

	if rec.AllDay {
		// All-day events cover whole days: [first day 00:00, day after last day 00:00).
		last := rec.End
		if last.After(rec.Start) {
			last = last.Add(-time.Nanosecond)
		}
		rec.Start = dateutil.StartOfDay(rec.Start)
		rec.End = dateutil.NextDay(last)
	} else {
		rec.Start = rec.Start.Truncate(time.Minute)
		rec.End = dateutil.TruncateToMinute(rec.End)
	}

	if !idx.opts.MultidayEvents {
		if eod := dateutil.EndOfDay(rec.Start); rec.End.After(eod) {
			rec.End = eod
		}
	}

	if !rec.End.After(rec.Start) {
		return nil, errors.Wrap(ErrInvalidEvent, "event has no duration")
	}

	if rec.ID == "" {
		rec.ID = idx.opts.NewID()
	}

	ev := &Event{Event: rec, idx: idx}
	derive(ev)
	return ev, nil
}

// derive fills the cached metadata from Start/End.
func derive(ev *Event) {
	last := ev.LastDay()

	ev.Multiday = !dateutil.SameDay(ev.Start, last)
	ev.StartFormatted = dateutil.DayKey(ev.Start)
	ev.EndFormatted = dateutil.DayKey(last)
	ev.StartMinutes = dateutil.MinutesOfDay(ev.Start)
	ev.EndMinutes = ceilMinutes(ev.End.Sub(last))
	ev.Duration = ceilMinutes(ev.End.Sub(ev.Start))
}

func ceilMinutes(d time.Duration) int {
	return int((d + time.Minute - 1) / time.Minute)
}
