package events

import (
	"time"

	"calgrid/internal/dateutil"
	"calgrid/internal/model"
)

// Event is a normalized event owned by an Index. Published values are never
// mutated in place: every change produces a new *Event, so a pointer handed
// to a caller is a stable snapshot.
type Event struct {
	model.Event

	// Multiday is set when Start and End fall on different calendar days.
	Multiday bool `json:"multiday"`

	// StartFormatted / EndFormatted are date-only keys of the first and last
	// day the event touches.
	StartFormatted string `json:"startFormatted"`
	EndFormatted   string `json:"endFormatted"`

	// StartMinutes / EndMinutes are offsets within the first / last day.
	// An event ending at the next midnight has EndMinutes 1440.
	StartMinutes int `json:"startMinutes"`
	EndMinutes   int `json:"endMinutes"`

	// Duration in minutes.
	Duration int `json:"duration"`

	// OccurrenceOf is the base event id when this value is an expanded
	// occurrence of a recurring event.
	OccurrenceOf string `json:"occurrenceOf,omitempty"`

	// Deleting is set while a staged deletion is armed.
	Deleting bool `json:"deleting,omitempty"`

	idx *Index
}

// BaseID returns the id of the stored event this value derives from.
func (e *Event) BaseID() string {
	if e.OccurrenceOf != "" {
		return e.OccurrenceOf
	}
	return e.ID
}

// LastDay returns the start of the last calendar day the event touches.
func (e *Event) LastDay() time.Time {
	return dateutil.StartOfDay(e.End.Add(-time.Nanosecond))
}

// IsOverlapping reports whether another foreground event overlaps e. With a
// nil cell the search window is e's own span.
func (e *Event) IsOverlapping(at *model.Cell) bool {
	return len(e.OverlappingEvents(at)) > 0
}

// OverlappingEvents returns the foreground events of e's schedule that
// overlap e, searched within at (or e's own span when at is nil).
func (e *Event) OverlappingEvents(at *model.Cell) []*Event {
	if e.idx == nil {
		return nil
	}
	start, end := e.Start, e.End
	f := Filter{
		ExcludeIDs: []string{e.ID},
		Schedule:   e.Schedule,
		Background: Exclude,
	}
	if at != nil {
		start, end = at.Start, at.End
		if at.Schedule != "" {
			f.Schedule = at.Schedule
		}
	}

	candidates := e.idx.GetInRange(start, end, f)
	out := candidates[:0]
	for _, c := range candidates {
		if dateutil.Overlaps(c.Start, c.End, e.Start, e.End) {
			out = append(out, c)
		}
	}
	return out
}

// Delete deletes e from its index at the given stage.
func (e *Event) Delete(stage DeleteStage) bool {
	if e.idx == nil {
		return false
	}
	return e.idx.Delete(e.BaseID(), stage)
}

// Record returns the plain record of e.
func (e *Event) Record() model.Event {
	return e.Event
}

func (e *Event) clone() *Event {
	c := *e
	return &c
}
