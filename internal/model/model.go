package model

import "time"

// Event is the plain event record exchanged with the host application.
// The index normalizes it into events.Event; callers never see derived
// metadata here.
type Event struct {
	// ID is opaque. An empty ID is assigned on ingestion.
	ID string `json:"id" yaml:"id"`

	// Start / End delimit the event, End exclusive.
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`

	// StartText / EndText are parsed when Start / End are zero, so records
	// coming from JSON forms or feeds can carry plain strings.
	StartText string `json:"startText,omitempty" yaml:"start_text,omitempty"`
	EndText   string `json:"endText,omitempty" yaml:"end_text,omitempty"`

	Title   string `json:"title" yaml:"title"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	Class   string `json:"class,omitempty" yaml:"class,omitempty"`

	Background bool `json:"background,omitempty" yaml:"background,omitempty"`
	AllDay     bool `json:"allDay,omitempty" yaml:"all_day,omitempty"`

	// Recurring events are expanded from RRule (RFC 5545) at query time.
	Recurring bool        `json:"recurring,omitempty" yaml:"recurring,omitempty"`
	RRule     string      `json:"rrule,omitempty" yaml:"rrule,omitempty"`
	ExDates   []time.Time `json:"exdates,omitempty" yaml:"exdates,omitempty"`

	// Schedule is the optional resource lane (room, person) of the event.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	// Per-event overrides of the editable_events configuration. Nil follows
	// the configuration.
	Deletable *bool `json:"deletable,omitempty" yaml:"deletable,omitempty"`
	Resizable *bool `json:"resizable,omitempty" yaml:"resizable,omitempty"`
	Draggable *bool `json:"draggable,omitempty" yaml:"draggable,omitempty"`
}

// Cell is one grid slot of a view: a day, a month or a year, optionally
// restricted to a schedule lane.
type Cell struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Schedule string    `json:"schedule,omitempty"`

	// OutOfScope marks leading/trailing days of a month grid.
	OutOfScope bool `json:"outOfScope,omitempty"`
	// Disabled marks days outside min/max date or listed as disabled.
	Disabled bool `json:"disabled,omitempty"`
	Today    bool `json:"today,omitempty"`
}

// Contains reports whether t falls in [Start, End).
func (c Cell) Contains(t time.Time) bool {
	return !t.Before(c.Start) && t.Before(c.End)
}

// WithSchedule returns a copy of c restricted to the given schedule lane.
func (c Cell) WithSchedule(id string) Cell {
	c.Schedule = id
	return c
}

// Allowed resolves a per-event override flag against a configured default.
func Allowed(override *bool, def bool) bool {
	if override == nil {
		return def
	}
	return *override
}

// Bool returns a pointer to b, for building override flags.
func Bool(b bool) *bool {
	return &b
}
