package view

import (
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"calgrid/internal/dateutil"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// ID names a view granularity.
type ID string

const (
	Day   ID = "day"
	Days  ID = "days"
	Week  ID = "week"
	Month ID = "month"
	Year  ID = "year"
	Years ID = "years"
)

// Order lists the views from narrowest to broadest.
var Order = []ID{Day, Days, Week, Month, Year, Years}

// Valid reports whether id is one of the six granularities.
func (id ID) Valid() bool {
	for _, v := range Order {
		if v == id {
			return true
		}
	}
	return false
}

// Spec is the grid shape of a view.
type Spec struct {
	Cols int `yaml:"cols" json:"cols"`
	Rows int `yaml:"rows" json:"rows"`
}

// DefaultSpecs are used for views configured without a shape.
var DefaultSpecs = map[ID]Spec{
	Day:   {Cols: 1, Rows: 1},
	Days:  {Cols: 10, Rows: 1},
	Week:  {Cols: 7, Rows: 1},
	Month: {Cols: 7, Rows: 6},
	Year:  {Cols: 4, Rows: 3},
	Years: {Cols: 5, Rows: 5},
}

// Options configures a Manager.
type Options struct {
	// Views are the available views. Empty means all six with default shapes.
	Views       map[ID]Spec
	DefaultView ID

	StartWeekOnSunday bool
	HiddenWeekdays    []time.Weekday

	// MinDate / MaxDate bound selectable days; zero means unbounded.
	MinDate      time.Time
	MaxDate      time.Time
	DisabledDays []time.Time

	// TruncateMonths allows abbreviated month names in titles.
	TruncateMonths bool

	Language language.Tag
	Location *time.Location
	Now      func() time.Time
}

// State is the computed view.
type State struct {
	ID     ID        `json:"id"`
	Anchor time.Time `json:"anchor"`

	// Start / End delimit the theoretical window of the view, End exclusive.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// FirstCellDate is the start of the first cell, LastCellDate the last
	// millisecond of the last cell.
	FirstCellDate time.Time `json:"firstCellDate"`
	LastCellDate  time.Time `json:"lastCellDate"`

	Cells []model.Cell `json:"cells"`
	Cols  int          `json:"cols"`
	Rows  int          `json:"rows"`
	Title string       `json:"title"`
}

// Manager is the view state machine. It is safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	opts     Options
	specs    map[ID]Spec
	hidden   map[time.Weekday]bool
	disabled map[string]struct{}
	caser    cases.Caser

	narrow bool
	state  State
}

// NewManager creates a manager showing the default view around Now.
func NewManager(opts Options) *Manager {
	m := &Manager{}
	m.apply(opts)
	m.state = m.compute(m.initialView(""), m.opts.Now())
	return m
}

func (m *Manager) apply(opts Options) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	specs := make(map[ID]Spec)
	if len(opts.Views) == 0 {
		for id, s := range DefaultSpecs {
			specs[id] = s
		}
	}
	for id, s := range opts.Views {
		if !id.Valid() {
			appLog.Warn("view: ignoring unknown view", "view", string(id))
			continue
		}
		if s.Cols <= 0 || s.Rows <= 0 {
			s = DefaultSpecs[id]
		}
		specs[id] = s
	}
	if len(specs) == 0 {
		appLog.Warn("view: no valid views configured, using defaults")
		for id, s := range DefaultSpecs {
			specs[id] = s
		}
	}

	hidden := make(map[time.Weekday]bool)
	for _, d := range opts.HiddenWeekdays {
		hidden[d] = true
	}
	if len(hidden) >= 7 {
		appLog.Warn("view: every weekday hidden, showing all")
		hidden = map[time.Weekday]bool{}
	}

	disabled := make(map[string]struct{}, len(opts.DisabledDays))
	for _, d := range opts.DisabledDays {
		disabled[dateutil.DayKey(d.In(opts.Location))] = struct{}{}
	}

	m.opts = opts
	m.specs = specs
	m.hidden = hidden
	m.disabled = disabled
	m.caser = cases.Title(opts.Language, cases.NoLower)
}

// initialView returns want when available, else the configured default,
// else the first available view.
func (m *Manager) initialView(want ID) ID {
	if _, ok := m.specs[want]; ok {
		return want
	}
	if _, ok := m.specs[m.opts.DefaultView]; ok {
		return m.opts.DefaultView
	}
	if m.opts.DefaultView != "" {
		appLog.Warn("view: default view not available", "view", string(m.opts.DefaultView))
	}
	for _, id := range Order {
		if _, ok := m.specs[id]; ok {
			return id
		}
	}
	return Month
}

// State returns a copy of the current view.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	st.Cells = append([]model.Cell(nil), m.state.Cells...)
	return st
}

// Available reports whether id is configured.
func (m *Manager) Available(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.specs[id]
	return ok
}

// SwitchView shows view id around date. A zero date keeps the current
// anchor. An unavailable view is logged and ignored.
func (m *Manager) SwitchView(id ID, date time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.specs[id]; !ok {
		appLog.Warn("view: unavailable view requested", "view", string(id))
		return false
	}
	if date.IsZero() {
		date = m.state.Anchor
	}
	m.state = m.compute(id, date)
	return true
}

// Navigate moves one page forward or backward.
func (m *Manager) Navigate(forward bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = m.compute(m.state.ID, m.step(m.state, forward))
	return true
}

func (m *Manager) Next() bool     { return m.Navigate(true) }
func (m *Manager) Previous() bool { return m.Navigate(false) }

// GoToToday shows the current view around Now.
func (m *Manager) GoToToday() bool {
	m.mu.Lock()
	now := m.opts.Now()
	m.mu.Unlock()
	return m.UpdateViewDate(now, true)
}

// UpdateViewDate moves the view to date. Unless force is set, nothing is
// recomputed while date is already visible (month views compare against the
// month itself, not the padded grid).
func (m *Manager) UpdateViewDate(date time.Time, force bool) bool {
	if date.IsZero() {
		appLog.Warn("view: ignoring zero view date")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !force {
		first, last := m.state.FirstCellDate, m.state.LastCellDate
		if m.state.ID == Month {
			first, last = m.state.Start, dateutil.EndOfMonth(m.state.Start)
		}
		if dateutil.IsInRange(date, first, last) {
			return false
		}
	}
	m.state = m.compute(m.state.ID, date)
	return true
}

// Broader switches to the next broader available view keeping the anchor.
func (m *Manager) Broader() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target ID
	switch m.state.ID {
	case Day, Days, Week:
		target = m.firstAvailable(Month, Year, Years)
	case Month:
		target = m.firstAvailable(Year, Years)
	case Year:
		target = m.firstAvailable(Years)
	}
	if target == "" {
		return false
	}
	m.state = m.compute(target, m.state.Anchor)
	return true
}

// Narrower drills into date from a year, month or multi-day view.
func (m *Manager) Narrower(date time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if date.IsZero() {
		date = m.state.Anchor
	}
	var target ID
	switch m.state.ID {
	case Years:
		target = m.firstAvailable(Year, Month, Week, Day)
	case Year:
		target = m.firstAvailable(Month, Week, Day)
	case Month:
		target = m.firstAvailable(Week, Day)
	case Week, Days:
		target = m.firstAvailable(Day)
	}
	if target == "" {
		return false
	}
	m.state = m.compute(target, date)
	return true
}

func (m *Manager) firstAvailable(ids ...ID) ID {
	for _, id := range ids {
		if _, ok := m.specs[id]; ok {
			return id
		}
	}
	return ""
}

// Reconfigure applies new options and recomputes the current view. When the
// current view is no longer available the default view is shown.
func (m *Manager) Reconfigure(opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apply(opts)
	id := m.state.ID
	if _, ok := m.specs[id]; !ok {
		appLog.Warn("view: current view removed by configuration", "view", string(id))
		id = m.initialView("")
	}
	anchor := m.state.Anchor
	if anchor.IsZero() {
		anchor = m.opts.Now()
	}
	m.state = m.compute(id, anchor)
}

// SetNarrow marks the viewport as narrow, which allows abbreviated titles.
func (m *Manager) SetNarrow(narrow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.narrow == narrow {
		return
	}
	m.narrow = narrow
	m.state.Title = m.title(m.state)
}

// IsDisabled reports whether day is outside MinDate/MaxDate or disabled.
func (m *Manager) IsDisabled(day time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dayDisabled(dateutil.StartOfDay(day.In(m.opts.Location)))
}
