package view

import (
	"time"

	"calgrid/internal/dateutil"
	"calgrid/internal/model"
)

// compute derives the window, cells and title of view id around anchor.
func (m *Manager) compute(id ID, anchor time.Time) State {
	spec := m.specs[id]
	anchor = dateutil.StartOfDay(anchor.In(m.opts.Location))
	st := State{ID: id, Anchor: anchor, Cols: spec.Cols, Rows: spec.Rows}
	slots := spec.Cols * spec.Rows

	switch id {
	case Day:
		st.Anchor = m.visibleFrom(anchor, 1)
		st.Start = st.Anchor
		st.End = dateutil.NextDay(st.Start)
		st.Cells = m.dayCells(st.Start, slots, nil)

	case Days:
		st.Start = m.visibleFrom(anchor, 1)
		st.End = st.Start.AddDate(0, 0, slots)
		st.Cells = m.dayCells(st.Start, slots, nil)
		st.Cols = (len(st.Cells) + st.Rows - 1) / st.Rows

	case Week:
		st.Start = dateutil.StartOfWeek(anchor, m.opts.StartWeekOnSunday)
		st.End = st.Start.AddDate(0, 0, slots)
		st.Cells = m.dayCells(st.Start, slots, nil)
		st.Cols -= m.hiddenCount()

	case Month:
		st.Start = dateutil.StartOfMonth(anchor)
		st.End = st.Start.AddDate(0, 1, 0)
		first := dateutil.StartOfWeek(st.Start, m.opts.StartWeekOnSunday)
		st.Cells = m.dayCells(first, slots, func(d time.Time) bool {
			return d.Before(st.Start) || !d.Before(st.End)
		})
		st.Cols -= m.hiddenCount()

	case Year:
		st.Start = dateutil.StartOfYear(anchor)
		st.End = st.Start.AddDate(1, 0, 0)
		for i := 0; i < slots; i++ {
			start := st.Start.AddDate(0, i, 0)
			st.Cells = append(st.Cells, m.rangeCell(start, start.AddDate(0, 1, 0)))
		}

	case Years:
		first := floorDiv(anchor.Year(), slots) * slots
		st.Start = time.Date(first, time.January, 1, 0, 0, 0, 0, m.opts.Location)
		st.End = st.Start.AddDate(slots, 0, 0)
		for i := 0; i < slots; i++ {
			start := st.Start.AddDate(i, 0, 0)
			st.Cells = append(st.Cells, m.rangeCell(start, start.AddDate(1, 0, 0)))
		}
	}

	if len(st.Cells) == 0 {
		// A narrow window may fall entirely on hidden days.
		st.Cells = []model.Cell{m.dayCell(st.Start)}
	}
	st.FirstCellDate = st.Cells[0].Start
	st.LastCellDate = st.Cells[len(st.Cells)-1].End.Add(-time.Millisecond)
	st.Title = m.title(st)
	return st
}

// step returns the anchor one page away from st.
func (m *Manager) step(st State, forward bool) time.Time {
	dir := 1
	if !forward {
		dir = -1
	}
	spec := m.specs[st.ID]

	switch st.ID {
	case Day:
		return m.visibleFrom(st.Start.AddDate(0, 0, dir), dir)
	case Days, Week:
		return st.Start.AddDate(0, 0, dir*spec.Cols*spec.Rows)
	case Month:
		return st.Start.AddDate(0, dir, 0)
	case Year:
		return st.Start.AddDate(dir, 0, 0)
	case Years:
		return st.Start.AddDate(dir*spec.Cols*spec.Rows, 0, 0)
	}
	return st.Start
}

// dayCells returns one cell per visible day of the n days from first.
func (m *Manager) dayCells(first time.Time, n int, outOfScope func(time.Time) bool) []model.Cell {
	cells := make([]model.Cell, 0, n)
	for i := 0; i < n; i++ {
		d := first.AddDate(0, 0, i)
		if m.hidden[d.Weekday()] {
			continue
		}
		c := m.dayCell(d)
		if outOfScope != nil {
			c.OutOfScope = outOfScope(d)
		}
		cells = append(cells, c)
	}
	return cells
}

func (m *Manager) dayCell(d time.Time) model.Cell {
	return model.Cell{
		Start:    d,
		End:      dateutil.NextDay(d),
		Disabled: m.dayDisabled(d),
		Today:    dateutil.SameDay(d, m.opts.Now().In(m.opts.Location)),
	}
}

// rangeCell builds a month or year cell. It is disabled when it lies
// entirely outside MinDate/MaxDate.
func (m *Manager) rangeCell(start, end time.Time) model.Cell {
	now := m.opts.Now().In(m.opts.Location)
	c := model.Cell{Start: start, End: end, Today: !now.Before(start) && now.Before(end)}
	if min := m.opts.MinDate; !min.IsZero() && !end.After(dateutil.StartOfDay(min.In(m.opts.Location))) {
		c.Disabled = true
	}
	if max := m.opts.MaxDate; !max.IsZero() && start.After(dateutil.EndOfDay(max.In(m.opts.Location))) {
		c.Disabled = true
	}
	return c
}

func (m *Manager) dayDisabled(d time.Time) bool {
	if min := m.opts.MinDate; !min.IsZero() && d.Before(dateutil.StartOfDay(min.In(m.opts.Location))) {
		return true
	}
	if max := m.opts.MaxDate; !max.IsZero() && d.After(dateutil.StartOfDay(max.In(m.opts.Location))) {
		return true
	}
	_, off := m.disabled[dateutil.DayKey(d)]
	return off
}

// visibleFrom returns d, or the nearest day in direction dir that is not
// hidden.
func (m *Manager) visibleFrom(d time.Time, dir int) time.Time {
	for i := 0; i < 7 && m.hidden[d.Weekday()]; i++ {
		d = d.AddDate(0, 0, dir)
	}
	return d
}

func (m *Manager) hiddenCount() int {
	return len(m.hidden)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
