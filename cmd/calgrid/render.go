package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"calgrid/internal/dateutil"
	"calgrid/internal/engine"
	"calgrid/internal/events"
	"calgrid/internal/ics"
	appLog "calgrid/internal/log"
	"calgrid/internal/layout"
	"calgrid/internal/model"
	"calgrid/internal/view"
)

type placedEvent struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	AllDay        bool       `json:"allDay,omitempty"`
	Background    bool       `json:"background,omitempty"`
	Schedule      string     `json:"schedule,omitempty"`
	Position      int        `json:"position"`
	MaxConcurrent int        `json:"maxConcurrent"`
	Box           layout.Box `json:"box"`
}

type cellOutput struct {
	model.Cell
	Events []placedEvent `json:"events"`
}

type viewOutput struct {
	View          view.ID      `json:"view"`
	Title         string       `json:"title"`
	Start         time.Time    `json:"start"`
	End           time.Time    `json:"end"`
	FirstCellDate time.Time    `json:"firstCellDate"`
	LastCellDate  time.Time    `json:"lastCellDate"`
	Cols          int          `json:"cols"`
	Rows          int          `json:"rows"`
	Cells         []cellOutput `json:"cells"`
}

// refresh fetches every feed and replaces the events of e. Feeds that fail
// keep nothing; the errors are logged by the fetcher.
func refresh(ctx context.Context, e *engine.Engine, f *ics.Fetcher) {
	recs, errs := f.Events(ctx, sources(e.Config()))
	e.SetEvents(recs)
	appLog.Info("feeds refreshed", "events", len(recs), "errors", len(errs))
}

// snapshot lays out every cell of the current view.
func snapshot(e *engine.Engine) viewOutput {
	st := e.State()
	visible := e.VisibleEvents()
	split := e.Config().AllDayEvents

	out := viewOutput{
		View:          st.ID,
		Title:         st.Title,
		Start:         st.Start,
		End:           st.End,
		FirstCellDate: st.FirstCellDate,
		LastCellDate:  st.LastCellDate,
		Cols:          st.Cols,
		Rows:          st.Rows,
	}
	for _, cell := range st.Cells {
		for _, lane := range e.ScheduleCells(cell) {
			out.Cells = append(out.Cells, cellOutput{Cell: lane, Events: place(e, lane, visible, split)})
		}
	}
	return out
}

func place(e *engine.Engine, cell model.Cell, visible []*events.Event, split bool) []placedEvent {
	entries := make(map[string]*layout.Entry)
	passes := []bool{false}
	if split {
		passes = append(passes, true)
	}
	for _, allDay := range passes {
		for id, entry := range e.LayoutCell(cell, allDay).Overlaps {
			entries[id] = entry
		}
	}

	out := []placedEvent{}
	for _, ev := range visible {
		if !dateutil.Overlaps(ev.Start, ev.End, cell.Start, cell.End) {
			continue
		}
		if cell.Schedule != "" && ev.Schedule != cell.Schedule {
			continue
		}
		entry := entries[ev.ID]
		p := placedEvent{
			ID:         ev.ID,
			Title:      ev.Title,
			Start:      ev.Start,
			End:        ev.End,
			AllDay:     ev.AllDay,
			Background: ev.Background,
			Schedule:   ev.Schedule,
			Box:        e.Geometry(ev, entry, cell),
		}
		if entry != nil {
			p.Position, p.MaxConcurrent = entry.Position, entry.MaxConcurrent
		}
		out = append(out, p)
	}
	return out
}

func writeJSON(w io.Writer, v viewOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeText prints one block per cell: the cell label, then one line per
// event with its time span and column.
func writeText(w io.Writer, v viewOutput) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  [%s]\n", v.Title, v.View)
	for _, c := range v.Cells {
		if len(c.Events) == 0 && c.OutOfScope {
			continue
		}
		fmt.Fprintf(&b, "\n%s", cellLabel(v.View, c.Cell))
		var flags []string
		if c.Today {
			flags = append(flags, "today")
		}
		if c.Disabled {
			flags = append(flags, "disabled")
		}
		if c.OutOfScope {
			flags = append(flags, "out of scope")
		}
		if len(flags) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(flags, ", "))
		}
		b.WriteString("\n")
		for _, ev := range c.Events {
			span := ev.Start.Format("15:04") + "-" + ev.End.Format("15:04")
			if ev.AllDay {
				span = "all day"
			}
			col := ""
			if ev.MaxConcurrent > 1 {
				col = fmt.Sprintf("  [%d/%d]", ev.Position+1, ev.MaxConcurrent)
			}
			fmt.Fprintf(&b, "  %-11s  %s%s\n", span, ev.Title, col)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func cellLabel(id view.ID, c model.Cell) string {
	var label string
	switch id {
	case view.Years:
		label = dateutil.Format(c.Start, "YYYY")
	case view.Year:
		label = dateutil.Format(c.Start, "MMMM YYYY")
	default:
		label = dateutil.Format(c.Start, "ddd D MMM")
	}
	if c.Schedule != "" {
		label += " / " + c.Schedule
	}
	return label
}
