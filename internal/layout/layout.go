package layout

import (
	"sort"
	"time"

	"calgrid/internal/dateutil"
	"calgrid/internal/events"
	"calgrid/internal/model"
)

// Source answers range queries; events.(*Index).GetInRange satisfies it.
type Source func(start, end time.Time, f events.Filter) []*events.Event

// Options configures the layout engine.
type Options struct {
	// SplitAllDay lays out all-day events apart from timed events.
	SplitAllDay bool
	// Schedules restricts overlap detection to events of the same schedule.
	Schedules bool
}

// Entry is the column assignment of one event within one cell.
type Entry struct {
	// Position is the zero-based column.
	Position int `json:"position"`
	// MaxConcurrent is the column count of the event's overlap group.
	MaxConcurrent int                 `json:"maxConcurrent"`
	OverlapsWith  map[string]struct{} `json:"overlapsWith"`
}

// Result is the layout of one cell.
type Result struct {
	Overlaps      map[string]*Entry
	LongestStreak int
}

// Engine computes per-cell overlap layouts on demand. It holds no state
// between calls.
type Engine struct {
	src  Source
	opts Options
}

func New(src Source, opts Options) *Engine {
	return &Engine{src: src, opts: opts}
}

// SetOptions replaces the options for subsequent layouts.
func (e *Engine) SetOptions(opts Options) {
	e.opts = opts
}

// LayoutCell assigns columns to the foreground events intersecting
// [cellStart, cellEnd).
func (e *Engine) LayoutCell(cellStart, cellEnd time.Time, allDay bool) Result {
	return e.layout(cellStart, cellEnd, "", allDay)
}

// LayoutCellSchedule lays out the events of cell's schedule lane only.
func (e *Engine) LayoutCellSchedule(cell model.Cell, allDay bool) Result {
	return e.layout(cell.Start, cell.End, cell.Schedule, allDay)
}

func (e *Engine) layout(cellStart, cellEnd time.Time, schedule string, allDay bool) Result {
	f := events.Filter{Schedule: schedule, Background: events.Exclude}
	if e.opts.SplitAllDay {
		if allDay {
			f.AllDay = events.Only
		} else {
			f.AllDay = events.Exclude
		}
	}
	return e.assign(e.src(cellStart, cellEnd, f))
}

// assign is a greedy interval colouring: events are visited by start, longest
// first on ties; each takes the lowest column not used by an active event it
// overlaps, and raises the column count of those events to its own.
func (e *Engine) assign(evs []*events.Event) Result {
	sorted := make([]*events.Event, len(evs))
	copy(sorted, evs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		da, db := a.End.Sub(a.Start), b.End.Sub(b.Start)
		if da != db {
			return da > db
		}
		return a.ID < b.ID
	})

	res := Result{Overlaps: make(map[string]*Entry, len(sorted))}
	var active []*events.Event

	for _, ev := range sorted {
		// Evict events that ended.
		kept := active[:0]
		for _, a := range active {
			if a.End.After(ev.Start) {
				kept = append(kept, a)
			}
		}
		active = kept

		entry := &Entry{OverlapsWith: make(map[string]struct{})}
		taken := make(map[int]struct{})
		var overlapping []*Entry
		for _, a := range active {
			if e.opts.Schedules && a.Schedule != ev.Schedule {
				continue
			}
			if !a.Start.Before(ev.End) {
				continue
			}
			ae := res.Overlaps[a.ID]
			taken[ae.Position] = struct{}{}
			overlapping = append(overlapping, ae)
			entry.OverlapsWith[a.ID] = struct{}{}
			ae.OverlapsWith[ev.ID] = struct{}{}
		}

		for entry.Position = 0; ; entry.Position++ {
			if _, used := taken[entry.Position]; !used {
				break
			}
		}

		maxC := len(overlapping) + 1
		for _, ae := range overlapping {
			if ae.MaxConcurrent > maxC {
				maxC = ae.MaxConcurrent
			}
		}
		entry.MaxConcurrent = maxC
		for _, ae := range overlapping {
			ae.MaxConcurrent = maxC
		}

		res.Overlaps[ev.ID] = entry
		active = append(active, ev)
		if maxC > res.LongestStreak {
			res.LongestStreak = maxC
		}
	}

	unifyGroups(res.Overlaps)
	return res
}

// unifyGroups gives every event of a connected overlap group the group's
// largest column count.
func unifyGroups(entries map[string]*Entry) {
	seen := make(map[string]bool, len(entries))
	for id := range entries {
		if seen[id] {
			continue
		}
		var group []*Entry
		maxC := 0
		stack := []string{id}
		seen[id] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			en := entries[cur]
			group = append(group, en)
			if en.MaxConcurrent > maxC {
				maxC = en.MaxConcurrent
			}
			for other := range en.OverlapsWith {
				if !seen[other] {
					seen[other] = true
					stack = append(stack, other)
				}
			}
		}
		for _, en := range group {
			en.MaxConcurrent = maxC
		}
	}
}

// Box is the placement of an event inside a cell, in percent of the cell.
type Box struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
}

// Geometry places ev in a timed cell showing minutes [timeFrom, timeTo) of
// the day. A nil entry takes the full width.
func Geometry(ev *events.Event, entry *Entry, cell model.Cell, timeFrom, timeTo int) Box {
	box := Box{Height: 100, Width: 100}
	if entry != nil && entry.MaxConcurrent > 0 {
		box.Width = 100 / float64(entry.MaxConcurrent)
		box.Left = float64(entry.Position) * box.Width
	}
	if timeTo <= timeFrom || ev.AllDay {
		return box
	}

	day := dateutil.StartOfDay(cell.Start)
	start, end := ev.Start, ev.End
	if start.Before(cell.Start) {
		start = cell.Start
	}
	if end.After(cell.End) {
		end = cell.End
	}
	from := clamp(int(start.Sub(day)/time.Minute), timeFrom, timeTo)
	to := clamp(int((end.Sub(day)+time.Minute-1)/time.Minute), timeFrom, timeTo)

	span := float64(timeTo - timeFrom)
	box.Top = float64(from-timeFrom) / span * 100
	box.Height = float64(to-from) / span * 100
	return box
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
