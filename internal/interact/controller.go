package interact

import (
	"context"
	"math"
	"sync"
	"time"

	"calgrid/internal/dateutil"
	"calgrid/internal/emit"
	"calgrid/internal/events"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// Editable toggles the gestures allowed on events.
type Editable struct {
	Create bool `yaml:"create" json:"create"`
	Drag   bool `yaml:"drag" json:"drag"`
	Resize bool `yaml:"resize" json:"resize"`
	Delete bool `yaml:"delete" json:"delete"`
}

// AllEditable enables every gesture.
func AllEditable() Editable {
	return Editable{Create: true, Drag: true, Resize: true, Delete: true}
}

// Binder attaches and detaches the document-level move/up listeners of a
// pointer. Attach is called when a gesture begins, Detach exactly once when
// it ends.
type Binder interface {
	Attach(pointerID int)
	Detach(pointerID int)
}

// Pointer is one pointer sample.
type Pointer struct {
	ID   int
	X, Y float64

	// Cell is the cell under the pointer and CellY the vertical position
	// within it, from 0 (top) to 1 (bottom).
	Cell  model.Cell
	CellY float64
	// DayOnly marks cells without a time axis (month view, all-day bar).
	DayOnly bool

	Time time.Time
}

// Options configures a Controller.
type Options struct {
	// TimeFrom / TimeTo are the minutes of day shown by timed cells.
	TimeFrom int
	TimeTo   int

	SnapToInterval int
	Editable       Editable
	// CreateMinDrag is the distance in pixels a press must travel before it
	// becomes a create gesture.
	CreateMinDrag float64

	HoldDelay   time.Duration
	ClickWindow time.Duration

	Hooks   Hooks
	Session *DragSession
	// Instance names this calendar in cross-instance drags.
	Instance string
	Binder   Binder
}

type gestureKind int

const (
	pressCell gestureKind = iota
	pressEvent
	creating
	resizing
)

type gesture struct {
	kind gestureKind
	down Pointer

	event    *events.Event
	original model.Event
	// preview is the last position the hooks accepted. pending is the
	// latest pointer position; seq counts pending positions and vetted is
	// the seq the resize hook last ran on.
	preview model.Event
	pending model.Event
	seq     int
	vetted  int

	moved bool
	held  bool

	// hookMu keeps the hooks of one gesture sequential.
	hookMu sync.Mutex
}

type click struct {
	target string
	at     time.Time
}

// Controller turns pointer input into index mutations and notifications.
// Gestures are tracked per pointer; hooks run without holding any lock.
type Controller struct {
	mu       sync.Mutex
	idx      *events.Index
	opts     Options
	bus      *emit.Bus
	gestures map[int]*gesture
	last     click
	dragging *events.Event

	// dropMu keeps drop resolutions sequential.
	dropMu sync.Mutex
}

func New(idx *events.Index, opts Options, bus *emit.Bus) *Controller {
	return &Controller{
		idx:      idx,
		opts:     opts,
		bus:      bus,
		gestures: make(map[int]*gesture),
	}
}

// SetOptions replaces the options. Gestures in progress keep running.
func (c *Controller) SetOptions(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
}

func (c *Controller) options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Active returns the number of gestures in progress.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.gestures)
}

// CellPointerDown starts a press on an empty cell area. Moving past
// CreateMinDrag turns it into a create gesture.
func (c *Controller) CellPointerDown(p Pointer) {
	c.begin(&gesture{kind: pressCell, down: p})
}

// EventPointerDown starts a press on ev. With onHandle set, and resizing
// allowed, it starts a resize of ev's end edge and returns true.
func (c *Controller) EventPointerDown(ev *events.Event, p Pointer, onHandle bool) bool {
	g := &gesture{kind: pressEvent, down: p, event: ev, original: ev.Record()}
	if onHandle && c.canResize(ev) {
		g.kind = resizing
		g.preview = g.original
		g.pending = g.original
	}
	c.begin(g)
	return g.kind == resizing
}

func (c *Controller) begin(g *gesture) {
	id := g.down.ID
	c.mu.Lock()
	_, replaced := c.gestures[id]
	c.gestures[id] = g
	binder := c.opts.Binder
	c.mu.Unlock()

	if binder != nil {
		if replaced {
			binder.Detach(id)
		}
		binder.Attach(id)
	}
}

// end forgets g and detaches its listeners, unless a newer gesture already
// took the pointer over.
func (c *Controller) end(g *gesture) {
	id := g.down.ID
	c.mu.Lock()
	current := c.gestures[id] == g
	if current {
		delete(c.gestures, id)
	}
	binder := c.opts.Binder
	c.mu.Unlock()

	if current && binder != nil {
		binder.Detach(id)
	}
}

// PointerMove updates the gesture of p. A resize hook, when set, vets new
// positions one at a time; positions it rejects are not shown. Positions that
// arrive while the hook runs are vetted once it returns, newest first, and a
// verdict on a superseded position is dropped.
func (c *Controller) PointerMove(ctx context.Context, p Pointer) {
	c.mu.Lock()
	g, ok := c.gestures[p.ID]
	if !ok {
		c.mu.Unlock()
		return
	}
	dist := distance(g.down, p)
	if dist > 0 {
		g.moved = true
	}

	switch g.kind {
	case pressCell:
		if c.opts.Editable.Create && !g.held && dist > 0 && dist >= c.opts.CreateMinDrag {
			g.kind = creating
		}
		if g.kind == creating {
			g.preview = c.placeholder(g.down, p)
		}
		c.mu.Unlock()
		return
	case creating:
		g.preview = c.placeholder(g.down, p)
		c.mu.Unlock()
		return
	case resizing:
	default:
		c.mu.Unlock()
		return
	}

	if g.held {
		c.mu.Unlock()
		return
	}
	g.pending = c.resized(g, p)
	g.seq++
	if c.opts.Hooks.Resize == nil {
		g.preview = g.pending
		g.vetted = g.seq
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if !g.hookMu.TryLock() {
		// The hook is busy; its caller picks the position up.
		return
	}
	defer g.hookMu.Unlock()

	for {
		c.mu.Lock()
		seq, candidate := g.seq, g.pending
		hook := c.opts.Hooks.Resize
		c.mu.Unlock()
		if hook == nil {
			return
		}

		ev, ok := vetResize(ctx, hook, candidate, g.original)

		c.mu.Lock()
		newest := g.seq == seq
		if newest {
			g.vetted = seq
			if ok {
				g.preview = ev
			}
		}
		c.mu.Unlock()
		if newest {
			return
		}
	}
}

// vetResize runs hook on candidate and returns the accepted position.
func vetResize(ctx context.Context, hook ResizeHook, candidate, original model.Event) (model.Event, bool) {
	d, err := hook(ctx, candidate, original)
	if _, ok := resolve("resize", d, err); !ok {
		return model.Event{}, false
	}
	if r, replaced := d.Replacement(); replaced {
		return r, true
	}
	return candidate, true
}

// PointerUp ends the gesture of p. Create and resize gestures are committed
// once their hook accepts; PointerUp blocks on the hook. It returns the
// created or updated event, or nil.
func (c *Controller) PointerUp(ctx context.Context, p Pointer) *events.Event {
	c.mu.Lock()
	g, ok := c.gestures[p.ID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	if distance(g.down, p) > 0 {
		g.moved = true
	}
	hold, held := c.checkHold(g, p.Time)
	c.mu.Unlock()
	defer c.end(g)

	if held {
		c.bus.Emit(hold)
	}
	if g.held {
		return nil
	}

	switch g.kind {
	case pressCell:
		c.click(g, p)
	case pressEvent:
		if !g.moved {
			c.click(g, p)
		}
	case creating:
		return c.commitCreate(ctx, g)
	case resizing:
		return c.commitResize(ctx, g)
	}
	return nil
}

// PointerCancel abandons the gesture of pointerID without committing it.
func (c *Controller) PointerCancel(pointerID int) {
	c.mu.Lock()
	g, ok := c.gestures[pointerID]
	c.mu.Unlock()
	if ok {
		c.end(g)
	}
}

// Tick fires hold notifications for presses held still for HoldDelay.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	var fired []emit.Notification
	for _, g := range c.gestures {
		if n, ok := c.checkHold(g, now); ok {
			fired = append(fired, n)
		}
	}
	c.mu.Unlock()

	for _, n := range fired {
		c.bus.Emit(n)
	}
}

// Preview returns the live placeholder of a create gesture, or the last
// accepted position of a resize.
func (c *Controller) Preview(pointerID int) (model.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.gestures[pointerID]
	if !ok || (g.kind != creating && g.kind != resizing) {
		return model.Event{}, false
	}
	return g.preview, true
}

// DeleteEvent deletes id at stage when deletion is enabled. event-delete is
// emitted once the event is gone.
func (c *Controller) DeleteEvent(id string, stage events.DeleteStage) bool {
	if !c.options().Editable.Delete {
		appLog.Info("event delete refused: deletion disabled", "id", id)
		return false
	}
	ev, ok := c.idx.GetByID(id)
	if !ok {
		appLog.Warn("event delete ignored", "id", id, "error", events.ErrNotFound)
		return false
	}
	if !ev.Delete(stage) {
		return false
	}
	if _, still := c.idx.GetByID(ev.ID); !still {
		c.bus.Emit(emit.Notification{Name: emit.EventDelete, Event: ev})
	}
	return true
}

// checkHold must be called with c.mu held.
func (c *Controller) checkHold(g *gesture, now time.Time) (emit.Notification, bool) {
	delay := c.opts.HoldDelay
	if g.held || g.moved || delay <= 0 || now.IsZero() || g.down.Time.IsZero() {
		return emit.Notification{}, false
	}
	if now.Sub(g.down.Time) < delay {
		return emit.Notification{}, false
	}
	g.held = true

	cell := g.down.Cell
	n := emit.Notification{Name: emit.CellHold, Cell: &cell, Date: c.timeAt(g.down), Instance: c.opts.Instance}
	if g.event != nil {
		n.Name = emit.EventHold
		n.Event = g.event
	}
	return n, true
}

// click reports a click, or a double click when the same target was clicked
// within ClickWindow.
func (c *Controller) click(g *gesture, p Pointer) {
	cell := g.down.Cell
	target := "cell:" + cell.Start.String() + "/" + cell.Schedule
	single, double := emit.CellClick, emit.CellDblClick
	if g.event != nil {
		target = "event:" + g.event.ID
		single, double = emit.EventClick, emit.EventDblClick
	}

	c.mu.Lock()
	window := c.opts.ClickWindow
	dbl := c.last.target == target && window > 0 && !p.Time.IsZero() &&
		p.Time.Sub(c.last.at) <= window
	if dbl {
		c.last = click{}
	} else {
		c.last = click{target: target, at: p.Time}
	}
	n := emit.Notification{Name: single, Event: g.event, Cell: &cell, Date: c.timeAt(g.down), Instance: c.opts.Instance}
	c.mu.Unlock()

	if dbl {
		n.Name = double
	}
	c.bus.Emit(n)
}

func (c *Controller) commitCreate(ctx context.Context, g *gesture) *events.Event {
	g.hookMu.Lock()
	defer g.hookMu.Unlock()

	c.mu.Lock()
	rec := g.preview
	hook := c.opts.Hooks.Create
	instance := c.opts.Instance
	c.mu.Unlock()

	var ev *events.Event
	if hook != nil {
		d, err := hook(ctx, rec)
		d, ok := resolve("create", d, err)
		if !ok {
			return nil
		}
		if r, replaced := d.Replacement(); replaced {
			var err error
			if ev, err = c.idx.Insert(r); err != nil {
				appLog.Warn("create replacement refused", "id", r.ID, "error", err)
				return nil
			}
		}
	}
	if ev == nil {
		var err error
		if ev, err = c.idx.Create(rec); err != nil {
			return nil
		}
	}

	cell := g.down.Cell
	c.bus.Emit(emit.Notification{Name: emit.EventCreated, Event: ev, Cell: &cell, Date: ev.Start, Instance: instance})
	return ev
}

func (c *Controller) commitResize(ctx context.Context, g *gesture) *events.Event {
	g.hookMu.Lock()
	defer g.hookMu.Unlock()

	c.mu.Lock()
	final := g.preview
	pending, unvetted := g.pending, g.seq != g.vetted
	vet := c.opts.Hooks.Resize
	hook := c.opts.Hooks.ResizeEnd
	instance := c.opts.Instance
	c.mu.Unlock()

	orig := g.original
	if unvetted {
		if vet == nil {
			final = pending
		} else if ev, ok := vetResize(ctx, vet, pending, orig); ok {
			final = ev
		}
	}
	if final.End.Sub(final.Start) < time.Minute {
		appLog.Info("resize rolled back: duration under one minute", "id", orig.ID)
		return nil
	}
	if final.Start.Equal(orig.Start) && final.End.Equal(orig.End) {
		return nil
	}

	replace := false
	if hook != nil {
		d, err := hook(ctx, final, orig)
		d, ok := resolve("resize-end", d, err)
		if !ok {
			return nil
		}
		if r, replaced := d.Replacement(); replaced {
			final, replace = r, true
		}
	}

	ev, err := c.idx.Update(g.event.BaseID(), func(rec *model.Event) {
		if replace {
			*rec = final
			return
		}
		rec.Start, rec.End = final.Start, final.End
	})
	if err != nil {
		return nil
	}

	c.bus.Emit(emit.Notification{Name: emit.EventResizeEnd, Event: ev, Original: g.event, Date: ev.End, Instance: instance})
	return ev
}

// placeholder spans from the press to the pointer's height in the pressed
// cell. Both edges snap; the end is at least one interval after the start.
func (c *Controller) placeholder(down, p Pointer) model.Event {
	a := c.snap(c.timeAt(down))
	b := c.snap(c.timeAt(Pointer{Cell: down.Cell, CellY: p.CellY}))
	if b.Before(a) {
		a, b = b, a
	}
	if !b.After(a) {
		step := c.opts.SnapToInterval
		if step <= 0 {
			step = 1
		}
		b = a.Add(time.Duration(step) * time.Minute)
	}
	return model.Event{Start: a, End: b, Schedule: down.Cell.Schedule}
}

// resized moves the end edge of g's event to the pointer, which may be over
// another cell. Edges swap when the pointer crosses the start.
func (c *Controller) resized(g *gesture, p Pointer) model.Event {
	edge := c.snap(c.timeAt(p))
	rec := g.original
	if edge.Before(rec.Start) {
		rec.Start, rec.End = edge, g.original.Start
	} else {
		rec.End = edge
	}
	return rec
}

// timeAt converts p's height in its cell to a time within TimeFrom..TimeTo.
func (c *Controller) timeAt(p Pointer) time.Time {
	from, to := c.opts.TimeFrom, c.opts.TimeTo
	if to <= from {
		from, to = 0, dateutil.MinutesPerDay
	}
	y := math.Max(0, math.Min(1, p.CellY))
	m := from + int(math.Round(y*float64(to-from)))
	return dateutil.AtMinutes(p.Cell.Start, m)
}

func (c *Controller) snap(t time.Time) time.Time {
	return dateutil.SnapToInterval(t, c.opts.SnapToInterval)
}

func (c *Controller) canResize(ev *events.Event) bool {
	opts := c.options()
	switch {
	case !opts.Editable.Resize, ev.Background, ev.AllDay, ev.OccurrenceOf != "":
		return false
	}
	return model.Allowed(ev.Resizable, true)
}

func distance(a, b Pointer) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
