package interact

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"calgrid/internal/dateutil"
	"calgrid/internal/emit"
	"calgrid/internal/events"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// MIMEType is the drag channel format of the event payload.
const MIMEType = "application/x-calgrid-event+json"

// DataTransfer is the platform drag channel.
type DataTransfer interface {
	SetData(format string, data []byte)
	GetData(format string) ([]byte, bool)
}

// Transfer is an in-memory DataTransfer.
type Transfer struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (t *Transfer) SetData(format string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data == nil {
		t.data = make(map[string][]byte)
	}
	t.data[format] = append([]byte(nil), data...)
}

func (t *Transfer) GetData(format string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.data[format]
	return d, ok
}

// dragMeta is the minimal snapshot a receiving instance needs.
type dragMeta struct {
	ID       string `json:"id"`
	Duration int    `json:"duration"`
	Instance string `json:"instance,omitempty"`
}

// payload is the event record plus its snapshot under "_".
type payload struct {
	model.Event
	Meta dragMeta `json:"_"`
}

// DragSession coordinates a drag between calendar instances. Share one
// session between every controller that should accept the others' events.
type DragSession struct {
	mu      sync.Mutex
	source  *Controller
	eventID string
}

func NewDragSession() *DragSession {
	return &DragSession{}
}

// Active reports the instance and event of the drag in progress.
func (s *DragSession) Active() (instance, eventID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return "", "", false
	}
	return s.source.options().Instance, s.eventID, true
}

func (s *DragSession) start(c *Controller, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source, s.eventID = c, id
}

func (s *DragSession) sourceOf(id string) *Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventID != id {
		return nil
	}
	return s.source
}

func (s *DragSession) finish(c *Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == c {
		s.source, s.eventID = nil, ""
	}
}

// DragStart writes ev to dt and registers the drag with the session. The
// press gesture of p, if any, ends without a click.
func (c *Controller) DragStart(ev *events.Event, dt DataTransfer, p Pointer) bool {
	opts := c.options()
	if !canDrag(ev, opts) {
		appLog.Debug("drag refused", "id", ev.ID)
		return false
	}

	data, err := json.Marshal(payload{
		Event: ev.Record(),
		Meta:  dragMeta{ID: ev.ID, Duration: ev.Duration, Instance: opts.Instance},
	})
	if err != nil {
		appLog.Error("drag payload encoding failed", err, "id", ev.ID)
		return false
	}
	dt.SetData(MIMEType, data)

	c.mu.Lock()
	c.dragging = ev
	g := c.gestures[p.ID]
	c.mu.Unlock()
	if g != nil {
		c.end(g)
	}
	if opts.Session != nil {
		opts.Session.start(c, ev.ID)
	}

	c.bus.Emit(emit.Notification{Name: emit.EventDragStart, Event: ev, Date: ev.Start, Instance: opts.Instance})
	return true
}

// Drop moves the event carried by dt to the pointer position, keeping its
// duration. An event dragged from another instance is inserted here and
// detached from its source once the drop hook accepts. Drop blocks on the
// hook and returns the moved event, or nil.
func (c *Controller) Drop(ctx context.Context, dt DataTransfer, p Pointer) *events.Event {
	c.dropMu.Lock()
	defer c.dropMu.Unlock()

	opts := c.options()
	data, ok := dt.GetData(MIMEType)
	if !ok {
		appLog.Warn("drop ignored: no event payload")
		return nil
	}
	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		appLog.Error("drop ignored", errors.Wrap(err, "decode drag payload"))
		return nil
	}
	id := pl.Meta.ID
	if id == "" {
		id = pl.ID
	}
	dur := time.Duration(pl.Meta.Duration) * time.Minute
	if dur <= 0 {
		dur = pl.End.Sub(pl.Start)
	}
	if dur <= 0 {
		appLog.Warn("drop ignored: payload has no duration", "id", id)
		return nil
	}

	var src *Controller
	if opts.Session != nil {
		if s := opts.Session.sourceOf(id); s != c {
			src = s
		}
	}
	local, isLocal := c.idx.GetByID(id)
	external := src != nil || !isLocal

	rec := pl.Event
	var original *events.Event
	if external {
		rec.StartText, rec.EndText = "", ""
		original = &events.Event{Event: pl.Event}
	} else {
		rec = local.Record()
		original = local
	}
	before := rec

	start := c.dropStart(p, rec.Start)
	rec.Start, rec.End = start, start.Add(dur)
	if p.Cell.Schedule != "" {
		rec.Schedule = p.Cell.Schedule
	}

	srcInstance := pl.Meta.Instance
	if hook := opts.Hooks.Drop; hook != nil {
		d, err := hook(ctx, DropInfo{Event: rec, Original: before, Cell: p.Cell, External: external, Source: srcInstance})
		d, ok := resolve("drop", d, err)
		if !ok {
			return nil
		}
		if r, replaced := d.Replacement(); replaced {
			rec = Merge(rec, r)
		}
	}

	var ev *events.Event
	if external {
		if _, taken := c.idx.GetByID(rec.ID); taken {
			rec.ID = ""
		}
		got := c.idx.Upsert(rec)
		if len(got) == 0 {
			return nil
		}
		ev = got[0]
		if src != nil {
			src.idx.Delete(id, events.StageDetach)
		}
	} else {
		var err error
		ev, err = c.idx.Update(local.ID, func(r *model.Event) { *r = rec })
		if err != nil {
			return nil
		}
	}

	cell := p.Cell
	c.bus.Emit(emit.Notification{
		Name:     emit.EventDropped,
		Event:    ev,
		Original: original,
		Cell:     &cell,
		Date:     ev.Start,
		Instance: opts.Instance,
		Source:   srcInstance,
	})
	return ev
}

// DragEnd closes the drag started by DragStart, dropped or not.
func (c *Controller) DragEnd() {
	c.mu.Lock()
	ev := c.dragging
	c.dragging = nil
	opts := c.opts
	c.mu.Unlock()

	if ev == nil {
		return
	}
	if opts.Session != nil {
		opts.Session.finish(c)
	}
	c.bus.Emit(emit.Notification{Name: emit.EventDragEnd, Event: ev, Instance: opts.Instance})
}

// dropStart is the pointer time in a timed cell. Cells without a time axis
// keep the original time of day.
func (c *Controller) dropStart(p Pointer, orig time.Time) time.Time {
	if p.DayOnly {
		d := dateutil.StartOfDay(p.Cell.Start)
		o := orig.In(d.Location())
		return time.Date(d.Year(), d.Month(), d.Day(), o.Hour(), o.Minute(), 0, 0, d.Location())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap(c.timeAt(p))
}

func canDrag(ev *events.Event, opts Options) bool {
	switch {
	case !opts.Editable.Drag, ev.Background, ev.OccurrenceOf != "":
		return false
	}
	return model.Allowed(ev.Draggable, true)
}

// Merge returns base with every non-zero field of over applied.
func Merge(base, over model.Event) model.Event {
	out := base
	if over.ID != "" {
		out.ID = over.ID
	}
	if !over.Start.IsZero() {
		out.Start = over.Start
	}
	if !over.End.IsZero() {
		out.End = over.End
	}
	if over.Title != "" {
		out.Title = over.Title
	}
	if over.Content != "" {
		out.Content = over.Content
	}
	if over.Class != "" {
		out.Class = over.Class
	}
	if over.Schedule != "" {
		out.Schedule = over.Schedule
	}
	if over.Background {
		out.Background = true
	}
	if over.AllDay {
		out.AllDay = true
	}
	if over.Deletable != nil {
		out.Deletable = over.Deletable
	}
	if over.Resizable != nil {
		out.Resizable = over.Resizable
	}
	if over.Draggable != nil {
		out.Draggable = over.Draggable
	}
	return out
}
