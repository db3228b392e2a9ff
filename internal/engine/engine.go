// Package engine wires the event index, the view state machine, the overlap
// layout and the interaction controller behind one host-facing context.
package engine

import (
	"sync"
	"time"

	"calgrid/internal/config"
	"calgrid/internal/dateutil"
	"calgrid/internal/emit"
	"calgrid/internal/events"
	"calgrid/internal/interact"
	"calgrid/internal/layout"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
	"calgrid/internal/view"
)

// Option customizes an Engine at construction.
type Option func(*Engine)

// WithNow replaces the clock used for "today".
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHooks installs the accept/reject hooks of the editing gestures.
func WithHooks(h interact.Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithSession joins a drag session shared with other engines.
func WithSession(s *interact.DragSession, instance string) Option {
	return func(e *Engine) {
		e.session = s
		e.instance = instance
	}
}

// WithBinder receives attach/detach calls for document-level listeners.
func WithBinder(b interact.Binder) Option {
	return func(e *Engine) { e.binder = b }
}

// WithNewID replaces the id generator of the index.
func WithNewID(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// Engine is one calendar instance. It is safe for concurrent use; every
// notification goes through the bus returned by Subscribe.
type Engine struct {
	mu  sync.Mutex
	cfg *config.Config

	bus    *emit.Bus
	idx    *events.Index
	views  *view.Manager
	layout *layout.Engine
	ctrl   *interact.Controller

	// records are the host's records as last given, kept up to date with
	// gesture edits, so that Reconfigure can re-ingest them.
	records map[string]model.Event
	order   []string

	selected time.Time

	now      func() time.Time
	hooks    interact.Hooks
	session  *interact.DragSession
	instance string
	binder   interact.Binder
	newID    func() string

	unsubscribe func()
}

// New builds an engine from cfg. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		cfg:     cfg,
		bus:     &emit.Bus{},
		records: make(map[string]model.Event),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.idx = events.NewIndex(e.indexOptions(cfg))
	e.views = view.NewManager(e.viewOptions(cfg))
	e.layout = layout.New(e.idx.GetInRange, layoutOptions(cfg))
	e.ctrl = interact.New(e.idx, e.interactOptions(cfg), e.bus)
	e.unsubscribe = e.idx.Subscribe(e.onChange)

	appLog.Debug("engine ready", "view", string(e.views.State().ID), "instance", e.instance)
	return e
}

// Close detaches the engine from its index.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}

func (e *Engine) Subscribe(fn emit.Listener) func() {
	return e.bus.Subscribe(fn)
}

func (e *Engine) Index() *events.Index { return e.idx }

func (e *Engine) Controller() *interact.Controller { return e.ctrl }

func (e *Engine) View() *view.Manager { return e.views }

// Config returns the configuration in use.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetEvents replaces the event corpus with records and raises a single
// update:events.
func (e *Engine) SetEvents(records []model.Event) []*events.Event {
	e.mu.Lock()
	e.records = make(map[string]model.Event, len(records))
	e.order = e.order[:0]
	e.mu.Unlock()

	added := e.idx.Replace(records...)

	given := make(map[string]model.Event, len(records))
	for _, rec := range records {
		if rec.ID != "" {
			given[rec.ID] = rec
		}
	}
	e.mu.Lock()
	for _, ev := range added {
		if _, edited := e.records[ev.ID]; edited {
			continue
		}
		// Keep the host's bounds; normalization may have cut them.
		rec, ok := given[ev.ID]
		if !ok {
			rec = ev.Record()
		}
		e.remember(rec)
	}
	e.mu.Unlock()

	e.bus.Emit(emit.Notification{Name: emit.UpdateEvents, Events: e.idx.All(), Instance: e.instance})
	return added
}

// Reconfigure applies cfg to every component, re-ingests the records and
// shows the resulting view.
func (e *Engine) Reconfigure(cfg *config.Config) {
	if cfg == nil {
		return
	}
	prev := e.views.State()

	e.mu.Lock()
	e.cfg = cfg
	records := make([]model.Event, 0, len(e.order))
	for _, id := range e.order {
		records = append(records, e.records[id])
	}
	e.mu.Unlock()

	e.idx.SetOptions(e.indexOptions(cfg))
	e.layout.SetOptions(layoutOptions(cfg))
	e.ctrl.SetOptions(e.interactOptions(cfg))
	e.views.Reconfigure(e.viewOptions(cfg))

	e.idx.Replace(records...)

	appLog.Info("engine reconfigured", "view", string(e.views.State().ID), "events", len(records))
	e.bus.Emit(emit.Notification{Name: emit.UpdateEvents, Events: e.idx.All(), Instance: e.instance})
	e.emitView(prev, true)
}

// remember records rec as the latest host value of its id. Callers hold mu.
func (e *Engine) remember(rec model.Event) {
	if _, ok := e.records[rec.ID]; !ok {
		e.order = append(e.order, rec.ID)
	}
	e.records[rec.ID] = rec
}

func (e *Engine) forget(id string) {
	if _, ok := e.records[id]; !ok {
		return
	}
	delete(e.records, id)
	for i, o := range e.order {
		if o == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// onChange mirrors index mutations other than Replace into the records and
// raises update:events.
func (e *Engine) onChange(c events.Change) {
	if c.Replaced {
		return
	}

	e.mu.Lock()
	switch c.Kind {
	case events.Created, events.Updated:
		if c.Previous != nil && c.Previous.ID != c.Event.ID {
			e.forget(c.Previous.ID)
		}
		e.remember(c.Event.Record())
	case events.Deleted, events.Detached:
		e.forget(c.Event.ID)
	default:
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.bus.Emit(emit.Notification{Name: emit.UpdateEvents, Event: c.Event, Events: e.idx.All(), Instance: e.instance})
}

// SwitchView shows view id around date; a zero date keeps the anchor.
func (e *Engine) SwitchView(id view.ID, date time.Time) bool {
	return e.change(func() bool { return e.views.SwitchView(id, date) })
}

func (e *Engine) Next() bool     { return e.change(e.views.Next) }
func (e *Engine) Previous() bool { return e.change(e.views.Previous) }

func (e *Engine) GoToToday() bool {
	return e.change(e.views.GoToToday)
}

// UpdateViewDate moves the view to date unless it is already visible, or
// always when force is set.
func (e *Engine) UpdateViewDate(date time.Time, force bool) bool {
	return e.change(func() bool { return e.views.UpdateViewDate(date, force) })
}

// Broader and Narrower drill out of and into the current view.
func (e *Engine) Broader() bool { return e.change(e.views.Broader) }

func (e *Engine) Narrower(date time.Time) bool {
	return e.change(func() bool { return e.views.Narrower(date) })
}

// SetNarrow marks the viewport as narrow, which may shorten the title.
func (e *Engine) SetNarrow(narrow bool) {
	e.views.SetNarrow(narrow)
}

// SelectDate selects the day of date and brings it into view. Disabled days
// cannot be selected.
func (e *Engine) SelectDate(date time.Time) bool {
	if date.IsZero() {
		return false
	}
	if e.views.IsDisabled(date) {
		appLog.Debug("disabled date not selectable", "date", date.Format(dateutil.DayKeyLayout))
		return false
	}
	day := dateutil.StartOfDay(date.In(e.Config().Location()))

	e.mu.Lock()
	same := day.Equal(e.selected)
	e.selected = day
	e.mu.Unlock()

	e.UpdateViewDate(day, false)
	if !same {
		e.bus.Emit(emit.Notification{Name: emit.UpdateSelectedDate, Date: day, Instance: e.instance})
	}
	return true
}

// Selected returns the selected day, zero when none.
func (e *Engine) Selected() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

func (e *Engine) change(fn func() bool) bool {
	prev := e.views.State()
	if !fn() {
		return false
	}
	e.emitView(prev, false)
	return true
}

// emitView raises update:view when the view changed, update:viewDate when
// the anchor moved, and view-change when the window changed (or always with
// force).
func (e *Engine) emitView(prev view.State, force bool) {
	st := e.views.State()
	info := e.viewInfo(st)

	if st.ID != prev.ID {
		e.bus.Emit(emit.Notification{Name: emit.UpdateView, Date: st.Anchor, View: info, Instance: e.instance})
	}
	if !st.Anchor.Equal(prev.Anchor) {
		e.bus.Emit(emit.Notification{Name: emit.UpdateViewDate, Date: st.Anchor, View: info, Instance: e.instance})
	}
	moved := st.ID != prev.ID || !st.FirstCellDate.Equal(prev.FirstCellDate) || !st.LastCellDate.Equal(prev.LastCellDate)
	if moved || force {
		e.bus.Emit(emit.Notification{Name: emit.ViewChange, Date: st.Anchor, View: info, Instance: e.instance})
	}
}

func (e *Engine) viewInfo(st view.State) *emit.ViewInfo {
	return &emit.ViewInfo{
		ID:            string(st.ID),
		Title:         st.Title,
		Start:         st.Start,
		End:           st.End,
		FirstCellDate: st.FirstCellDate,
		LastCellDate:  st.LastCellDate,
		Events:        e.inWindow(st),
	}
}

// State returns the current view.
func (e *Engine) State() view.State {
	return e.views.State()
}

// Cells returns the cells of the current view.
func (e *Engine) Cells() []model.Cell {
	return e.views.State().Cells
}

// ScheduleCells splits cell into one cell per configured schedule lane, or
// returns cell alone when no schedules are configured.
func (e *Engine) ScheduleCells(cell model.Cell) []model.Cell {
	ids := e.Config().ScheduleIDs()
	if len(ids) == 0 {
		return []model.Cell{cell}
	}
	out := make([]model.Cell, 0, len(ids))
	for _, id := range ids {
		out = append(out, cell.WithSchedule(id))
	}
	return out
}

// LayoutCell computes the overlap columns of cell. A cell restricted to a
// schedule only considers that lane.
func (e *Engine) LayoutCell(cell model.Cell, allDay bool) layout.Result {
	if cell.Schedule != "" {
		return e.layout.LayoutCellSchedule(cell, allDay)
	}
	return e.layout.LayoutCell(cell.Start, cell.End, allDay)
}

// Geometry places ev in cell on the configured time axis.
func (e *Engine) Geometry(ev *events.Event, entry *layout.Entry, cell model.Cell) layout.Box {
	cfg := e.Config()
	return layout.Geometry(ev, entry, cell, cfg.TimeFrom, cfg.TimeTo)
}

// VisibleEvents returns the events overlapping the cells of the current
// view, background events included.
func (e *Engine) VisibleEvents() []*events.Event {
	return e.inWindow(e.views.State())
}

func (e *Engine) inWindow(st view.State) []*events.Event {
	if len(st.Cells) == 0 {
		return nil
	}
	return e.idx.GetInRange(st.FirstCellDate, st.Cells[len(st.Cells)-1].End, events.Filter{})
}

func (e *Engine) indexOptions(cfg *config.Config) events.Options {
	return events.Options{
		MultidayEvents: cfg.Multiday(),
		SnapToInterval: cfg.SnapToInterval,
		Location:       cfg.Location(),
		NewID:          e.newID,
	}
}

func (e *Engine) viewOptions(cfg *config.Config) view.Options {
	minDate, maxDate := cfg.DateBounds()
	return view.Options{
		Views:             map[view.ID]view.Spec(cfg.Views),
		DefaultView:       view.ID(cfg.DefaultView),
		StartWeekOnSunday: cfg.StartWeekOnSunday(),
		HiddenWeekdays:    cfg.HiddenWeekdays(),
		MinDate:           minDate,
		MaxDate:           maxDate,
		DisabledDays:      cfg.DisabledDates(),
		TruncateMonths:    cfg.TruncateMonths,
		Language:          cfg.Language(),
		Location:          cfg.Location(),
		Now:               e.now,
	}
}

func layoutOptions(cfg *config.Config) layout.Options {
	return layout.Options{
		SplitAllDay: cfg.AllDayEvents,
		Schedules:   len(cfg.Schedules) > 0,
	}
}

func (e *Engine) interactOptions(cfg *config.Config) interact.Options {
	return interact.Options{
		TimeFrom:       cfg.TimeFrom,
		TimeTo:         cfg.TimeTo,
		SnapToInterval: cfg.SnapToInterval,
		Editable: interact.Editable{
			Create: cfg.EditableEvents.Create,
			Drag:   cfg.EditableEvents.Drag,
			Resize: cfg.EditableEvents.Resize,
			Delete: cfg.EditableEvents.Delete,
		},
		CreateMinDrag: cfg.EventCreateMinDrag,
		HoldDelay:     cfg.HoldDelay(),
		ClickWindow:   cfg.ClickWindow(),
		Hooks:         e.hooks,
		Session:       e.session,
		Instance:      e.instance,
		Binder:        e.binder,
	}
}
