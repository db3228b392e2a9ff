package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/config"
	"calgrid/internal/emit"
	"calgrid/internal/events"
	"calgrid/internal/model"
	"calgrid/internal/view"
)

var now = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

func at(d, h, m int) time.Time {
	return time.Date(2024, 6, d, h, m, 0, 0, time.UTC)
}

// recorder collects notification names.
type recorder struct {
	mu    sync.Mutex
	notes []emit.Notification
}

func (r *recorder) listen(n emit.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) names() []emit.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emit.Name, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Name)
	}
	return out
}

func (r *recorder) last(name emit.Name) (emit.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notes) - 1; i >= 0; i-- {
		if r.notes[i].Name == name {
			return r.notes[i], true
		}
	}
	return emit.Notification{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}

func newEngine(t *testing.T, cfg *config.Config) (*Engine, *recorder) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Normalize()
	n := 0
	e := New(cfg,
		WithNow(func() time.Time { return now }),
		WithNewID(func() string { n++; return "gen-" + string(rune('a'+n-1)) }),
	)
	t.Cleanup(e.Close)
	rec := &recorder{}
	e.Subscribe(rec.listen)
	return e, rec
}

func TestNewShowsDefaultView(t *testing.T) {
	e, _ := newEngine(t, nil)

	st := e.State()
	assert.Equal(t, view.Week, st.ID)
	cells := e.Cells()
	require.Len(t, cells, 7)
	assert.Equal(t, at(10, 0, 0), cells[0].Start)
	assert.Equal(t, at(17, 0, 0), cells[6].End)
	assert.Same(t, e.Index(), e.Index())
	assert.NotNil(t, e.Controller())
	assert.NotNil(t, e.View())
}

func TestNavigationNotifications(t *testing.T) {
	e, rec := newEngine(t, nil)

	require.True(t, e.Next())
	assert.Equal(t, []emit.Name{emit.UpdateViewDate, emit.ViewChange}, rec.names())
	n, ok := rec.last(emit.ViewChange)
	require.True(t, ok)
	assert.Equal(t, "week", n.View.ID)
	assert.Equal(t, at(17, 0, 0), n.View.FirstCellDate)

	rec.reset()
	require.True(t, e.SwitchView(view.Month, time.Time{}))
	assert.Contains(t, rec.names(), emit.UpdateView)
	assert.Contains(t, rec.names(), emit.ViewChange)
	n, _ = rec.last(emit.UpdateView)
	assert.Equal(t, "month", n.View.ID)

	rec.reset()
	assert.False(t, e.SwitchView("decade", time.Time{}))
	assert.Empty(t, rec.names())
}

func TestUpdateViewDateInsideWindowIsQuiet(t *testing.T) {
	e, rec := newEngine(t, nil)

	assert.False(t, e.UpdateViewDate(at(14, 9, 0), false))
	assert.Empty(t, rec.names())

	assert.True(t, e.UpdateViewDate(at(26, 9, 0), false))
	assert.Contains(t, rec.names(), emit.ViewChange)
	assert.Equal(t, at(24, 0, 0), e.Cells()[0].Start)

	rec.reset()
	require.True(t, e.GoToToday())
	assert.Equal(t, at(10, 0, 0), e.Cells()[0].Start)
	assert.Contains(t, rec.names(), emit.ViewChange)
}

func TestSelectDate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DisableDays = []string{"2024-06-14"}
	e, rec := newEngine(t, cfg)

	require.True(t, e.SelectDate(at(13, 15, 30)))
	assert.Equal(t, at(13, 0, 0), e.Selected())
	assert.Equal(t, []emit.Name{emit.UpdateSelectedDate}, rec.names())

	rec.reset()
	require.True(t, e.SelectDate(at(13, 8, 0)))
	assert.Empty(t, rec.names())

	assert.False(t, e.SelectDate(at(14, 8, 0)))
	assert.False(t, e.SelectDate(time.Time{}))
	assert.Equal(t, at(13, 0, 0), e.Selected())

	rec.reset()
	require.True(t, e.SelectDate(at(20, 8, 0)))
	assert.Equal(t, []emit.Name{emit.UpdateViewDate, emit.ViewChange, emit.UpdateSelectedDate}, rec.names())
}

func TestSetEventsAndLayout(t *testing.T) {
	e, rec := newEngine(t, nil)

	added := e.SetEvents([]model.Event{
		{ID: "a", Start: at(12, 9, 0), End: at(12, 11, 0), Title: "a"},
		{ID: "b", Start: at(12, 10, 0), End: at(12, 12, 0), Title: "b"},
		{ID: "far", Start: at(28, 9, 0), End: at(28, 10, 0)},
		{ID: "broken", Start: at(12, 9, 0), End: at(12, 8, 0)},
	})
	require.Len(t, added, 3)
	assert.Equal(t, []emit.Name{emit.UpdateEvents}, rec.names())
	n, _ := rec.last(emit.UpdateEvents)
	assert.Len(t, n.Events, 3)

	visible := e.VisibleEvents()
	require.Len(t, visible, 2)
	assert.Equal(t, "a", visible[0].ID)
	assert.Equal(t, "b", visible[1].ID)

	cell := e.Cells()[2]
	res := e.LayoutCell(cell, false)
	require.Len(t, res.Overlaps, 2)
	assert.Equal(t, 0, res.Overlaps["a"].Position)
	assert.Equal(t, 1, res.Overlaps["b"].Position)
	assert.Equal(t, 2, res.Overlaps["a"].MaxConcurrent)

	box := e.Geometry(visible[0], res.Overlaps["a"], cell)
	assert.InDelta(t, 50, box.Width, 0.001)
	assert.InDelta(t, 0, box.Left, 0.001)
}

func TestEditsAreMirroredAndSurviveReconfigure(t *testing.T) {
	e, rec := newEngine(t, nil)
	e.SetEvents([]model.Event{
		{ID: "trip", Start: at(12, 20, 0), End: at(13, 8, 0), Title: "Trip"},
		{ID: "call", Start: at(11, 9, 0), End: at(11, 10, 0), Title: "Call"},
	})
	rec.reset()

	_, err := e.Index().Update("call", func(r *model.Event) { r.Title = "Call (moved)" })
	require.NoError(t, err)
	assert.Equal(t, []emit.Name{emit.UpdateEvents}, rec.names())

	require.True(t, e.Index().Delete("trip", events.StageCommit))
	_, ok := e.Index().GetByID("trip")
	assert.False(t, ok)

	cfg := config.DefaultConfig()
	cfg.DefaultView = "month"
	rec.reset()
	e.Reconfigure(cfg)

	assert.Contains(t, rec.names(), emit.UpdateEvents)
	assert.Contains(t, rec.names(), emit.ViewChange)
	assert.Equal(t, 1, e.Index().Len())
	call, ok := e.Index().GetByID("call")
	require.True(t, ok)
	assert.Equal(t, "Call (moved)", call.Title)
}

func TestEditDuringIngestIsKept(t *testing.T) {
	e, _ := newEngine(t, nil)
	e.SetEvents([]model.Event{{ID: "call", Start: at(11, 9, 0), End: at(11, 10, 0), Title: "Call"}})

	edited := false
	stop := e.Index().Subscribe(func(c events.Change) {
		if !c.Replaced || edited {
			return
		}
		edited = true
		_, err := e.Index().Update("call", func(r *model.Event) { r.Title = "Call (edited)" })
		assert.NoError(t, err)
	})
	e.Reconfigure(config.DefaultConfig())
	stop()
	require.True(t, edited)

	e.Reconfigure(config.DefaultConfig())
	call, ok := e.Index().GetByID("call")
	require.True(t, ok)
	assert.Equal(t, "Call (edited)", call.Title)
}

func TestReconfigureMultidayKeepsHostBounds(t *testing.T) {
	e, _ := newEngine(t, nil)
	e.SetEvents([]model.Event{{ID: "trip", Start: at(12, 20, 0), End: at(13, 8, 0)}})

	off := config.DefaultConfig()
	off.MultidayEvents = model.Bool(false)
	e.Reconfigure(off)
	trip, ok := e.Index().GetByID("trip")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 12, 23, 59, 59, int(999*time.Millisecond), time.UTC), trip.End)

	e.Reconfigure(config.DefaultConfig())
	trip, ok = e.Index().GetByID("trip")
	require.True(t, ok)
	assert.Equal(t, at(13, 8, 0), trip.End)
	assert.True(t, trip.Multiday)
}

func TestScheduleCells(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Schedules = []config.ScheduleConfig{{ID: "room-a"}, {ID: "room-b"}}
	e, _ := newEngine(t, cfg)
	e.SetEvents([]model.Event{
		{ID: "a", Start: at(12, 9, 0), End: at(12, 11, 0), Schedule: "room-a"},
		{ID: "b", Start: at(12, 10, 0), End: at(12, 12, 0), Schedule: "room-b"},
	})

	lanes := e.ScheduleCells(e.Cells()[2])
	require.Len(t, lanes, 2)
	assert.Equal(t, "room-a", lanes[0].Schedule)

	res := e.LayoutCell(lanes[0], false)
	require.Len(t, res.Overlaps, 1)
	assert.Equal(t, 1, res.Overlaps["a"].MaxConcurrent)

	plain, _ := newEngine(t, nil)
	assert.Len(t, plain.ScheduleCells(plain.Cells()[0]), 1)
}
