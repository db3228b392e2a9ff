package interact

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/emit"
	"calgrid/internal/events"
	"calgrid/internal/model"
)

var (
	day = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	t0  = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
)

func dayCell(offset int) model.Cell {
	start := day.AddDate(0, 0, offset)
	return model.Cell{Start: start, End: start.AddDate(0, 0, 1)}
}

func clock(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

// ptr points at minute-of-day m of cell, with the full day on the time axis.
func ptr(cell model.Cell, m int) Pointer {
	return Pointer{ID: 1, Cell: cell, CellY: float64(m) / 1440}
}

type recorder struct {
	mu sync.Mutex
	ns []emit.Notification
}

func record(bus *emit.Bus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(n emit.Notification) {
		r.mu.Lock()
		r.ns = append(r.ns, n)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) names() []emit.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emit.Name, len(r.ns))
	for i, n := range r.ns {
		out[i] = n.Name
	}
	return out
}

func (r *recorder) last() emit.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ns[len(r.ns)-1]
}

type countingBinder struct {
	attached map[int]int
	attaches int
	detaches int
}

func (b *countingBinder) Attach(id int) {
	if b.attached == nil {
		b.attached = map[int]int{}
	}
	b.attached[id]++
	b.attaches++
}

func (b *countingBinder) Detach(id int) {
	b.attached[id]--
	b.detaches++
}

type fixture struct {
	idx  *events.Index
	bus  *emit.Bus
	rec  *recorder
	ctrl *Controller
}

func newFixture(t *testing.T, mutate func(*Options), recs ...model.Event) *fixture {
	t.Helper()
	idx := events.NewIndex(events.Options{MultidayEvents: true, Location: time.UTC, SnapToInterval: 15})
	require.Len(t, idx.Upsert(recs...), len(recs))

	opts := Options{
		TimeFrom:       0,
		TimeTo:         1440,
		SnapToInterval: 15,
		Editable:       AllEditable(),
		CreateMinDrag:  10,
		HoldDelay:      500 * time.Millisecond,
		ClickWindow:    300 * time.Millisecond,
		Instance:       "main",
	}
	if mutate != nil {
		mutate(&opts)
	}
	bus := &emit.Bus{}
	return &fixture{idx: idx, bus: bus, rec: record(bus), ctrl: New(idx, opts, bus)}
}

func meeting() model.Event {
	return model.Event{ID: "meeting", Title: "Meeting", Start: clock(9, 0), End: clock(10, 0)}
}

func (f *fixture) event(t *testing.T, id string) *events.Event {
	t.Helper()
	ev, ok := f.idx.GetByID(id)
	require.True(t, ok, id)
	return ev
}

func TestDecisionZeroValueRejects(t *testing.T) {
	var d Decision
	assert.False(t, d.Accepted())
	assert.True(t, Accept().Accepted())

	r, ok := Replace(model.Event{Title: "x"}).Replacement()
	assert.True(t, ok)
	assert.Equal(t, "x", r.Title)
	_, ok = Accept().Replacement()
	assert.False(t, ok)
}

func TestCreateByDrag(t *testing.T) {
	b := &countingBinder{}
	f := newFixture(t, func(o *Options) { o.Binder = b })
	ctx := context.Background()

	down := ptr(dayCell(0), 9*60+7)
	f.ctrl.CellPointerDown(down)
	move := ptr(dayCell(0), 9*60+52)
	move.Y = 40
	f.ctrl.PointerMove(ctx, move)

	preview, ok := f.ctrl.Preview(1)
	require.True(t, ok)
	assert.Equal(t, clock(9, 0), preview.Start)
	assert.Equal(t, clock(9, 45), preview.End)

	ev := f.ctrl.PointerUp(ctx, move)
	require.NotNil(t, ev)
	assert.Equal(t, clock(9, 0), ev.Start)
	assert.Equal(t, clock(9, 45), ev.End)
	assert.Equal(t, 1, f.idx.Len())
	assert.Equal(t, []emit.Name{emit.EventCreated}, f.rec.names())

	assert.Equal(t, 1, b.attaches)
	assert.Equal(t, 1, b.detaches)
	assert.Zero(t, f.ctrl.Active())
}

func TestCreateUpwardsSwapsEdges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.ctrl.CellPointerDown(ptr(dayCell(0), 11*60))
	move := ptr(dayCell(0), 10*60)
	move.Y = -30
	f.ctrl.PointerMove(ctx, move)
	ev := f.ctrl.PointerUp(ctx, move)

	require.NotNil(t, ev)
	assert.Equal(t, clock(10, 0), ev.Start)
	assert.Equal(t, clock(11, 0), ev.End)
}

func TestShortDragIsAClick(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.ctrl.CellPointerDown(ptr(dayCell(0), 9*60))
	move := ptr(dayCell(0), 9*60+30)
	move.Y = 5
	f.ctrl.PointerMove(ctx, move)
	_, previewing := f.ctrl.Preview(1)
	assert.False(t, previewing)

	assert.Nil(t, f.ctrl.PointerUp(ctx, move))
	assert.Zero(t, f.idx.Len())
	assert.Equal(t, []emit.Name{emit.CellClick}, f.rec.names())
}

func TestCreateDisabled(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Editable.Create = false })
	ctx := context.Background()

	f.ctrl.CellPointerDown(ptr(dayCell(0), 9*60))
	move := ptr(dayCell(0), 11*60)
	move.Y = 100
	f.ctrl.PointerMove(ctx, move)
	assert.Nil(t, f.ctrl.PointerUp(ctx, move))
	assert.Zero(t, f.idx.Len())
}

func TestCreateHookRejection(t *testing.T) {
	hooks := map[string]CreateHook{
		"reject": func(context.Context, model.Event) (Decision, error) { return Reject(), nil },
		"zero":   func(context.Context, model.Event) (Decision, error) { return Decision{}, nil },
		"error": func(context.Context, model.Event) (Decision, error) {
			return Accept(), errors.New("server said no")
		},
	}
	for name, hook := range hooks {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, func(o *Options) { o.Hooks.Create = hook })
			ctx := context.Background()

			f.ctrl.CellPointerDown(ptr(dayCell(0), 9*60))
			move := ptr(dayCell(0), 10*60)
			move.Y = 50
			f.ctrl.PointerMove(ctx, move)

			assert.Nil(t, f.ctrl.PointerUp(ctx, move))
			assert.Zero(t, f.idx.Len())
			assert.NotContains(t, f.rec.names(), emit.EventCreated)
			assert.Zero(t, f.ctrl.Active())
		})
	}
}

func TestCreateHookReplacementUsedVerbatim(t *testing.T) {
	var seen model.Event
	f := newFixture(t, func(o *Options) {
		o.Hooks.Create = func(_ context.Context, ev model.Event) (Decision, error) {
			seen = ev
			return Replace(model.Event{ID: "srv-1", Title: "From server", Start: clock(9, 7), End: clock(9, 52)}), nil
		}
	})
	ctx := context.Background()

	f.ctrl.CellPointerDown(ptr(dayCell(0), 9*60))
	move := ptr(dayCell(0), 10*60)
	move.Y = 50
	f.ctrl.PointerMove(ctx, move)
	ev := f.ctrl.PointerUp(ctx, move)

	require.NotNil(t, ev)
	assert.Equal(t, clock(9, 0), seen.Start)
	assert.Equal(t, "srv-1", ev.ID)
	assert.Equal(t, "From server", ev.Title)
	assert.Equal(t, clock(9, 7), ev.Start)
	assert.Equal(t, clock(9, 52), ev.End)
	assert.Equal(t, emit.EventCreated, f.rec.last().Name)
}

func TestCreateReplacementNeverOverwrites(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Hooks.Create = func(context.Context, model.Event) (Decision, error) {
			return Replace(model.Event{ID: "meeting", Title: "New", Start: clock(14, 0), End: clock(15, 0)}), nil
		}
	}, meeting())
	ctx := context.Background()

	f.ctrl.CellPointerDown(ptr(dayCell(0), 14*60))
	move := ptr(dayCell(0), 15*60)
	move.Y = 50
	f.ctrl.PointerMove(ctx, move)

	assert.Nil(t, f.ctrl.PointerUp(ctx, move))
	assert.Equal(t, 1, f.idx.Len())
	kept := f.event(t, "meeting")
	assert.Equal(t, "Meeting", kept.Title)
	assert.Equal(t, clock(9, 0), kept.Start)
	assert.NotContains(t, f.rec.names(), emit.EventCreated)
}

func TestMovePreservesDuration(t *testing.T) {
	for _, m := range []int{0, 7 * 60, 14*60 + 37, 23 * 60} {
		f := newFixture(t, nil, meeting())
		ctx := context.Background()
		dt := &Transfer{}

		require.True(t, f.ctrl.DragStart(f.event(t, "meeting"), dt, ptr(dayCell(0), 9*60)))
		ev := f.ctrl.Drop(ctx, dt, ptr(dayCell(2), m))
		f.ctrl.DragEnd()

		require.NotNil(t, ev, m)
		assert.Equal(t, time.Hour, ev.End.Sub(ev.Start), m)
		assert.Equal(t, 60, ev.Duration, m)
		assert.Equal(t, day.AddDate(0, 0, 2), ev.Start.Truncate(24*time.Hour), m)
		assert.Equal(t, []emit.Name{emit.EventDragStart, emit.EventDropped, emit.EventDragEnd}, f.rec.names())
	}
}

func TestDropSnapsStart(t *testing.T) {
	f := newFixture(t, nil, meeting())
	dt := &Transfer{}
	require.True(t, f.ctrl.DragStart(f.event(t, "meeting"), dt, Pointer{ID: 1}))

	ev := f.ctrl.Drop(context.Background(), dt, ptr(dayCell(1), 14*60+37))
	require.NotNil(t, ev)
	assert.Equal(t, clock(24+14, 30), ev.Start)
	assert.Equal(t, clock(24+15, 30), ev.End)

	n := f.rec.last()
	assert.Equal(t, emit.EventDropped, n.Name)
	assert.Equal(t, clock(9, 0), n.Original.Start)
}

func TestDropOnDayOnlyCellKeepsTimeOfDay(t *testing.T) {
	f := newFixture(t, nil, meeting())
	dt := &Transfer{}
	require.True(t, f.ctrl.DragStart(f.event(t, "meeting"), dt, Pointer{ID: 1}))

	p := Pointer{ID: 1, Cell: dayCell(3), DayOnly: true}
	ev := f.ctrl.Drop(context.Background(), dt, p)
	require.NotNil(t, ev)
	assert.Equal(t, clock(72+9, 0), ev.Start)
	assert.Equal(t, clock(72+10, 0), ev.End)
}

func TestDropHookVeto(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Hooks.Drop = func(context.Context, DropInfo) (Decision, error) { return Reject(), nil }
	}, meeting())
	dt := &Transfer{}
	require.True(t, f.ctrl.DragStart(f.event(t, "meeting"), dt, Pointer{ID: 1}))

	assert.Nil(t, f.ctrl.Drop(context.Background(), dt, ptr(dayCell(1), 14*60)))
	assert.Equal(t, clock(9, 0), f.event(t, "meeting").Start)
	assert.NotContains(t, f.rec.names(), emit.EventDropped)
}

func TestDropHookReplacementIsMerged(t *testing.T) {
	var info DropInfo
	f := newFixture(t, func(o *Options) {
		o.Hooks.Drop = func(_ context.Context, d DropInfo) (Decision, error) {
			info = d
			return Replace(model.Event{Title: "Moved"}), nil
		}
	}, meeting())
	dt := &Transfer{}
	require.True(t, f.ctrl.DragStart(f.event(t, "meeting"), dt, Pointer{ID: 1}))

	ev := f.ctrl.Drop(context.Background(), dt, ptr(dayCell(1), 14*60))
	require.NotNil(t, ev)
	assert.False(t, info.External)
	assert.Equal(t, clock(24+14, 0), info.Event.Start)
	assert.Equal(t, "Moved", ev.Title)
	assert.Equal(t, clock(24+14, 0), ev.Start)
	assert.Equal(t, "meeting", ev.ID)
}

func TestDragPayload(t *testing.T) {
	f := newFixture(t, nil, meeting())
	dt := &Transfer{}
	require.True(t, f.ctrl.DragStart(f.event(t, "meeting"), dt, Pointer{ID: 1}))

	raw, ok := dt.GetData(MIMEType)
	require.True(t, ok)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "meeting", decoded["id"])
	assert.Equal(t, "Meeting", decoded["title"])
	meta, ok := decoded["_"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "meeting", meta["id"])
	assert.EqualValues(t, 60, meta["duration"])
}

func TestDragRefused(t *testing.T) {
	locked := meeting()
	locked.Draggable = model.Bool(false)
	f := newFixture(t, nil, locked)
	assert.False(t, f.ctrl.DragStart(f.event(t, "meeting"), &Transfer{}, Pointer{ID: 1}))

	g := newFixture(t, func(o *Options) { o.Editable.Drag = false }, meeting())
	assert.False(t, g.ctrl.DragStart(g.event(t, "meeting"), &Transfer{}, Pointer{ID: 1}))
	assert.Empty(t, g.rec.names())
}

func TestDropWithoutPayload(t *testing.T) {
	f := newFixture(t, nil)
	assert.Nil(t, f.ctrl.Drop(context.Background(), &Transfer{}, ptr(dayCell(0), 600)))

	dt := &Transfer{}
	dt.SetData(MIMEType, []byte("{not json"))
	assert.Nil(t, f.ctrl.Drop(context.Background(), dt, ptr(dayCell(0), 600)))
}

func TestDragStartSuppressesClick(t *testing.T) {
	f := newFixture(t, nil, meeting())
	ev := f.event(t, "meeting")
	p := ptr(dayCell(0), 9*60+30)

	assert.False(t, f.ctrl.EventPointerDown(ev, p, false))
	require.True(t, f.ctrl.DragStart(ev, &Transfer{}, p))
	assert.Zero(t, f.ctrl.Active())
	assert.Nil(t, f.ctrl.PointerUp(context.Background(), p))
	assert.Equal(t, []emit.Name{emit.EventDragStart}, f.rec.names())
}

func twoInstances(t *testing.T, hook DropHook) (a, b *fixture) {
	t.Helper()
	session := NewDragSession()
	a = newFixture(t, func(o *Options) { o.Session = session; o.Instance = "a" },
		model.Event{ID: "shared", Title: "Shared", Start: clock(9, 0), End: clock(10, 30)})
	b = newFixture(t, func(o *Options) {
		o.Session = session
		o.Instance = "b"
		o.Hooks.Drop = hook
	})
	return a, b
}

func TestCrossInstanceMove(t *testing.T) {
	var info DropInfo
	a, b := twoInstances(t, func(_ context.Context, d DropInfo) (Decision, error) {
		info = d
		return Accept(), nil
	})
	dt := &Transfer{}

	require.True(t, a.ctrl.DragStart(a.event(t, "shared"), dt, Pointer{ID: 1}))
	instance, id, active := a.ctrl.options().Session.Active()
	assert.True(t, active)
	assert.Equal(t, "a", instance)
	assert.Equal(t, "shared", id)

	ev := b.ctrl.Drop(context.Background(), dt, ptr(dayCell(1), 14*60))
	a.ctrl.DragEnd()

	require.NotNil(t, ev)
	assert.True(t, info.External)
	assert.Equal(t, "a", info.Source)
	assert.Equal(t, "shared", ev.ID)
	assert.Equal(t, "Shared", ev.Title)
	assert.Equal(t, 90, ev.Duration)
	assert.Equal(t, clock(24+14, 0), ev.Start)

	_, stillInA := a.idx.GetByID("shared")
	assert.False(t, stillInA)
	assert.Equal(t, 1, b.idx.Len())

	n := b.rec.last()
	assert.Equal(t, emit.EventDropped, n.Name)
	assert.Equal(t, "a", n.Source)
	assert.Equal(t, "b", n.Instance)
	assert.Equal(t, []emit.Name{emit.EventDragStart, emit.EventDragEnd}, a.rec.names())

	_, _, active = a.ctrl.options().Session.Active()
	assert.False(t, active)
}

func TestCrossInstanceRejectKeepsSource(t *testing.T) {
	a, b := twoInstances(t, func(context.Context, DropInfo) (Decision, error) { return Reject(), nil })
	dt := &Transfer{}

	require.True(t, a.ctrl.DragStart(a.event(t, "shared"), dt, Pointer{ID: 1}))
	assert.Nil(t, b.ctrl.Drop(context.Background(), dt, ptr(dayCell(1), 14*60)))
	a.ctrl.DragEnd()

	_, inA := a.idx.GetByID("shared")
	assert.True(t, inA)
	assert.Zero(t, b.idx.Len())
}

func resize(t *testing.T, f *fixture, moves ...Pointer) *events.Event {
	t.Helper()
	ctx := context.Background()
	require.True(t, f.ctrl.EventPointerDown(f.event(t, "meeting"), ptr(dayCell(0), 10*60), true))
	for _, m := range moves {
		m.X = 1
		f.ctrl.PointerMove(ctx, m)
	}
	last := moves[len(moves)-1]
	last.X = 1
	return f.ctrl.PointerUp(ctx, last)
}

func TestResize(t *testing.T) {
	tests := []struct {
		name       string
		to         Pointer
		start, end time.Time
	}{
		{"extend", ptr(dayCell(0), 11*60+20), clock(9, 0), clock(11, 15)},
		{"shrink", ptr(dayCell(0), 9*60+30), clock(9, 0), clock(9, 30)},
		{"into next cell", ptr(dayCell(1), 60), clock(9, 0), clock(25, 0)},
		{"crossing start swaps edges", ptr(dayCell(0), 8*60), clock(8, 0), clock(9, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, meeting())
			ev := resize(t, f, tt.to)
			require.NotNil(t, ev)
			assert.Equal(t, tt.start, ev.Start)
			assert.Equal(t, tt.end, ev.End)

			n := f.rec.last()
			assert.Equal(t, emit.EventResizeEnd, n.Name)
			assert.Equal(t, clock(10, 0), n.Original.End)
		})
	}
}

func TestResizeUnderOneMinuteRollsBack(t *testing.T) {
	f := newFixture(t, nil, meeting())
	assert.Nil(t, resize(t, f, ptr(dayCell(0), 9*60)))

	ev := f.event(t, "meeting")
	assert.Equal(t, clock(9, 0), ev.Start)
	assert.Equal(t, clock(10, 0), ev.End)
	assert.Empty(t, f.rec.names())
}

func TestResizeHookVetsIntermediatePositions(t *testing.T) {
	var calls int
	f := newFixture(t, func(o *Options) {
		o.Hooks.Resize = func(_ context.Context, ev, original model.Event) (Decision, error) {
			calls++
			assert.Equal(t, clock(10, 0), original.End)
			if ev.End.After(clock(12, 0)) {
				return Reject(), nil
			}
			return Accept(), nil
		}
	}, meeting())

	ctx := context.Background()
	require.True(t, f.ctrl.EventPointerDown(f.event(t, "meeting"), ptr(dayCell(0), 10*60), true))
	f.ctrl.PointerMove(ctx, ptr(dayCell(0), 11*60))
	f.ctrl.PointerMove(ctx, ptr(dayCell(0), 13*60))

	preview, ok := f.ctrl.Preview(1)
	require.True(t, ok)
	assert.Equal(t, clock(11, 0), preview.End)

	ev := f.ctrl.PointerUp(ctx, ptr(dayCell(0), 13*60))
	require.NotNil(t, ev)
	assert.Equal(t, clock(11, 0), ev.End)
	assert.Equal(t, 2, calls)
}

// slowResizeHook blocks its first call until release is closed and passes
// every later call straight to verdict.
func slowResizeHook(entered chan<- struct{}, release <-chan struct{}, verdict func(model.Event) Decision) (ResizeHook, *[]time.Time) {
	var (
		mu   sync.Mutex
		seen []time.Time
	)
	hook := func(_ context.Context, ev, _ model.Event) (Decision, error) {
		mu.Lock()
		seen = append(seen, ev.End)
		first := len(seen) == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		return verdict(ev), nil
	}
	return hook, &seen
}

func TestResizeSlowHookCommitsLatestPosition(t *testing.T) {
	entered, release := make(chan struct{}), make(chan struct{})
	hook, seen := slowResizeHook(entered, release, func(model.Event) Decision { return Accept() })
	f := newFixture(t, func(o *Options) { o.Hooks.Resize = hook }, meeting())
	ctx := context.Background()

	require.True(t, f.ctrl.EventPointerDown(f.event(t, "meeting"), ptr(dayCell(0), 10*60), true))
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.ctrl.PointerMove(ctx, ptr(dayCell(0), 11*60))
	}()
	<-entered

	f.ctrl.PointerMove(ctx, ptr(dayCell(0), 11*60+30))
	preview, ok := f.ctrl.Preview(1)
	require.True(t, ok)
	assert.Equal(t, clock(10, 0), preview.End, "unvetted positions are not shown")

	close(release)
	<-done
	preview, _ = f.ctrl.Preview(1)
	assert.Equal(t, clock(11, 30), preview.End)

	ev := f.ctrl.PointerUp(ctx, ptr(dayCell(0), 11*60+30))
	require.NotNil(t, ev)
	assert.Equal(t, clock(11, 30), ev.End)
	assert.Equal(t, []time.Time{clock(11, 0), clock(11, 30)}, *seen)
}

func TestResizeSlowHookRejectingEverything(t *testing.T) {
	entered, release := make(chan struct{}), make(chan struct{})
	hook, seen := slowResizeHook(entered, release, func(model.Event) Decision { return Reject() })
	f := newFixture(t, func(o *Options) { o.Hooks.Resize = hook }, meeting())
	ctx := context.Background()

	require.True(t, f.ctrl.EventPointerDown(f.event(t, "meeting"), ptr(dayCell(0), 10*60), true))
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.ctrl.PointerMove(ctx, ptr(dayCell(0), 11*60))
	}()
	<-entered
	f.ctrl.PointerMove(ctx, ptr(dayCell(0), 13*60))
	close(release)
	<-done

	assert.Nil(t, f.ctrl.PointerUp(ctx, ptr(dayCell(0), 13*60)))
	assert.Equal(t, clock(10, 0), f.event(t, "meeting").End)
	assert.NotContains(t, f.rec.names(), emit.EventResizeEnd)
	assert.Len(t, *seen, 2)
}

func TestResizeEndHook(t *testing.T) {
	t.Run("reject rolls back", func(t *testing.T) {
		f := newFixture(t, func(o *Options) {
			o.Hooks.ResizeEnd = func(context.Context, model.Event, model.Event) (Decision, error) {
				return Reject(), nil
			}
		}, meeting())
		assert.Nil(t, resize(t, f, ptr(dayCell(0), 12*60)))
		assert.Equal(t, clock(10, 0), f.event(t, "meeting").End)
	})

	t.Run("replacement", func(t *testing.T) {
		f := newFixture(t, func(o *Options) {
			o.Hooks.ResizeEnd = func(_ context.Context, ev, _ model.Event) (Decision, error) {
				ev.End = clock(11, 30)
				ev.Title = "Long meeting"
				return Replace(ev), nil
			}
		}, meeting())
		ev := resize(t, f, ptr(dayCell(0), 12*60))
		require.NotNil(t, ev)
		assert.Equal(t, clock(11, 30), ev.End)
		assert.Equal(t, "Long meeting", ev.Title)
	})
}

func TestResizeNotAllowed(t *testing.T) {
	fixed := meeting()
	fixed.Resizable = model.Bool(false)
	f := newFixture(t, nil, fixed)
	assert.False(t, f.ctrl.EventPointerDown(f.event(t, "meeting"), ptr(dayCell(0), 10*60), true))
	f.ctrl.PointerCancel(1)

	g := newFixture(t, func(o *Options) { o.Editable.Resize = false }, meeting())
	assert.False(t, g.ctrl.EventPointerDown(g.event(t, "meeting"), ptr(dayCell(0), 10*60), true))
}

func TestHold(t *testing.T) {
	f := newFixture(t, nil, meeting())
	ctx := context.Background()

	p := ptr(dayCell(0), 14*60)
	p.Time = t0
	f.ctrl.CellPointerDown(p)
	f.ctrl.Tick(t0.Add(100 * time.Millisecond))
	assert.Empty(t, f.rec.names())

	f.ctrl.Tick(t0.Add(600 * time.Millisecond))
	f.ctrl.Tick(t0.Add(900 * time.Millisecond))
	up := p
	up.Time = t0.Add(time.Second)
	assert.Nil(t, f.ctrl.PointerUp(ctx, up))
	assert.Equal(t, []emit.Name{emit.CellHold}, f.rec.names())

	// Without Tick, the hold is detected on release.
	ev := f.event(t, "meeting")
	e := ptr(dayCell(0), 9*60+30)
	e.Time = t0
	f.ctrl.EventPointerDown(ev, e, false)
	e.Time = t0.Add(time.Second)
	f.ctrl.PointerUp(ctx, e)

	n := f.rec.last()
	assert.Equal(t, emit.EventHold, n.Name)
	assert.Equal(t, "meeting", n.Event.ID)
}

func TestMovementCancelsHold(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Editable.Create = false })
	ctx := context.Background()

	p := ptr(dayCell(0), 14*60)
	p.Time = t0
	f.ctrl.CellPointerDown(p)
	moved := p
	moved.X = 3
	f.ctrl.PointerMove(ctx, moved)
	f.ctrl.Tick(t0.Add(time.Second))

	assert.NotContains(t, f.rec.names(), emit.CellHold)
	f.ctrl.PointerCancel(1)
	assert.Zero(t, f.ctrl.Active())
}

func TestClickAndDoubleClick(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tap := func(at time.Time) {
		p := ptr(dayCell(0), 14*60)
		p.Time = at
		f.ctrl.CellPointerDown(p)
		f.ctrl.PointerUp(ctx, p)
	}
	tap(t0)
	tap(t0.Add(200 * time.Millisecond))
	tap(t0.Add(400 * time.Millisecond))
	tap(t0.Add(time.Second))

	assert.Equal(t, []emit.Name{emit.CellClick, emit.CellDblClick, emit.CellClick, emit.CellClick}, f.rec.names())
	assert.Equal(t, clock(14, 0), f.rec.last().Date)
}

func TestEventClick(t *testing.T) {
	f := newFixture(t, nil, meeting())
	p := ptr(dayCell(0), 9*60+30)
	p.Time = t0
	f.ctrl.EventPointerDown(f.event(t, "meeting"), p, false)
	f.ctrl.PointerUp(context.Background(), p)

	n := f.rec.last()
	assert.Equal(t, emit.EventClick, n.Name)
	assert.Equal(t, "meeting", n.Event.ID)
}

func TestListenersDetachedOnEveryPath(t *testing.T) {
	b := &countingBinder{}
	f := newFixture(t, func(o *Options) { o.Binder = b }, meeting())
	ctx := context.Background()

	f.ctrl.CellPointerDown(ptr(dayCell(0), 600))
	f.ctrl.PointerUp(ctx, ptr(dayCell(0), 600))

	f.ctrl.CellPointerDown(ptr(dayCell(0), 600))
	f.ctrl.PointerCancel(1)

	f.ctrl.EventPointerDown(f.event(t, "meeting"), ptr(dayCell(0), 600), true)
	f.ctrl.CellPointerDown(ptr(dayCell(0), 700))
	f.ctrl.PointerUp(ctx, ptr(dayCell(0), 700))

	assert.Equal(t, 4, b.attaches)
	assert.Equal(t, 4, b.detaches)
	assert.Equal(t, 0, b.attached[1])
	assert.Zero(t, f.ctrl.Active())
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t, nil, meeting())

	assert.True(t, f.ctrl.DeleteEvent("meeting", events.StageArm))
	assert.True(t, f.event(t, "meeting").Deleting)
	assert.Empty(t, f.rec.names())

	assert.True(t, f.ctrl.DeleteEvent("meeting", events.StageArm))
	assert.Equal(t, []emit.Name{emit.EventDelete}, f.rec.names())
	assert.False(t, f.ctrl.DeleteEvent("meeting", events.StageCommit))

	g := newFixture(t, func(o *Options) { o.Editable.Delete = false }, meeting())
	assert.False(t, g.ctrl.DeleteEvent("meeting", events.StageCommit))
	assert.Equal(t, 1, g.idx.Len())
}
