// Package events holds the canonical event list of a calendar instance and
// answers range queries over it.
package events

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"calgrid/internal/dateutil"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

const (
	// DefaultIndexThreshold is the corpus size from which range queries use
	// the year/month/day buckets instead of a linear scan.
	DefaultIndexThreshold = 100

	// DefaultDuration is the length given to created events without an end.
	DefaultDuration = 60
)

var (
	ErrInvalidEvent = errors.New("invalid event")
	ErrNotFound     = errors.New("event not found")
	ErrNotDeletable = errors.New("event is not deletable")
	ErrDuplicateID  = errors.New("event id already exists")
	ErrConflict     = errors.New("event changed concurrently")
)

// DeleteStage selects the step of the staged deletion.
type DeleteStage int

const (
	// StageArm marks the event as pending deletion. Arming an already armed
	// event removes it.
	StageArm DeleteStage = iota
	// StageCommit removes the event.
	StageCommit
	// StageDetach removes the event because it was dropped on another
	// calendar instance.
	StageDetach
)

// Match is a tri-state filter knob.
type Match int

const (
	Any Match = iota
	Only
	Exclude
)

// Filter narrows GetInRange results.
type Filter struct {
	ExcludeIDs []string
	// Schedule, when not empty, requires an exact schedule match.
	Schedule   string
	Background Match
	AllDay     Match
}

type ChangeKind string

const (
	Created  ChangeKind = "created"
	Updated  ChangeKind = "updated"
	Armed    ChangeKind = "armed"
	Disarmed ChangeKind = "disarmed"
	Deleted  ChangeKind = "deleted"
	Detached ChangeKind = "detached"
)

// Change describes one mutation of the index.
type Change struct {
	Kind     ChangeKind
	Event    *Event
	Previous *Event
	// Replaced marks the changes raised by Replace.
	Replaced bool
}

// Options configures an Index.
type Options struct {
	// MultidayEvents keeps events spanning several days. When false, an
	// event is cut at the end of its start day.
	MultidayEvents bool

	// SnapToInterval (minutes) applies to Create.
	SnapToInterval int

	// Location is the display timezone. Defaults to time.Local.
	Location *time.Location

	IndexThreshold  int
	DefaultDuration int
	MaxOccurrences  int

	// NewID generates ids for records without one. Defaults to UUIDs.
	NewID func() string
}

// buckets maps year -> month -> day -> event ids.
type buckets map[int]map[time.Month]map[int][]string

// Index is the single source of truth for the events of one calendar.
type Index struct {
	mu   sync.RWMutex
	opts Options

	// state is replaced wholesale on every mutation.
	state *snapshot

	lmu       sync.Mutex
	listeners map[int]func(Change)
	nextID    int
}

type snapshot struct {
	events []*Event // sorted, recurring bases included
	byID   map[string]*Event
	// days is nil below IndexThreshold; range queries then scan events.
	days      buckets
	recurring []*Event
}

// NewIndex creates an empty index.
func NewIndex(opts Options) *Index {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.IndexThreshold <= 0 {
		opts.IndexThreshold = DefaultIndexThreshold
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = defaultMaxOccurrences
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Index{
		opts:      opts,
		state:     buildSnapshot(nil, opts.IndexThreshold),
		listeners: make(map[int]func(Change)),
	}
}

// SetOptions changes normalization options for records ingested afterwards.
// Stored events keep their normalized form; re-ingest the source records
// (Replace) to apply e.g. a MultidayEvents toggle.
func (idx *Index) SetOptions(opts Options) {
	idx.mu.Lock()
	if opts.Location == nil {
		opts.Location = idx.opts.Location
	}
	if opts.IndexThreshold <= 0 {
		opts.IndexThreshold = idx.opts.IndexThreshold
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = idx.opts.DefaultDuration
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = idx.opts.MaxOccurrences
	}
	if opts.NewID == nil {
		opts.NewID = idx.opts.NewID
	}
	if opts.IndexThreshold != idx.opts.IndexThreshold {
		idx.state = buildSnapshot(append([]*Event(nil), idx.state.events...), opts.IndexThreshold)
	}
	idx.opts = opts
	idx.mu.Unlock()
}

// Subscribe registers fn for every change and returns a function removing it.
// Listeners run on the mutating goroutine after the index lock is released.
func (idx *Index) Subscribe(fn func(Change)) func() {
	idx.lmu.Lock()
	defer idx.lmu.Unlock()
	id := idx.nextID
	idx.nextID++
	idx.listeners[id] = fn
	return func() {
		idx.lmu.Lock()
		delete(idx.listeners, id)
		idx.lmu.Unlock()
	}
}

func (idx *Index) notify(changes ...Change) {
	idx.lmu.Lock()
	ids := make([]int, 0, len(idx.listeners))
	for id := range idx.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, idx.listeners[id])
	}
	idx.lmu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// Len returns the number of stored events (recurring bases count once).
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.state.events)
}

// All returns the stored events ordered by start.
func (idx *Index) All() []*Event {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]*Event(nil), idx.state.events...)
}

// GetByID returns a stored event. Occurrence ids resolve to their base.
func (idx *Index) GetByID(id string) (*Event, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if ev, ok := idx.state.byID[id]; ok {
		return ev, true
	}
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '@' {
			ev, ok := idx.state.byID[id[:i]]
			return ev, ok
		}
	}
	return nil, false
}

// Replace discards all events and ingests records.
func (idx *Index) Replace(records ...model.Event) []*Event {
	added := idx.normalizeAll(records)

	idx.mu.Lock()
	idx.state = buildSnapshot(dedupe(added), idx.opts.IndexThreshold)
	idx.mu.Unlock()

	appLog.Debug("events replaced", "count", len(added))
	changes := make([]Change, 0, len(added))
	for _, ev := range added {
		changes = append(changes, Change{Kind: Created, Event: ev, Replaced: true})
	}
	idx.notify(changes...)
	return added
}

// Upsert ingests records, replacing stored events with the same id. Invalid
// records are dropped and logged.
func (idx *Index) Upsert(records ...model.Event) []*Event {
	added := idx.normalizeAll(records)
	if len(added) == 0 {
		return nil
	}

	changes := make([]Change, 0, len(added))

	idx.mu.Lock()
	cur := idx.state
	next := make([]*Event, 0, len(cur.events)+len(added))
	incoming := make(map[string]*Event, len(added))
	for _, ev := range dedupe(added) {
		incoming[ev.ID] = ev
	}
	for _, ev := range cur.events {
		if nev, ok := incoming[ev.ID]; ok {
			changes = append(changes, Change{Kind: Updated, Event: nev, Previous: ev})
			continue
		}
		next = append(next, ev)
	}
	for _, ev := range dedupe(added) {
		if _, existed := cur.byID[ev.ID]; !existed {
			changes = append(changes, Change{Kind: Created, Event: ev})
		}
		next = append(next, ev)
	}
	idx.state = buildSnapshot(next, idx.opts.IndexThreshold)
	idx.mu.Unlock()

	idx.notify(changes...)
	return added
}

func (idx *Index) normalizeAll(records []model.Event) []*Event {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]*Event, 0, len(records))
	for _, rec := range records {
		ev, err := idx.normalize(rec)
		if err != nil {
			appLog.Error("event dropped", err, "id", rec.ID, "title", rec.Title)
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Create inserts a new event. A missing end defaults to start plus
// DefaultDuration; both edges snap to SnapToInterval (nearest boundary,
// halves round up).
func (idx *Index) Create(partial model.Event) (*Event, error) {
	ev, err := idx.prepareCreate(partial)
	if err != nil {
		appLog.Error("event create refused", err, "id", partial.ID, "title", partial.Title)
		return nil, err
	}
	return idx.insert(ev)
}

// Insert adds rec as given, without the defaults and snapping of Create. It
// never replaces a stored event: a taken id yields ErrDuplicateID.
func (idx *Index) Insert(rec model.Event) (*Event, error) {
	idx.mu.RLock()
	ev, err := idx.normalize(rec)
	idx.mu.RUnlock()
	if err != nil {
		appLog.Error("event insert refused", err, "id", rec.ID, "title", rec.Title)
		return nil, err
	}
	return idx.insert(ev)
}

func (idx *Index) insert(ev *Event) (*Event, error) {
	idx.mu.Lock()
	if _, exists := idx.state.byID[ev.ID]; exists {
		idx.mu.Unlock()
		appLog.Warn("event create refused: duplicate id", "id", ev.ID)
		return nil, ErrDuplicateID
	}
	next := append(append([]*Event(nil), idx.state.events...), ev)
	idx.state = buildSnapshot(next, idx.opts.IndexThreshold)
	idx.mu.Unlock()

	appLog.Debug("event created", "id", ev.ID, "start", ev.Start, "end", ev.End)
	idx.notify(Change{Kind: Created, Event: ev})
	return ev, nil
}

func (idx *Index) prepareCreate(rec model.Event) (*Event, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if rec.Start.IsZero() && rec.StartText != "" {
		t, err := dateutil.Parse(rec.StartText, idx.opts.Location)
		if err != nil {
			return nil, ErrInvalidEvent
		}
		rec.Start, rec.StartText = t, ""
	}
	if rec.End.IsZero() && rec.EndText == "" && !rec.Start.IsZero() {
		rec.End = rec.Start.Add(time.Duration(idx.opts.DefaultDuration) * time.Minute)
	}

	if snap := idx.opts.SnapToInterval; snap > 0 && !rec.AllDay && !rec.Start.IsZero() && !rec.End.IsZero() {
		start := dateutil.SnapToInterval(rec.Start.In(idx.opts.Location), snap)
		end := dateutil.SnapToInterval(rec.End.In(idx.opts.Location), snap)
		if !end.After(start) {
			end = start.Add(time.Duration(snap) * time.Minute)
		}
		rec.Start, rec.End = start, end
	}
	return idx.normalize(rec)
}

// Update applies fn to a copy of the stored record and swaps the result in.
// The stored event is unchanged if the edited record is invalid or if the
// event changed while fn ran.
func (idx *Index) Update(id string, fn func(rec *model.Event)) (*Event, error) {
	idx.mu.RLock()
	cur, ok := idx.state.byID[id]
	idx.mu.RUnlock()
	if !ok {
		appLog.Warn("event update ignored: not found", "id", id)
		return nil, ErrNotFound
	}

	rec := cur.Event
	fn(&rec)
	rec.ID = cur.ID

	idx.mu.Lock()
	nev, err := idx.normalize(rec)
	if err != nil {
		idx.mu.Unlock()
		appLog.Error("event update refused", err, "id", id)
		return nil, err
	}
	if idx.state.byID[id] != cur {
		idx.mu.Unlock()
		appLog.Warn("event update refused: changed concurrently", "id", id)
		return nil, ErrConflict
	}
	idx.state = buildSnapshot(swapEvent(idx.state.events, cur, nev), idx.opts.IndexThreshold)
	idx.mu.Unlock()

	idx.notify(Change{Kind: Updated, Event: nev, Previous: cur})
	return nev, nil
}

// Delete removes or arms the event id. Refusals (unknown id, deletable set
// to false) are logged and reported as false.
func (idx *Index) Delete(id string, stage DeleteStage) bool {
	idx.mu.Lock()
	cur, ok := idx.state.byID[id]
	if !ok {
		idx.mu.Unlock()
		appLog.Warn("event delete ignored", "id", id, "error", ErrNotFound)
		return false
	}
	if cur.Deletable != nil && !*cur.Deletable && stage != StageDetach {
		idx.mu.Unlock()
		appLog.Info("event delete refused", "id", id, "error", ErrNotDeletable)
		return false
	}

	var change Change
	switch {
	case stage == StageArm && !cur.Deleting:
		armed := cur.clone()
		armed.Deleting = true
		idx.state = buildSnapshot(swapEvent(idx.state.events, cur, armed), idx.opts.IndexThreshold)
		change = Change{Kind: Armed, Event: armed, Previous: cur}
	case stage == StageDetach:
		idx.state = buildSnapshot(swapEvent(idx.state.events, cur, nil), idx.opts.IndexThreshold)
		change = Change{Kind: Detached, Event: cur}
	default:
		idx.state = buildSnapshot(swapEvent(idx.state.events, cur, nil), idx.opts.IndexThreshold)
		change = Change{Kind: Deleted, Event: cur}
	}
	idx.mu.Unlock()

	appLog.Debug("event delete", "id", id, "kind", string(change.Kind))
	idx.notify(change)
	return true
}

// Disarm cancels an armed deletion.
func (idx *Index) Disarm(id string) bool {
	idx.mu.Lock()
	cur, ok := idx.state.byID[id]
	if !ok || !cur.Deleting {
		idx.mu.Unlock()
		return false
	}
	nev := cur.clone()
	nev.Deleting = false
	idx.state = buildSnapshot(swapEvent(idx.state.events, cur, nev), idx.opts.IndexThreshold)
	idx.mu.Unlock()

	idx.notify(Change{Kind: Disarmed, Event: nev, Previous: cur})
	return true
}

// DeleteWhere deletes every event matching pred and returns how many were
// deleted.
func (idx *Index) DeleteWhere(pred func(*Event) bool, stage DeleteStage) int {
	var ids []string
	for _, ev := range idx.All() {
		if pred(ev) {
			ids = append(ids, ev.ID)
		}
	}
	n := 0
	for _, id := range ids {
		if idx.Delete(id, stage) {
			n++
		}
	}
	return n
}

// GetInRange returns the events overlapping [start, end) that pass f, with
// recurring events expanded into occurrences. Results are ordered by start,
// longer events first on ties.
func (idx *Index) GetInRange(start, end time.Time, f Filter) []*Event {
	idx.mu.RLock()
	st := idx.state
	useBuckets := st.days != nil
	loc := idx.opts.Location
	idx.mu.RUnlock()

	if useBuckets {
		return idx.getInRangeIndexed(st, start.In(loc), end.In(loc), f)
	}
	return idx.getInRangeLinear(st, start, end, f)
}

func (idx *Index) getInRangeLinear(st *snapshot, start, end time.Time, f Filter) []*Event {
	excluded := excludeSet(f.ExcludeIDs)
	var out []*Event
	for _, ev := range st.events {
		if ev.Recurring {
			continue
		}
		if matches(ev, start, end, f, excluded) {
			out = append(out, ev)
		}
	}
	out = append(out, idx.recurringInRange(st, start, end, f, excluded)...)
	sortEvents(out)
	return out
}

func (idx *Index) getInRangeIndexed(st *snapshot, start, end time.Time, f Filter) []*Event {
	excluded := excludeSet(f.ExcludeIDs)
	if !end.After(start) {
		return nil
	}
	first := dateutil.StartOfDay(start)
	last := dateutil.StartOfDay(end.Add(-time.Nanosecond))

	seen := make(map[string]struct{})
	var out []*Event
	for y := first.Year(); y <= last.Year(); y++ {
		months, ok := st.days[y]
		if !ok {
			continue
		}
		for m, days := range months {
			for d, ids := range days {
				day := time.Date(y, m, d, 0, 0, 0, 0, first.Location())
				if day.Before(first) || day.After(last) {
					continue
				}
				for _, id := range ids {
					if _, dup := seen[id]; dup {
						continue
					}
					seen[id] = struct{}{}
					ev := st.byID[id]
					if matches(ev, start, end, f, excluded) {
						out = append(out, ev)
					}
				}
			}
		}
	}
	out = append(out, idx.recurringInRange(st, start, end, f, excluded)...)
	sortEvents(out)
	return out
}

func (idx *Index) recurringInRange(st *snapshot, start, end time.Time, f Filter, excluded map[string]struct{}) []*Event {
	var out []*Event
	for _, base := range st.recurring {
		for _, occ := range idx.expandRecurring(base, start, end) {
			if _, skip := excluded[occ.OccurrenceOf]; skip && occ.OccurrenceOf != "" {
				continue
			}
			if matches(occ, start, end, f, excluded) {
				out = append(out, occ)
			}
		}
	}
	return out
}

func matches(ev *Event, start, end time.Time, f Filter, excluded map[string]struct{}) bool {
	if !dateutil.Overlaps(ev.Start, ev.End, start, end) {
		return false
	}
	if _, skip := excluded[ev.ID]; skip {
		return false
	}
	if f.Schedule != "" && ev.Schedule != f.Schedule {
		return false
	}
	if !f.Background.accepts(ev.Background) {
		return false
	}
	return f.AllDay.accepts(ev.AllDay)
}

func (m Match) accepts(flag bool) bool {
	switch m {
	case Only:
		return flag
	case Exclude:
		return !flag
	default:
		return true
	}
}

func excludeSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortEvents(evs []*Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.After(b.End)
		}
		return a.ID < b.ID
	})
}

// dedupe keeps the last record for each id.
func dedupe(evs []*Event) []*Event {
	pos := make(map[string]int, len(evs))
	out := make([]*Event, 0, len(evs))
	for _, ev := range evs {
		if i, ok := pos[ev.ID]; ok {
			out[i] = ev
			continue
		}
		pos[ev.ID] = len(out)
		out = append(out, ev)
	}
	return out
}

// swapEvent returns a copy of evs with old replaced by nev, or removed when
// nev is nil.
func swapEvent(evs []*Event, old, nev *Event) []*Event {
	out := make([]*Event, 0, len(evs))
	for _, ev := range evs {
		if ev == old {
			if nev != nil {
				out = append(out, nev)
			}
			continue
		}
		out = append(out, ev)
	}
	return out
}

// buildSnapshot sorts evs in place. Day buckets are only kept from threshold
// events on.
func buildSnapshot(evs []*Event, threshold int) *snapshot {
	st := &snapshot{
		events: evs,
		byID:   make(map[string]*Event, len(evs)),
	}
	if len(evs) >= threshold {
		st.days = make(buckets)
	}
	sortEvents(st.events)
	for _, ev := range evs {
		st.byID[ev.ID] = ev
		if ev.Recurring {
			st.recurring = append(st.recurring, ev)
			continue
		}
		if st.days == nil {
			continue
		}
		last := ev.LastDay()
		for d := dateutil.StartOfDay(ev.Start); !d.After(last); d = d.AddDate(0, 0, 1) {
			st.days.add(d, ev.ID)
		}
	}
	return st
}

func (b buckets) add(d time.Time, id string) {
	months, ok := b[d.Year()]
	if !ok {
		months = make(map[time.Month]map[int][]string)
		b[d.Year()] = months
	}
	days, ok := months[d.Month()]
	if !ok {
		days = make(map[int][]string)
		months[d.Month()] = days
	}
	days[d.Day()] = append(days[d.Day()], id)
}
