package emit

import (
	"sync"
	"time"

	"calgrid/internal/events"
	"calgrid/internal/model"
)

// Name identifies a notification raised to the host application.
type Name string

const (
	ViewChange         Name = "view-change"
	UpdateView         Name = "update:view"
	UpdateViewDate     Name = "update:viewDate"
	UpdateSelectedDate Name = "update:selectedDate"
	UpdateEvents       Name = "update:events"

	EventCreated   Name = "event-created"
	EventDropped   Name = "event-dropped"
	EventDragStart Name = "event-drag-start"
	EventDragEnd   Name = "event-drag-end"
	EventDelete    Name = "event-delete"
	EventResizeEnd Name = "event-resize-end"

	EventHold     Name = "event-hold"
	EventClick    Name = "event-click"
	EventDblClick Name = "event-dblclick"
	CellHold      Name = "cell-hold"
	CellClick     Name = "cell-click"
	CellDblClick  Name = "cell-dblclick"
)

// ViewInfo describes the visible window in view notifications.
type ViewInfo struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	FirstCellDate time.Time `json:"firstCellDate"`
	LastCellDate  time.Time `json:"lastCellDate"`

	// Events visible in [FirstCellDate, LastCellDate).
	Events []*events.Event `json:"events,omitempty"`
}

// Notification carries the context a host needs to persist or veto a change.
// Only the fields relevant to Name are set.
type Notification struct {
	Name Name `json:"name"`

	Event    *events.Event `json:"event,omitempty"`
	Original *events.Event `json:"original,omitempty"`
	Cell     *model.Cell   `json:"cell,omitempty"`

	// Date is the selected / view date, or the cursor time for gestures.
	Date time.Time `json:"date,omitempty"`
	View *ViewInfo `json:"view,omitempty"`

	// Instance is the calendar instance that raised the notification; set on
	// cross-instance drops to the source instance.
	Instance string `json:"instance,omitempty"`
	Source   string `json:"source,omitempty"`

	// Events is the full corpus for update:events.
	Events []*events.Event `json:"events,omitempty"`
}

// Listener receives notifications synchronously, in subscription order.
type Listener func(Notification)

// Bus is an ordered listener list. The zero value is ready to use.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners []entry
}

type entry struct {
	id int
	fn Listener
}

// Subscribe registers fn and returns a func removing it again.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, entry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, e := range b.listeners {
				if e.id == id {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers n to every listener. Listeners may subscribe or unsubscribe
// from inside a callback; changes take effect on the next Emit.
func (b *Bus) Emit(n Notification) {
	if b == nil {
		return
	}
	b.mu.RLock()
	ls := make([]entry, len(b.listeners))
	copy(ls, b.listeners)
	b.mu.RUnlock()

	for _, e := range ls {
		e.fn(n)
	}
}

// Len returns the number of listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
