package interact

import (
	"context"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

type verdict int

const (
	rejected verdict = iota
	accepted
	replaced
)

// Decision is the outcome of an accept/reject hook. The zero value rejects.
type Decision struct {
	verdict verdict
	event   model.Event
}

// Accept commits the computed event.
func Accept() Decision { return Decision{verdict: accepted} }

// Replace commits ev instead of the computed event.
func Replace(ev model.Event) Decision { return Decision{verdict: replaced, event: ev} }

// Reject aborts the gesture.
func Reject() Decision { return Decision{} }

func (d Decision) Accepted() bool { return d.verdict != rejected }

// Replacement returns the event supplied with Replace.
func (d Decision) Replacement() (model.Event, bool) {
	return d.event, d.verdict == replaced
}

func (d Decision) String() string {
	switch d.verdict {
	case accepted:
		return "accept"
	case replaced:
		return "replace"
	default:
		return "reject"
	}
}

// CreateHook vets an event about to be created. A replacement is inserted
// verbatim.
type CreateHook func(ctx context.Context, ev model.Event) (Decision, error)

// DropHook vets a move. A replacement is merged over the computed event.
type DropHook func(ctx context.Context, drop DropInfo) (Decision, error)

// ResizeHook vets a resize; it receives the resized and the original event.
type ResizeHook func(ctx context.Context, ev, original model.Event) (Decision, error)

// Hooks are optional; a nil hook accepts.
type Hooks struct {
	Create CreateHook
	Drop   DropHook
	// Resize runs on every pointer move of a resize.
	Resize ResizeHook
	// ResizeEnd runs once on release.
	ResizeEnd ResizeHook
}

// DropInfo describes a pending drop.
type DropInfo struct {
	// Event is the moved event at its new position.
	Event    model.Event
	Original model.Event
	Cell     model.Cell
	// External is set when the event comes from another calendar instance.
	External bool
	Source   string
}

// resolve runs a hook result through the shared rules: an error or a
// rejection aborts.
func resolve(gesture string, d Decision, err error) (Decision, bool) {
	if err != nil {
		appLog.Error(gesture+" hook failed", err)
		return Reject(), false
	}
	if !d.Accepted() {
		appLog.Debug(gesture + " rejected by hook")
		return d, false
	}
	return d, true
}
