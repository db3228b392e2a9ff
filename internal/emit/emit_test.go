package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusOrderAndUnsubscribe(t *testing.T) {
	var b Bus
	var got []string

	offA := b.Subscribe(func(n Notification) { got = append(got, "a:"+string(n.Name)) })
	b.Subscribe(func(n Notification) { got = append(got, "b:"+string(n.Name)) })

	b.Emit(Notification{Name: EventCreated})
	offA()
	offA()
	b.Emit(Notification{Name: EventDelete})

	assert.Equal(t, []string{"a:event-created", "b:event-created", "b:event-delete"}, got)
	assert.Equal(t, 1, b.Len())
}

func TestSubscribeFromListener(t *testing.T) {
	var b Bus
	calls := 0
	b.Subscribe(func(Notification) {
		calls++
		b.Subscribe(func(Notification) { calls++ })
	})

	b.Emit(Notification{Name: ViewChange})
	assert.Equal(t, 1, calls)

	b.Emit(Notification{Name: ViewChange})
	assert.Equal(t, 3, calls)
}

func TestNilBusEmit(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() { b.Emit(Notification{Name: ViewChange}) })
}
