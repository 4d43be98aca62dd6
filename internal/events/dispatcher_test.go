package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDispatcherContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())
	var calls []string
	d.Subscribe(EventTicketSLABreached, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("delivery failed")
	})
	d.Subscribe(EventTicketSLABreached, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "unrelated")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketSLABreached, TicketID: "t1"})

	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	delivered := false
	d.Subscribe(EventTicketSLABreached, func(context.Context, Event) error {
		panic("alert template missing")
	})
	d.Subscribe(EventTicketSLABreached, nil)
	d.Subscribe(EventTicketSLABreached, func(context.Context, Event) error {
		delivered = true
		return nil
	})

	assert.NotPanics(t, func() {
		assert.NoError(t, d.Publish(context.Background(), Event{ID: "e1", Type: EventTicketSLABreached}))
	})
	assert.True(t, delivered)
}

func TestActorID(t *testing.T) {
	assert.Equal(t, "s1", *StaffActor("s1").ID())
	assert.Equal(t, "u1", *UserActor("u1").ID())
	assert.Nil(t, SystemActor().ID())
}
