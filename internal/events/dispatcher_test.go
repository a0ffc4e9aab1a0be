package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/portal-session/internal/events"
)

func TestDispatcherRunsEveryHandler(t *testing.T) {
	t.Parallel()

	dispatcher := events.NewInMemoryDispatcher()
	var seen []string
	dispatcher.Subscribe(events.EventLoginFailed, func(_ context.Context, e events.Event) error {
		seen = append(seen, "first")
		return errors.New("audit sink down")
	})
	dispatcher.Subscribe(events.EventLoginFailed, func(_ context.Context, e events.Event) error {
		seen = append(seen, "second")
		return nil
	})
	dispatcher.Subscribe(events.EventSessionCleared, func(context.Context, events.Event) error {
		seen = append(seen, "other")
		return nil
	})

	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventLoginFailed})
	assert.ErrorContains(t, err, "audit sink down")
	assert.Equal(t, []string{"first", "second"}, seen)
}
