package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/portal-session/internal/domain"
	"github.com/spec-kit/portal-session/internal/events"
	"github.com/spec-kit/portal-session/internal/service"
)

func TestNotificationServiceAuditsSessionEvents(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, zap.New(core)).RegisterHandlers()

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:      events.EventSessionEstablished,
		SessionID: "sess-1",
		Payload:   events.SessionEstablishedPayload{Role: domain.PartitionDoctor},
	}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:    events.EventLoginFailed,
		Payload: events.LoginFailedPayload{Code: "TIMEOUT", Stage: domain.SessionStateResolving},
	}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:    events.EventSessionCleared,
		Payload: events.SessionClearedPayload{Reason: "logout"},
	}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "SessionEstablished", entries[0].Message)
	assert.Equal(t, "DOCTOR", entries[0].ContextMap()["role"])
	assert.Equal(t, "LoginFailed", entries[1].Message)
	assert.Equal(t, "TIMEOUT", entries[1].ContextMap()["code"])
	assert.Equal(t, "SessionCleared", entries[2].Message)
	assert.Equal(t, "logout", entries[2].ContextMap()["reason"])
}
