package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/adapters/redis"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSink_Emit(t *testing.T) {
	_, client := newClient(t)
	sink := redis.NewStreamSink(client, "narrate:events", 100)
	ctx := context.Background()

	at := time.UnixMilli(1700000000000)
	require.NoError(t, sink.Emit(ctx, domain.AnalyticsEvent{
		Type: domain.EventStepView, TourID: "onboarding", StepID: "welcome",
		SessionID: "s1", Metadata: map[string]any{"stepIndex": 0}, Timestamp: at,
	}))
	require.NoError(t, sink.Emit(ctx, domain.AnalyticsEvent{Type: domain.EventComplete, TourID: "onboarding", SessionID: "s1"}))

	entries, err := client.XRange(ctx, "narrate:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0].Values
	assert.Equal(t, "step_view", first["type"])
	assert.Equal(t, "welcome", first["stepId"])
	assert.Equal(t, "s1", first["sessionId"])
	assert.JSONEq(t, `{"stepIndex":0}`, first["metadata"].(string))
	assert.Equal(t, "1700000000000", first["timestamp"])
	assert.Equal(t, "complete", entries[1].Values["type"])
}
