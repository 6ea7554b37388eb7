package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/conversation"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roles(msgs []domain.Message) []domain.Role {
	out := make([]domain.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestConversation_ParksAndContinuesTheTour(t *testing.T) {
	h := newHarness(t, harnessConfig{
		narration: 150 * time.Millisecond,
		answerer: answererFunc(func(context.Context, conversation.Question) (conversation.Answer, error) {
			return conversation.Answer{}, errors.New("service unavailable")
		}),
	})
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, ""))
	h.engine.Next(ctx)
	require.Eventually(t, func() bool { return h.spokenCount("Search here") == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.engine.OpenConversation(ctx))
	assert.Equal(t, domain.StateConversation, h.engine.State())
	assert.True(t, h.overlay.IsOpen())
	assert.Equal(t, 1, h.overlay.Context().StepIndex)

	require.NoError(t, h.engine.Ask(ctx, "What does this do?"))
	assert.Equal(t, []domain.Role{domain.RoleAgent, domain.RoleUser, domain.RoleSystem}, roles(h.overlay.Transcript()))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, h.engine.Index(), "the tour does not advance during a conversation")

	require.NoError(t, h.engine.CloseConversation(ctx))
	assert.False(t, h.overlay.IsOpen())
	assert.Equal(t, domain.StatePlaying, h.engine.State())
	assert.Equal(t, 1, h.engine.Index())

	require.Eventually(t, func() bool { return h.spokenCount("Search here") == 2 }, time.Second, 2*time.Millisecond,
		"interrupted narration is replayed")
	require.Eventually(t, func() bool { return h.engine.Index() == 2 }, 2*time.Second, 2*time.Millisecond)
}

func TestConversation_AnswerIsSpoken(t *testing.T) {
	h := newHarness(t, harnessConfig{narration: 50 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, h.engine.OpenConversation(ctx))
	assert.Equal(t, domain.StateIdle, h.engine.State(), "an idle engine stays idle")

	require.NoError(t, h.engine.Ask(ctx, "Where do I start?"))
	assert.Equal(t, []domain.Role{domain.RoleAgent, domain.RoleUser, domain.RoleAgent}, roles(h.overlay.Transcript()))
	require.Eventually(t, func() bool { return h.spokenCount("Sure.") == 1 }, time.Second, time.Millisecond)
}

func TestConversation_ReturnsToPause(t *testing.T) {
	h := newHarness(t, harnessConfig{narration: time.Second})
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, ""))
	h.engine.Pause(ctx)

	require.NoError(t, h.engine.OpenConversation(ctx))
	assert.Equal(t, domain.StateConversation, h.engine.State())

	require.NoError(t, h.engine.CloseConversation(ctx))
	assert.Equal(t, domain.StatePaused, h.engine.State())
	assert.True(t, h.synth.Held())
}

func TestConversation_NavigationIgnored(t *testing.T) {
	h := newHarness(t, harnessConfig{narration: time.Second})
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, ""))
	require.NoError(t, h.engine.OpenConversation(ctx))

	h.engine.Next(ctx)
	h.engine.Pause(ctx)
	assert.Equal(t, 0, h.engine.Index())
	assert.Equal(t, domain.StateConversation, h.engine.State())
}

func TestConversation_StopDismissesModal(t *testing.T) {
	h := newHarness(t, harnessConfig{narration: time.Second})
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, ""))
	require.NoError(t, h.engine.OpenConversation(ctx))

	require.NoError(t, h.engine.Stop(ctx))
	assert.Equal(t, domain.StateIdle, h.engine.State())
	assert.False(t, h.overlay.IsOpen())
	_, shown := h.surface.Layer(conversation.TriggerLayer)
	assert.False(t, shown, "trigger hidden once the tour ends")
}
