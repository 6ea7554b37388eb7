package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioCache_Contract(t *testing.T) {
	ports.RunAudioCacheContract(t, memory.NewAudioCache())
}

func TestAudioCache_CopyOnRead(t *testing.T) {
	ctx := context.Background()
	c := memory.NewAudioCache()
	require.NoError(t, c.Put(ctx, "k", domain.AudioClip{Data: []byte("abc")}))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	got.Data[0] = 'z'

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(again.Data))
	assert.Equal(t, 1, c.Len())
}
