package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAudioCacheContract runs a suite of tests to verify that an AudioCache implementation
// adheres to the defined interface contract.
func RunAudioCacheContract(t *testing.T, cache AudioCache) {
	ctx := context.Background()
	key := "contract-clip-" + time.Now().Format("20060102150405")

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, key+"-absent")
		require.NoError(t, err, "a miss is not an error")
		assert.False(t, ok)
	})

	t.Run("Put and Get", func(t *testing.T) {
		clip := domain.AudioClip{Data: []byte{0x49, 0x44, 0x33, 0x04}, MIME: "audio/mpeg"}

		require.NoError(t, cache.Put(ctx, key, clip))

		got, ok, err := cache.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, clip.Data, got.Data)
		assert.Equal(t, clip.MIME, got.MIME)
	})

	t.Run("Overwrite", func(t *testing.T) {
		clip := domain.AudioClip{Data: []byte("second"), MIME: "audio/wav"}
		require.NoError(t, cache.Put(ctx, key, clip))

		got, ok, err := cache.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "second", string(got.Data))
	})
}
