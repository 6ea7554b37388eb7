package process

import (
	"context"
	"io"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("recorder tests use a POSIX shell")
	}
}

func TestSource_StreamsStdout(t *testing.T) {
	skipWindows(t)
	src := NewSource(Recorder{Name: "fake", Command: "sh", Args: []string{"-c", `printf "$PCM"`}, Env: map[string]string{"PCM": "pcm-bytes"}})

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pcm-bytes", string(data))
	assert.NoError(t, rc.Close())
}

func TestSource_CloseStopsRecorder(t *testing.T) {
	skipWindows(t)
	src := NewSource(Recorder{Name: "endless", Command: "sleep", Args: []string{"30"}}, WithWaitDelay(500*time.Millisecond))

	rc, err := src.Open(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- rc.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}
}

func TestSource_StartFailure(t *testing.T) {
	_, err := NewSource(Recorder{Name: "missing", Command: "narrate-no-such-recorder"}).Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestResolve(t *testing.T) {
	r, err := Resolve("", nil)
	require.NoError(t, err)
	assert.Equal(t, "arecord", r.Command)

	r, err = Resolve("sox", []string{"my-rec", "--raw"})
	require.NoError(t, err)
	assert.Equal(t, Recorder{Name: "custom", Command: "my-rec", Args: []string{"--raw"}}, r)

	_, err = Resolve("walkman", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arecord, ffmpeg-pulse, sox")
}
