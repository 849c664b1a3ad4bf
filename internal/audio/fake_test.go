package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_CaptureLifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	handle, err := f.BeginCapture(ctx, CaptureConfig{Container: ".m4a"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.ActiveCaptures())

	asset, err := f.EndCapture(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, ".m4a", asset.Container)
	assert.Equal(t, int64(3000), asset.DurationMillis)
	assert.Equal(t, 0, f.ActiveCaptures())

	_, err = f.EndCapture(ctx, handle)
	assert.ErrorIs(t, err, ErrCapture, "a finalized capture cannot be ended twice")

	assert.Equal(t, []string{"begin", "end", "end"}, f.Calls())
}

func TestFake_ScriptedFailures(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.BeginErr = errors.New("no device")
	f.LoadErr = errors.New("corrupt")

	_, err := f.BeginCapture(ctx, CaptureConfig{})
	assert.ErrorIs(t, err, ErrCapture)

	_, err = f.LoadAndPlay(ctx, &Asset{})
	assert.ErrorIs(t, err, ErrPlayback)
}

func TestFake_FailedEndKeepsCapture(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	handle, err := f.BeginCapture(ctx, CaptureConfig{Container: ".m4a"})
	require.NoError(t, err)

	f.EndErr = errors.New("encoder crashed")
	_, err = f.EndCapture(ctx, handle)
	assert.ErrorIs(t, err, ErrCapture)
	assert.Equal(t, 1, f.ActiveCaptures())

	f.EndErr = nil
	_, err = f.EndCapture(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, 0, f.ActiveCaptures())
}

func TestFakePlayback_StopClosesUpdates(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	h, err := f.LoadAndPlay(ctx, &Asset{DurationMillis: 1000})
	require.NoError(t, err)
	p := f.Playbacks()[0]

	p.Emit(500)
	st := <-h.Updates()
	assert.Equal(t, int64(500), st.PositionMillis)

	require.NoError(t, h.Pause(ctx))
	assert.False(t, p.Playing())
	require.NoError(t, h.Stop(ctx))

	_, ok := <-h.Updates()
	assert.False(t, ok)
	assert.Error(t, h.Resume(ctx))
	assert.Equal(t, []string{"pause", "stop"}, p.Calls())
}
