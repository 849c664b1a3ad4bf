package playback

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/config"
	"github.com/audiolibrelab/voicememo/internal/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bars = 50

func setup(t *testing.T, opts Options) (*Controller, *audio.Fake, *recording.Store) {
	t.Helper()
	fake := audio.NewFake()
	store := recording.NewStore()
	c := New(fake, store, opts)
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, fake, store
}

func appendRecording(store *recording.Store, id string) recording.Recording {
	amps := make([]float64, bars)
	for i := range amps {
		amps[i] = 20 + float64(i%5)*10
	}
	return store.Append(recording.Recording{
		Asset:      &audio.Asset{ID: id, Path: "memory/" + id + ".m4a", Container: ".m4a", DurationMillis: 3000},
		Amplitudes: amps,
	})
}

func playbackOf(t *testing.T, store *recording.Store, id string) recording.PlaybackState {
	t.Helper()
	rec, ok := store.Get(id)
	require.True(t, ok)
	return rec.Playback
}

func waitPlayhead(t *testing.T, store *recording.Store, id string, want float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return math.Abs(playbackOf(t, store, id).PlayheadFraction-want) < 1e-9
	}, time.Second, time.Millisecond)
}

func TestToggle_UnknownOrAssetlessIsNoop(t *testing.T) {
	c, fake, store := setup(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.TogglePlayback(ctx, "missing"))

	rec := store.Append(recording.Recording{Amplitudes: []float64{20, 30}})
	require.NoError(t, c.TogglePlayback(ctx, rec.ID))

	assert.Empty(t, fake.Calls())
	assert.False(t, playbackOf(t, store, rec.ID).IsPlaying)
}

func TestToggle_FirstPlayLoadsAsset(t *testing.T) {
	c, fake, store := setup(t, Options{})
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(context.Background(), rec.ID))

	assert.Equal(t, []string{"load"}, fake.Calls())
	require.Len(t, fake.Playbacks(), 1)
	assert.Equal(t, rec.Asset, fake.Playbacks()[0].Asset)
	assert.Equal(t, recording.PlaybackState{IsPlaying: true, PlayheadFraction: 0}, playbackOf(t, store, rec.ID))
}

func TestToggle_PositionUpdatesMoveThePlayhead(t *testing.T) {
	c, fake, store := setup(t, Options{})
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(context.Background(), rec.ID))
	p := fake.Playbacks()[0]

	p.Emit(1500)
	waitPlayhead(t, store, rec.ID, 25)

	p.Emit(3000)
	waitPlayhead(t, store, rec.ID, bars)
	assert.True(t, playbackOf(t, store, rec.ID).IsPlaying, "a position report does not end playback")
}

func TestToggle_PlayThenPauseKeepsPlayhead(t *testing.T) {
	c, fake, store := setup(t, Options{})
	ctx := context.Background()
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(ctx, rec.ID))
	fake.Playbacks()[0].Emit(600)
	waitPlayhead(t, store, rec.ID, 10)

	before := playbackOf(t, store, rec.ID).PlayheadFraction
	require.NoError(t, c.TogglePlayback(ctx, rec.ID))
	require.NoError(t, c.TogglePlayback(ctx, rec.ID))

	state := playbackOf(t, store, rec.ID)
	assert.Equal(t, before, state.PlayheadFraction)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, []string{"pause", "resume"}, fake.Playbacks()[0].Calls())
	assert.Len(t, fake.Playbacks(), 1, "resume reuses the loaded asset")
}

func TestToggle_PauseLeavesPlayhead(t *testing.T) {
	c, fake, store := setup(t, Options{})
	ctx := context.Background()
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(ctx, rec.ID))
	fake.Playbacks()[0].Emit(900)
	waitPlayhead(t, store, rec.ID, 15)

	require.NoError(t, c.TogglePlayback(ctx, rec.ID))
	state := playbackOf(t, store, rec.ID)
	assert.False(t, state.IsPlaying)
	assert.InDelta(t, 15, state.PlayheadFraction, 1e-9)
	assert.False(t, fake.Playbacks()[0].Playing())
}

func TestToggle_FinishParksPlayheadAtEnd(t *testing.T) {
	c, fake, store := setup(t, Options{})
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(context.Background(), rec.ID))
	fake.Playbacks()[0].Emit(2000)
	fake.Playbacks()[0].Finish()

	require.Eventually(t, func() bool {
		return !playbackOf(t, store, rec.ID).IsPlaying
	}, time.Second, time.Millisecond)
	assert.Equal(t, float64(bars), playbackOf(t, store, rec.ID).PlayheadFraction)
}

func TestToggle_ReplayAfterFinishSeeksToStart(t *testing.T) {
	c, fake, store := setup(t, Options{})
	ctx := context.Background()
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(ctx, rec.ID))
	p := fake.Playbacks()[0]
	p.Finish()
	require.Eventually(t, func() bool {
		state := playbackOf(t, store, rec.ID)
		return !state.IsPlaying && state.PlayheadFraction == bars
	}, time.Second, time.Millisecond)

	require.NoError(t, c.TogglePlayback(ctx, rec.ID))

	assert.Equal(t, []string{"seek:0", "resume"}, p.Calls())
	assert.Equal(t, recording.PlaybackState{IsPlaying: true, PlayheadFraction: 0}, playbackOf(t, store, rec.ID))
}

func TestToggle_ImmediateFinishIsKept(t *testing.T) {
	c, fake, store := setup(t, Options{})
	fake.FinishOnLoad = true
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(context.Background(), rec.ID))

	parked := recording.PlaybackState{IsPlaying: false, PlayheadFraction: bars}
	require.Eventually(t, func() bool {
		return playbackOf(t, store, rec.ID) == parked
	}, time.Second, time.Millisecond)
	assert.Never(t, func() bool {
		return playbackOf(t, store, rec.ID).IsPlaying
	}, 50*time.Millisecond, 5*time.Millisecond, "a player that exits at once stays finished")
}

func TestToggle_ReloadAfterCloseStartsAtZero(t *testing.T) {
	c, fake, store := setup(t, Options{})
	ctx := context.Background()
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(ctx, rec.ID))
	fake.Playbacks()[0].Finish()
	waitPlayhead(t, store, rec.ID, bars)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.TogglePlayback(ctx, rec.ID))

	require.Len(t, fake.Playbacks(), 2, "closed handles are loaded again")
	assert.Equal(t, recording.PlaybackState{IsPlaying: true, PlayheadFraction: 0}, playbackOf(t, store, rec.ID))
}

func TestToggle_LoadFailure(t *testing.T) {
	c, fake, store := setup(t, Options{})
	fake.LoadErr = errors.New("unsupported codec")
	rec := appendRecording(store, "a")

	err := c.TogglePlayback(context.Background(), rec.ID)
	assert.ErrorIs(t, err, audio.ErrPlayback)
	assert.False(t, playbackOf(t, store, rec.ID).IsPlaying)

	fake.LoadErr = nil
	require.NoError(t, c.TogglePlayback(context.Background(), rec.ID))
	assert.True(t, playbackOf(t, store, rec.ID).IsPlaying)
}

func TestToggle_RecordingsPlayIndependently(t *testing.T) {
	c, fake, store := setup(t, Options{})
	ctx := context.Background()
	a := appendRecording(store, "a")
	b := appendRecording(store, "b")

	require.NoError(t, c.TogglePlayback(ctx, a.ID))
	require.NoError(t, c.TogglePlayback(ctx, b.ID))

	assert.True(t, playbackOf(t, store, a.ID).IsPlaying)
	assert.True(t, playbackOf(t, store, b.ID).IsPlaying)

	fake.Playbacks()[0].Emit(1500)
	fake.Playbacks()[1].Emit(300)
	waitPlayhead(t, store, a.ID, 25)
	waitPlayhead(t, store, b.ID, 5)
}

func TestToggle_ExclusivePausesOthers(t *testing.T) {
	c, fake, store := setup(t, Options{Exclusive: true})
	ctx := context.Background()
	a := appendRecording(store, "a")
	b := appendRecording(store, "b")

	require.NoError(t, c.TogglePlayback(ctx, a.ID))
	require.NoError(t, c.TogglePlayback(ctx, b.ID))

	assert.False(t, playbackOf(t, store, a.ID).IsPlaying)
	assert.True(t, playbackOf(t, store, b.ID).IsPlaying)
	assert.Equal(t, []string{"pause"}, fake.Playbacks()[0].Calls())
}

func TestClose_StopsHandles(t *testing.T) {
	fake := audio.NewFake()
	store := recording.NewStore()
	c := New(fake, store, Options{})
	ctx := context.Background()
	rec := appendRecording(store, "a")

	require.NoError(t, c.TogglePlayback(ctx, rec.ID))
	require.NoError(t, c.Close(ctx))

	p := fake.Playbacks()[0]
	assert.Equal(t, []string{"stop"}, p.Calls())
	_, open := <-p.Updates()
	assert.False(t, open)
	assert.False(t, playbackOf(t, store, rec.ID).IsPlaying)
}

func TestFraction(t *testing.T) {
	tests := []struct {
		name     string
		position int64
		duration int64
		expected float64
	}{
		{"start", 0, 3000, 0},
		{"half", 1500, 3000, 25},
		{"end", 3000, 3000, 50},
		{"past end", 4000, 3000, 50},
		{"negative", -10, 3000, 0},
		{"unknown duration", 1000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fraction(tt.position, tt.duration, bars))
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.False(t, OptionsFromConfig(cfg).Exclusive)

	cfg.Playback.Exclusive = true
	assert.True(t, OptionsFromConfig(cfg).Exclusive)
}
