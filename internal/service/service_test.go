package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/config"
	"github.com/audiolibrelab/voicememo/internal/recorder"
	"github.com/audiolibrelab/voicememo/internal/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*MemoService, *audio.Fake) {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.Backend = "fake"
	fake := audio.NewFake()
	s := NewWithCapability(cfg, fake)
	s.probe = func(ctx context.Context, path string) (int64, error) { return 4200, nil }
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, fake
}

func TestService_RecordAndStore(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.StartRecording(ctx))
	assert.Equal(t, recorder.StatusCapturing, s.Session().Status)

	rec, err := s.StopRecording(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, recorder.StatusIdle, s.Session().Status)
	require.Len(t, s.Recordings(), 1)
	assert.Len(t, rec.Amplitudes, s.Config().Waveform.Bars)

	got, ok := s.Recording(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.ID, got.ID)
}

func TestService_PermissionDeniedSetsLastError(t *testing.T) {
	s, fake := newTestService(t)
	ctx := context.Background()
	fake.Granted = false

	err := s.StartRecording(ctx)
	assert.ErrorIs(t, err, audio.ErrPermissionDenied)
	assert.Contains(t, s.GetLastError(), "Failed to start recording")
	assert.Equal(t, recorder.StatusIdle, s.Session().Status)

	fake.Granted = true
	require.NoError(t, s.StartRecording(ctx))
	assert.Empty(t, s.GetLastError(), "a successful start clears the error")
}

func TestService_StopFailureKeepsCapturing(t *testing.T) {
	s, fake := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.StartRecording(ctx))
	fake.EndErr = errors.New("disk full")

	_, err := s.StopRecording(ctx)
	assert.ErrorIs(t, err, audio.ErrCapture)
	assert.Contains(t, s.GetLastError(), "disk full")
	assert.Equal(t, recorder.StatusCapturing, s.Session().Status)
	assert.Empty(t, s.Recordings())
}

func TestService_DeleteDiscards(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.StartRecording(ctx))
	require.NoError(t, s.DeleteRecording(ctx))

	assert.Empty(t, s.Recordings())
	assert.Equal(t, recorder.StatusIdle, s.Session().Status)
}

func TestService_ToggleAndWaveform(t *testing.T) {
	s, fake := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.StartRecording(ctx))
	rec, err := s.StopRecording(ctx)
	require.NoError(t, err)

	require.NoError(t, s.TogglePlayback(ctx, rec.ID))
	got, _ := s.Recording(rec.ID)
	assert.True(t, got.Playback.IsPlaying)

	fake.Playbacks()[0].Finish()
	require.Eventually(t, func() bool {
		got, _ := s.Recording(rec.ID)
		return !got.Playback.IsPlaying
	}, time.Second, time.Millisecond)

	spec, ok := s.Waveform(rec.ID)
	require.True(t, ok)
	require.Len(t, spec.Bars, len(rec.Amplitudes))
	for _, bar := range spec.Bars {
		assert.True(t, bar.Active, "a finished recording is fully active")
	}

	_, ok = s.Waveform("missing")
	assert.False(t, ok)
}

func TestService_ToggleLoadFailureSetsLastError(t *testing.T) {
	s, fake := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.StartRecording(ctx))
	rec, err := s.StopRecording(ctx)
	require.NoError(t, err)

	fake.LoadErr = errors.New("no player")
	assert.ErrorIs(t, s.TogglePlayback(ctx, rec.ID), audio.ErrPlayback)
	assert.Contains(t, s.GetLastError(), "no player")
}

func TestService_Import(t *testing.T) {
	s, _ := newTestService(t)
	path := filepath.Join(t.TempDir(), "memo.m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))

	rec, err := s.Import(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, rec.Asset.Path)
	assert.Equal(t, "memo", rec.Asset.ID)
	assert.Equal(t, ".m4a", rec.Asset.Container)
	assert.Equal(t, int64(4200), rec.Asset.DurationMillis)
	assert.Len(t, rec.Amplitudes, s.Config().Waveform.Bars)

	_, err = s.Import(context.Background(), filepath.Join(t.TempDir(), "missing.m4a"))
	assert.Error(t, err)
}

func TestService_ImportWithoutDuration(t *testing.T) {
	s, _ := newTestService(t)
	s.probe = func(ctx context.Context, path string) (int64, error) { return 0, errors.New("ffprobe not found") }
	path := filepath.Join(t.TempDir(), "memo.wav")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))

	rec, err := s.Import(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, rec.Asset.DurationMillis)
}

func TestService_Subscribe(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []recording.Recording
	s.Subscribe(func(r recording.Recording) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r)
	})

	require.NoError(t, s.StartRecording(ctx))
	rec, err := s.StopRecording(ctx)
	require.NoError(t, err)
	require.NoError(t, s.TogglePlayback(ctx, rec.ID))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.False(t, seen[0].Playback.IsPlaying)
	assert.True(t, seen[1].Playback.IsPlaying)
}

const profilesYAML = `
active_config: default
configs:
  default:
    audio:
      backend: fake
    waveform:
      mode: single
  interview:
    waveform:
      mode: list
      bars: 40
`

func TestService_LoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicememo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesYAML), 0644))

	cfg, err := config.LoadWithProfile(path, "")
	require.NoError(t, err)
	s, err := New(cfg, path, nil)
	require.NoError(t, err)
	defer s.Close(context.Background())
	ctx := context.Background()

	require.NoError(t, s.StartRecording(ctx))
	assert.ErrorIs(t, s.LoadProfile(ctx, "interview"), ErrBusy)

	_, err = s.StopRecording(ctx)
	require.NoError(t, err)

	require.NoError(t, s.LoadProfile(ctx, "interview"))
	assert.Equal(t, "interview", s.Config().Profile)
	assert.Equal(t, config.ModeList, s.Config().Waveform.Mode)
	assert.Len(t, s.Recordings(), 1, "stored recordings survive a profile switch")

	require.NoError(t, s.StartRecording(ctx))
	rec, err := s.StopRecording(ctx)
	require.NoError(t, err)
	assert.Len(t, rec.Amplitudes, 40)

	assert.Error(t, s.LoadProfile(ctx, "missing"))
}

func TestGetStatus(t *testing.T) {
	s, fake := newTestService(t)
	fake.Granted = false
	_ = s.StartRecording(context.Background())

	st := GetStatus(s)
	assert.Equal(t, recorder.StatusIdle, st.Session.Status)
	assert.Equal(t, "builtin", st.Profile)
	assert.Equal(t, config.ModeList, st.Mode)
	assert.Zero(t, st.Recordings)
	assert.NotEmpty(t, st.LastError)
}
