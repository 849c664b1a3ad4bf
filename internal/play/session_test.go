package play

import (
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepSession plays nothing: each "player" is a sleep for the remaining duration
func sleepSession(t *testing.T, durationMillis int64) (*Session, *[]int64) {
	t.Helper()
	var offsets []int64
	s := newSession("memo.m4a", durationMillis, 5*time.Millisecond, func(offset int64) *exec.Cmd {
		offsets = append(offsets, offset)
		remaining := float64(durationMillis-offset) / 1000
		return exec.Command("sleep", strconv.FormatFloat(remaining, 'f', 3, 64))
	})
	require.NoError(t, s.start())
	t.Cleanup(func() { s.Stop() })
	return s, &offsets
}

func TestSession_ReportsPositionAndFinish(t *testing.T) {
	s, _ := sleepSession(t, 200)

	var sawPosition, sawFinish bool
	timeout := time.After(5 * time.Second)
	for !sawFinish {
		select {
		case st, ok := <-s.Updates():
			require.True(t, ok, "updates closed before finish")
			assert.True(t, st.IsLoaded)
			assert.Equal(t, int64(200), st.DurationMillis)
			if st.DidJustFinish {
				sawFinish = true
				assert.Equal(t, int64(200), st.PositionMillis)
			} else {
				sawPosition = true
				assert.LessOrEqual(t, st.PositionMillis, int64(200))
			}
		case <-timeout:
			t.Fatal("playback never finished")
		}
	}

	assert.True(t, sawPosition)
	assert.Equal(t, int64(200), s.Position())
}

func TestSession_PauseFreezesPosition(t *testing.T) {
	s, _ := sleepSession(t, 5000)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Pause())
	paused := s.Position()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, paused, s.Position())

	require.NoError(t, s.Resume())
	require.Eventually(t, func() bool { return s.Position() > paused }, time.Second, 5*time.Millisecond)
}

func TestSession_SeekRestartsAtOffset(t *testing.T) {
	s, offsets := sleepSession(t, 5000)

	require.NoError(t, s.Pause())
	require.NoError(t, s.Seek(0))
	assert.Equal(t, int64(0), s.Position())

	require.NoError(t, s.Resume())
	require.Len(t, *offsets, 2, "resume after seek starts a new player")
	assert.Equal(t, int64(0), (*offsets)[1])

	require.NoError(t, s.Seek(9999))
	assert.LessOrEqual(t, s.Position(), int64(5000))
}

func TestSession_StopClosesUpdates(t *testing.T) {
	s, _ := sleepSession(t, 5000)

	require.NoError(t, s.Stop())

	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-s.Updates():
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Pause(), errSessionClosed)
	assert.ErrorIs(t, s.Resume(), errSessionClosed)
	assert.NoError(t, s.Stop(), "stopping twice is harmless")
}

func TestPlayerCommand(t *testing.T) {
	cmd := playerCommand("ffplay", "/tmp/a.m4a", 1500)
	assert.Equal(t, []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-ss", "1.500", "/tmp/a.m4a"}, cmd.Args)

	cmd = playerCommand("mpv", "/tmp/a.m4a", 0)
	assert.Equal(t, []string{"mpv", "--no-video", "--really-quiet", "--start=0.000", "/tmp/a.m4a"}, cmd.Args)
}
