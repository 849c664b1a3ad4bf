package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicememo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const profilesYAML = `
active_config: default
configs:
  default:
    audio:
      backend: fake
      sample_rate: 48000
      sources: ["system:capture_1", "system:capture_2"]
    waveform:
      mode: single
    output:
      directory: /tmp/memos
  interview:
    audio:
      bit_rate: 192000
    waveform:
      mode: list
      bars: 40
    playback:
      exclusive: true
`

func TestLoadWithProfile_DefaultProfile(t *testing.T) {
	path := writeConfig(t, profilesYAML)

	cfg, err := LoadWithProfile(path, "")
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 2, cfg.Audio.Channels, "channels should come from built-in defaults")
	assert.Equal(t, ".m4a", cfg.Audio.Container)
	assert.Equal(t, 128000, cfg.Audio.BitRate, "single mode records at 128 kbps")
	assert.Equal(t, 20.0, cfg.Waveform.MinAmplitude)
	assert.Equal(t, 100.0, cfg.Waveform.MaxAmplitude)
	assert.Equal(t, 50, cfg.Waveform.Bars)
	assert.True(t, cfg.LiveMeterEnabled())
	assert.False(t, cfg.Playback.Exclusive)
}

func TestLoadWithProfile_InheritsFromDefault(t *testing.T) {
	path := writeConfig(t, profilesYAML)

	cfg, err := LoadWithProfile(path, "interview")
	require.NoError(t, err)

	assert.Equal(t, "interview", cfg.Profile)
	assert.Equal(t, 48000, cfg.Audio.SampleRate, "sample rate inherited from default profile")
	assert.Equal(t, []string{"system:capture_1", "system:capture_2"}, cfg.Audio.Sources)
	assert.Equal(t, 192000, cfg.Audio.BitRate, "explicit bit rate beats the mode default")
	assert.Equal(t, ModeList, cfg.Waveform.Mode)
	assert.Equal(t, 40, cfg.Waveform.Bars)
	assert.Equal(t, 60.0, cfg.Waveform.MaxAmplitude, "list mode bars top out at 60")
	assert.False(t, cfg.LiveMeterEnabled())
	assert.True(t, cfg.Playback.Exclusive)
	assert.Equal(t, "/tmp/memos", cfg.Output.Directory)
}

func TestLoadWithProfile_GlobalOutputWins(t *testing.T) {
	path := writeConfig(t, `
globals:
  output:
    directory: /srv/memos
configs:
  default:
    output:
      directory: /tmp/other
`)

	cfg, err := LoadWithProfile(path, "")
	require.NoError(t, err)
	assert.Equal(t, "/srv/memos", cfg.Output.Directory)
	assert.Equal(t, ModeList, cfg.Waveform.Mode)
	assert.Equal(t, 256000, cfg.Audio.BitRate)
}

func TestLoadWithProfile_MissingProfile(t *testing.T) {
	path := writeConfig(t, profilesYAML)

	_, err := LoadWithProfile(path, "studio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'studio' not found")
}

func TestLoadWithProfile_NoConfigs(t *testing.T) {
	path := writeConfig(t, "active_config: default\n")

	_, err := LoadWithProfile(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no 'configs' section")
}

func TestLoadWithProfile_EmptyPath(t *testing.T) {
	_, err := LoadWithProfile("", "")
	require.Error(t, err)
}

func TestLoad_MissingDefaultFileFallsBack(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(DefaultPath(), "")
	require.NoError(t, err)
	assert.Equal(t, "builtin", cfg.Profile)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 256000, cfg.Audio.BitRate)
	require.NoError(t, Validate(cfg))
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
}

func TestLiveMeterOverride(t *testing.T) {
	path := writeConfig(t, `
configs:
  default:
    waveform:
      mode: list
      live_meter: true
`)

	cfg, err := LoadWithProfile(path, "")
	require.NoError(t, err)
	assert.True(t, cfg.LiveMeterEnabled())
}

func TestUpdateActiveConfig(t *testing.T) {
	path := writeConfig(t, profilesYAML)

	require.NoError(t, UpdateActiveConfig(path, "interview"))

	cfg, err := LoadWithProfile(path, "")
	require.NoError(t, err)
	assert.Equal(t, "interview", cfg.Profile)

	err = UpdateActiveConfig(path, "missing")
	require.Error(t, err)
}

func TestProfileNames(t *testing.T) {
	path := writeConfig(t, profilesYAML)

	names, err := ProfileNames(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"default", "interview"}, names)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "memos"), expandPath("~/memos"))
	assert.Equal(t, "/abs/memos", expandPath("/abs/memos"))
}
