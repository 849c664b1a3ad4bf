package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Display modes for the recordings screen
const (
	ModeSingle = "single"
	ModeList   = "list"
)

type GlobalsConfig struct {
	Output OutputConfig `mapstructure:"output" yaml:"output"`
}

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig     `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Waveform WaveformConfig `mapstructure:"waveform" yaml:"waveform"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`

	// Name of the profile this config was resolved from
	Profile string `mapstructure:"-" yaml:"-"`
}

type AudioConfig struct {
	Backend    string   `mapstructure:"backend" yaml:"backend"` // "pipewire", "fake", "auto"
	SampleRate int      `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int      `mapstructure:"channels" yaml:"channels"`
	BitRate    int      `mapstructure:"bit_rate" yaml:"bit_rate"`
	Container  string   `mapstructure:"container" yaml:"container"`
	Encoding   string   `mapstructure:"encoding" yaml:"encoding"`
	Sources    []string `mapstructure:"sources" yaml:"sources"` // Ordered list: one port per captured channel
}

type WaveformConfig struct {
	Mode           string  `mapstructure:"mode" yaml:"mode"` // "single", "list"
	Bars           int     `mapstructure:"bars" yaml:"bars"`
	MinAmplitude   float64 `mapstructure:"min_amplitude" yaml:"min_amplitude"`
	MaxAmplitude   float64 `mapstructure:"max_amplitude" yaml:"max_amplitude"`
	ThresholdScale float64 `mapstructure:"threshold_scale" yaml:"threshold_scale"`
	LiveMeter      *bool   `mapstructure:"live_meter,omitempty" yaml:"live_meter,omitempty"`
}

type PlaybackConfig struct {
	Exclusive          bool   `mapstructure:"exclusive" yaml:"exclusive"`
	Player             string `mapstructure:"player" yaml:"player"` // "ffplay", "mpv", "" = first found
	PositionIntervalMs int    `mapstructure:"position_interval_ms" yaml:"position_interval_ms"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		Backend:    "auto",
		SampleRate: 44100,
		Channels:   2,
		Container:  ".m4a",
		Encoding:   "aac",
	},
	Waveform: WaveformConfig{
		Mode:           ModeList,
		Bars:           50,
		ThresholdScale: 1,
	},
	Playback: PlaybackConfig{
		PositionIntervalMs: 100,
	},
	Output: OutputConfig{
		Directory: filepath.Join(os.Getenv("HOME"), "Audio", "VoiceMemos"),
	},
}

// DefaultPath returns the config file used when --config is not given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/voicememo.yaml")
}

// Default returns the built-in configuration with mode defaults applied
func Default() *Config {
	cfg := mergeConfigs(&defaultConfig, nil)
	cfg.Profile = "builtin"
	applyModeDefaults(cfg)
	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	return cfg
}

// LiveMeterEnabled reports whether amplitudes are sampled while capturing.
// Defaults to on for the single display mode only.
func (c *Config) LiveMeterEnabled() bool {
	if c.Waveform.LiveMeter != nil {
		return *c.Waveform.LiveMeter
	}
	return c.Waveform.Mode == ModeSingle
}

// Load resolves configFile with its active profile. A missing file at the
// default location falls back to the built-in configuration.
func Load(configFile, profile string) (*Config, error) {
	if configFile == DefaultPath() {
		if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) && profile == "" {
			return Default(), nil
		}
	}
	return LoadWithProfile(configFile, profile)
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, err
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selected, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Built-in defaults, then the "default" profile, then the selected one
	resolved := mergeConfigs(&defaultConfig, nil)
	if configName != "default" {
		if base, ok := rootConfig.Configs["default"]; ok {
			resolved = mergeConfigs(resolved, base)
		}
	}
	resolved = mergeConfigs(resolved, selected)
	resolved.Profile = configName

	// Global output directory takes priority over profile-specific directory
	if rootConfig.Globals != nil && rootConfig.Globals.Output.Directory != "" {
		resolved.Output.Directory = rootConfig.Globals.Output.Directory
	}

	resolved.Output.Directory = expandPath(resolved.Output.Directory)
	applyModeDefaults(resolved)

	if err := Validate(resolved); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return resolved, nil
}

// ReadRootConfig reads the raw profile file without resolving a profile
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configFile, err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("config file %s has no 'configs' section", configFile)
	}

	return &rootConfig, nil
}

// ProfileNames lists the profiles declared in configFile
func ProfileNames(configFile string) ([]string, error) {
	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rootConfig.Configs))
	for name := range rootConfig.Configs {
		names = append(names, name)
	}
	return names, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if !v.IsSet("configs." + newActiveConfig) {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// mergeConfigs overlays every non-zero field of profile onto a copy of base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	if base != nil {
		*result = *base
		result.Audio.Sources = append([]string(nil), base.Audio.Sources...)
	}

	if profile == nil {
		return result
	}

	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
	}
	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
	}
	if profile.Audio.Channels != 0 {
		result.Audio.Channels = profile.Audio.Channels
	}
	if profile.Audio.BitRate != 0 {
		result.Audio.BitRate = profile.Audio.BitRate
	}
	if profile.Audio.Container != "" {
		result.Audio.Container = profile.Audio.Container
	}
	if profile.Audio.Encoding != "" {
		result.Audio.Encoding = profile.Audio.Encoding
	}
	if len(profile.Audio.Sources) > 0 {
		result.Audio.Sources = append([]string(nil), profile.Audio.Sources...)
	}

	if profile.Waveform.Mode != "" {
		result.Waveform.Mode = profile.Waveform.Mode
	}
	if profile.Waveform.Bars != 0 {
		result.Waveform.Bars = profile.Waveform.Bars
	}
	if profile.Waveform.MinAmplitude != 0 {
		result.Waveform.MinAmplitude = profile.Waveform.MinAmplitude
	}
	if profile.Waveform.MaxAmplitude != 0 {
		result.Waveform.MaxAmplitude = profile.Waveform.MaxAmplitude
	}
	if profile.Waveform.ThresholdScale != 0 {
		result.Waveform.ThresholdScale = profile.Waveform.ThresholdScale
	}
	if profile.Waveform.LiveMeter != nil {
		v := *profile.Waveform.LiveMeter
		result.Waveform.LiveMeter = &v
	}

	// A profile that sets exclusive playback always wins; false cannot be told apart from unset
	if profile.Playback.Exclusive {
		result.Playback.Exclusive = true
	}
	if profile.Playback.Player != "" {
		result.Playback.Player = profile.Playback.Player
	}
	if profile.Playback.PositionIntervalMs != 0 {
		result.Playback.PositionIntervalMs = profile.Playback.PositionIntervalMs
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
	}

	return result
}

// applyModeDefaults fills values whose default depends on the display mode.
// Single mode records at 128 kbps with bars in [20,100), list mode at 256 kbps with bars in [20,60).
func applyModeDefaults(c *Config) {
	single := c.Waveform.Mode == ModeSingle

	if c.Audio.BitRate == 0 {
		if single {
			c.Audio.BitRate = 128000
		} else {
			c.Audio.BitRate = 256000
		}
	}
	if c.Waveform.MinAmplitude == 0 {
		c.Waveform.MinAmplitude = 20
	}
	if c.Waveform.MaxAmplitude == 0 {
		if single {
			c.Waveform.MaxAmplitude = 100
		} else {
			c.Waveform.MaxAmplitude = 60
		}
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// isValidAudioSource checks if a source name is valid for JACK/PipeWire
func isValidAudioSource(source string) bool {
	source = strings.TrimSpace(source)

	if source == "" || source == "disabled" {
		return true
	}

	if !strings.Contains(source, ":") {
		return len(source) > 0
	}

	// Device names may contain colons themselves, so the port is after the last one
	lastColonIndex := strings.LastIndex(source, ":")
	deviceName := strings.TrimSpace(source[:lastColonIndex])
	port := strings.TrimSpace(source[lastColonIndex+1:])

	return len(deviceName) > 0 && len(port) > 0
}

// Validate checks a resolved configuration
func Validate(c *Config) error {
	switch strings.ToLower(c.Audio.Backend) {
	case "", "auto", "pipewire", "fake":
	default:
		return fmt.Errorf("audio.backend must be 'auto', 'pipewire' or 'fake', got: %s", c.Audio.Backend)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got: %d", c.Audio.Channels)
	}
	if c.Audio.BitRate <= 0 {
		return fmt.Errorf("audio.bit_rate must be positive, got: %d", c.Audio.BitRate)
	}
	if !strings.HasPrefix(c.Audio.Container, ".") {
		return fmt.Errorf("audio.container must be a file extension starting with '.', got: %s", c.Audio.Container)
	}
	if len(c.Audio.Sources) > c.Audio.Channels {
		return fmt.Errorf("audio.sources has %d entries but only %d channel(s) are captured", len(c.Audio.Sources), c.Audio.Channels)
	}
	for i, source := range c.Audio.Sources {
		if !isValidAudioSource(source) {
			return fmt.Errorf("audio.sources[%d] must be a valid audio source (JACK port), got: %s", i, source)
		}
	}

	if c.Waveform.Mode != ModeSingle && c.Waveform.Mode != ModeList {
		return fmt.Errorf("waveform.mode must be 'single' or 'list', got: %s", c.Waveform.Mode)
	}
	if c.Waveform.Bars <= 0 {
		return fmt.Errorf("waveform.bars must be positive, got: %d", c.Waveform.Bars)
	}
	if c.Waveform.MinAmplitude < 0 || c.Waveform.MaxAmplitude <= c.Waveform.MinAmplitude {
		return fmt.Errorf("waveform amplitude range [%.1f, %.1f) is invalid", c.Waveform.MinAmplitude, c.Waveform.MaxAmplitude)
	}
	if c.Waveform.ThresholdScale <= 0 {
		return fmt.Errorf("waveform.threshold_scale must be positive, got: %.2f", c.Waveform.ThresholdScale)
	}

	switch c.Playback.Player {
	case "", "ffplay", "mpv":
	default:
		return fmt.Errorf("playback.player must be 'ffplay' or 'mpv', got: %s", c.Playback.Player)
	}
	if c.Playback.PositionIntervalMs <= 0 {
		return fmt.Errorf("playback.position_interval_ms must be positive, got: %d", c.Playback.PositionIntervalMs)
	}

	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}

	return nil
}
