package audio

import (
	"fmt"
	"io"
	"strings"

	"github.com/audiolibrelab/voicememo/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeFake     BackendType = "fake"
	BackendTypeAuto     BackendType = "auto"
)

// NewCapability creates the audio capability selected by the configuration
func NewCapability(cfg *config.Config, logWriter io.Writer) (Capability, error) {
	switch determineBackend(cfg) {
	case BackendTypePipeWire:
		return NewPipeWireCapability(cfg, logWriter), nil
	case BackendTypeFake:
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", cfg.Audio.Backend)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "fake":
		return BackendTypeFake
	case "", "auto", "pipewire":
		// PipeWire is the only real backend
		return BackendTypePipeWire
	default:
		return BackendType(cfg.Audio.Backend)
	}
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypePipeWire, BackendTypeFake}
}
