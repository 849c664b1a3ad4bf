package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/config"
	"github.com/audiolibrelab/voicememo/internal/play"
	"github.com/audiolibrelab/voicememo/internal/playback"
	"github.com/audiolibrelab/voicememo/internal/recorder"
	"github.com/audiolibrelab/voicememo/internal/recording"
	"github.com/audiolibrelab/voicememo/internal/waveform"
)

// Service represents the voice memo screen: one capture session, the list
// of stored recordings and their playback
type Service interface {
	// Recording operations
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (*recording.Recording, error)
	DeleteRecording(ctx context.Context) error
	Session() recorder.Session

	// Playback operations
	TogglePlayback(ctx context.Context, id string) error

	// Library operations
	Recordings() []recording.Recording
	Recording(id string) (recording.Recording, bool)
	Import(ctx context.Context, path string) (*recording.Recording, error)
	Waveform(id string) (waveform.DrawSpec, bool)
	Subscribe(fn func(recording.Recording))

	// Configuration operations
	LoadProfile(ctx context.Context, profile string) error
	Config() *config.Config

	GetLastError() string
	Close(ctx context.Context) error
}

// ErrBusy is returned when the profile is switched while capturing
var ErrBusy = errors.New("cannot switch profile while recording")

// Status is the combined view served by the status endpoint
type Status struct {
	Session    recorder.Session `json:"session"`
	Recordings int              `json:"recordings"`
	Profile    string           `json:"profile"`
	Mode       string           `json:"mode"`
	LastError  string           `json:"last_error,omitempty"`
}

// GetStatus collects a Status from svc
func GetStatus(svc Service) Status {
	cfg := svc.Config()
	return Status{
		Session:    svc.Session(),
		Recordings: len(svc.Recordings()),
		Profile:    cfg.Profile,
		Mode:       cfg.Waveform.Mode,
		LastError:  svc.GetLastError(),
	}
}

// MemoService is the main service implementation
type MemoService struct {
	configFile string
	logWriter  io.Writer
	store      *recording.Store

	// probe reads the duration of imported files
	probe func(ctx context.Context, path string) (int64, error)

	mu         sync.RWMutex
	cfg        *config.Config
	capability audio.Capability
	recorder   *recorder.Controller
	playback   *playback.Controller
	waveform   waveform.Options

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

var _ Service = (*MemoService)(nil)

// New creates a service using the backend selected by cfg
func New(cfg *config.Config, configFile string, logWriter io.Writer) (*MemoService, error) {
	if logWriter == nil {
		logWriter = io.Discard
	}

	capability, err := audio.NewCapability(cfg, logWriter)
	if err != nil {
		return nil, err
	}

	s := NewWithCapability(cfg, capability)
	s.configFile = configFile
	s.logWriter = logWriter
	return s, nil
}

// NewWithCapability creates a service around an existing capability
func NewWithCapability(cfg *config.Config, capability audio.Capability) *MemoService {
	s := &MemoService{
		logWriter: io.Discard,
		store:     recording.NewStore(),
		probe:     play.ProbeDuration,
	}
	s.install(cfg, capability)
	return s
}

func (s *MemoService) install(cfg *config.Config, capability audio.Capability) {
	s.cfg = cfg
	s.capability = capability
	s.recorder = recorder.New(capability, s.store, recorder.OptionsFromConfig(cfg))
	s.playback = playback.New(capability, s.store, playback.OptionsFromConfig(cfg))
	s.waveform = waveform.OptionsFromConfig(cfg)
}

func (s *MemoService) components() (*recorder.Controller, *playback.Controller) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recorder, s.playback
}

// StartRecording begins a capture (IDLE -> CAPTURING)
func (s *MemoService) StartRecording(ctx context.Context) error {
	slog.Debug("Service.StartRecording called")
	rec, _ := s.components()

	if err := rec.StartRecording(ctx); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}
	s.clearLastError()
	return nil
}

// StopRecording finalizes the capture into a stored recording
func (s *MemoService) StopRecording(ctx context.Context) (*recording.Recording, error) {
	rec, _ := s.components()

	stored, err := rec.StopRecording(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
		return nil, err
	}
	if stored != nil {
		s.clearLastError()
	}
	return stored, nil
}

// DeleteRecording discards the capture in progress
func (s *MemoService) DeleteRecording(ctx context.Context) error {
	rec, _ := s.components()

	if err := rec.DeleteRecording(ctx); err != nil {
		s.setLastError(fmt.Sprintf("Failed to discard recording: %v", err))
		return err
	}
	return nil
}

func (s *MemoService) Session() recorder.Session {
	rec, _ := s.components()
	return rec.Snapshot()
}

// TogglePlayback plays or pauses a stored recording
func (s *MemoService) TogglePlayback(ctx context.Context, id string) error {
	_, pb := s.components()

	if err := pb.TogglePlayback(ctx, id); err != nil {
		s.setLastError(fmt.Sprintf("Failed to toggle playback: %v", err))
		return err
	}
	return nil
}

func (s *MemoService) Recordings() []recording.Recording {
	return s.store.List()
}

func (s *MemoService) Recording(id string) (recording.Recording, bool) {
	return s.store.Get(id)
}

// Import adds an existing audio file as a recording with a placeholder waveform
func (s *MemoService) Import(ctx context.Context, path string) (*recording.Recording, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	duration, err := s.probe(ctx, abs)
	if err != nil {
		// The player probes again on load
		slog.Debug("Could not read duration of imported file", "file", abs, "error", err)
		duration = 0
	}

	rec, _ := s.components()
	stored := s.store.Append(recording.Recording{
		Asset: &audio.Asset{
			ID:             strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
			Path:           abs,
			Container:      strings.ToLower(filepath.Ext(abs)),
			DurationMillis: duration,
		},
		Amplitudes: rec.Synthesize(),
	})

	slog.Info("Imported recording", "id", stored.ID, "file", abs, "duration_ms", duration)
	return &stored, nil
}

// Waveform renders the current waveform of a recording
func (s *MemoService) Waveform(id string) (waveform.DrawSpec, bool) {
	rec, ok := s.store.Get(id)
	if !ok {
		return waveform.DrawSpec{}, false
	}

	s.mu.RLock()
	opts := s.waveform
	s.mu.RUnlock()

	return waveform.Render(rec.Amplitudes, rec.Playback.PlayheadFraction, opts), true
}

// Subscribe registers fn for every change to a stored recording
func (s *MemoService) Subscribe(fn func(recording.Recording)) {
	s.store.OnChange(fn)
}

// LoadProfile switches to another configuration profile. Stored recordings
// are kept; playback is stopped.
func (s *MemoService) LoadProfile(ctx context.Context, profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recorder.Busy() {
		return ErrBusy
	}

	capability, err := audio.NewCapability(newCfg, s.logWriter)
	if err != nil {
		return err
	}

	if err := s.playback.Close(ctx); err != nil {
		slog.Warn("Failed to stop playback", "error", err)
	}
	closeCapability(s.capability)

	s.install(newCfg, capability)
	slog.Info("Profile loaded", "profile", newCfg.Profile, "mode", newCfg.Waveform.Mode)
	return nil
}

func (s *MemoService) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Close discards any capture in progress and stops playback
func (s *MemoService) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recorder.DeleteRecording(ctx); err != nil {
		slog.Warn("Failed to discard recording on close", "error", err)
	}
	err := s.playback.Close(ctx)
	closeCapability(s.capability)
	return err
}

func closeCapability(capability audio.Capability) {
	if c, ok := capability.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close audio backend", "error", err)
		}
	}
}

// GetLastError returns the last error message (thread-safe)
func (s *MemoService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *MemoService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

func (s *MemoService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
