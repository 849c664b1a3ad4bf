package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPermissionDenied is returned when the microphone cannot be used
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrCapture covers device and encoder failures while starting or finalizing a capture
	ErrCapture = errors.New("capture failed")
	// ErrPlayback covers assets that fail to load or play
	ErrPlayback = errors.New("playback failed")
)

// CaptureError tags err as an ErrCapture unless it already is one
func CaptureError(err error) error {
	if err == nil || errors.Is(err, ErrCapture) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCapture, err)
}

// PlaybackError tags err as an ErrPlayback unless it already is one
func PlaybackError(err error) error {
	if err == nil || errors.Is(err, ErrPlayback) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPlayback, err)
}

// CaptureConfig is the encoder setup requested for a capture
type CaptureConfig struct {
	SampleRate       int    `json:"sample_rate"`
	Channels         int    `json:"channels"`
	BitRate          int    `json:"bit_rate"`
	Container        string `json:"container"`
	PlatformEncoding string `json:"platform_encoding"`
}

// CaptureHandle identifies an in-progress capture
type CaptureHandle struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
}

// Asset is a finalized, decodable recording
type Asset struct {
	ID             string `json:"id"`
	Path           string `json:"path"`
	Container      string `json:"container"`
	DurationMillis int64  `json:"duration_ms"`
}

// PlaybackStatus is a position report from a playback handle
type PlaybackStatus struct {
	IsLoaded       bool
	PositionMillis int64
	DurationMillis int64
	DidJustFinish  bool
}

// PlaybackHandle controls one loaded asset. Updates is closed by Stop.
type PlaybackHandle interface {
	Updates() <-chan PlaybackStatus
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMillis int64) error
	Stop(ctx context.Context) error
}

// Capability is everything the recorder needs from the audio system
type Capability interface {
	RequestPermission(ctx context.Context) (bool, error)
	ConfigureRoute(ctx context.Context, allowRecording bool) error
	BeginCapture(ctx context.Context, cfg CaptureConfig) (*CaptureHandle, error)
	EndCapture(ctx context.Context, handle *CaptureHandle) (*Asset, error)
	AbortCapture(ctx context.Context, handle *CaptureHandle) error
	LoadAndPlay(ctx context.Context, asset *Asset) (PlaybackHandle, error)
}
