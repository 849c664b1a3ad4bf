// Package recorder drives the microphone capture lifecycle of the memo screen.
//
// A Controller is IDLE until StartRecording succeeds, CAPTURING until
// StopRecording finalizes the capture into a stored recording or
// DeleteRecording discards it, and then IDLE again. While capturing, a
// worker goroutine counts elapsed seconds and, when enabled, samples the
// live meter; it is always cancelled before leaving CAPTURING.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/config"
	"github.com/audiolibrelab/voicememo/internal/recording"
)

// Status represents the current state of the capture session
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusCapturing Status = "CAPTURING"
)

// ErrNotIdle is returned by StartRecording while a capture is running
var ErrNotIdle = errors.New("a recording is already in progress")

// Session is a snapshot of the capture session
type Session struct {
	Status         Status    `json:"status"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Elapsed        string    `json:"elapsed"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	HandleID       string    `json:"handle_id,omitempty"`
	Live           []float64 `json:"live,omitempty"`
}

// Source yields values in [0, 1); *rand.Rand satisfies it
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Options configures a Controller
type Options struct {
	Capture      audio.CaptureConfig
	Bars         int
	MinAmplitude float64
	MaxAmplitude float64
	LiveMeter    bool

	// TickInterval is the elapsed counter period, one second unless overridden
	TickInterval time.Duration
	// MeterInterval is the live meter sampling period
	MeterInterval time.Duration
	// Source drives amplitude synthesis, math/rand/v2 when nil
	Source Source
}

// OptionsFromConfig derives recorder options from the resolved configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Capture: audio.CaptureConfig{
			SampleRate:       cfg.Audio.SampleRate,
			Channels:         cfg.Audio.Channels,
			BitRate:          cfg.Audio.BitRate,
			Container:        cfg.Audio.Container,
			PlatformEncoding: cfg.Audio.Encoding,
		},
		Bars:         cfg.Waveform.Bars,
		MinAmplitude: cfg.Waveform.MinAmplitude,
		MaxAmplitude: cfg.Waveform.MaxAmplitude,
		LiveMeter:    cfg.LiveMeterEnabled(),
	}
}

type Controller struct {
	capability audio.Capability
	store      *recording.Store
	opts       Options

	mu        sync.Mutex
	status    Status
	starting  bool
	handle    *audio.CaptureHandle
	startedAt time.Time

	elapsed atomic.Int64
	liveMu  sync.Mutex
	live    []float64

	sourceMu sync.Mutex

	stopWorker chan struct{}
	workerDone chan struct{}
}

func New(capability audio.Capability, store *recording.Store, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.MeterInterval <= 0 {
		opts.MeterInterval = 100 * time.Millisecond
	}
	if opts.Source == nil {
		opts.Source = globalSource{}
	}
	if opts.Bars <= 0 {
		opts.Bars = 50
	}

	return &Controller{
		capability: capability,
		store:      store,
		opts:       opts,
		status:     StatusIdle,
	}
}

// StartRecording moves IDLE -> CAPTURING. The capability is consulted without
// holding the session lock, so snapshots stay IDLE until the capture has begun;
// a second start in the meantime gets ErrNotIdle.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusIdle || c.starting {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.starting = true
	c.mu.Unlock()

	handle, err := c.beginCapture(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false
	if err != nil {
		return err
	}

	c.handle = handle
	c.startedAt = time.Now()
	c.status = StatusCapturing
	c.startWorker()

	slog.Info("Recording started", "capture", handle.ID, "bit_rate", c.opts.Capture.BitRate)
	return nil
}

func (c *Controller) beginCapture(ctx context.Context) (*audio.CaptureHandle, error) {
	granted, err := c.capability.RequestPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	if !granted {
		return nil, audio.ErrPermissionDenied
	}

	if err := c.capability.ConfigureRoute(ctx, true); err != nil {
		return nil, audio.CaptureError(fmt.Errorf("configure route: %w", err))
	}

	handle, err := c.capability.BeginCapture(ctx, c.opts.Capture)
	if err != nil {
		c.restoreRoute(ctx)
		return nil, audio.CaptureError(err)
	}
	return handle, nil
}

// Busy reports whether a capture is running or being started
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status != StatusIdle || c.starting
}

// StopRecording finalizes the capture and stores it. It returns nil, nil when
// nothing is being captured. If finalizing fails the session keeps capturing.
func (c *Controller) StopRecording(ctx context.Context) (*recording.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusCapturing {
		return nil, nil
	}

	asset, err := c.capability.EndCapture(ctx, c.handle)
	if err != nil {
		return nil, audio.CaptureError(err)
	}

	c.stopWorkerLocked()
	amplitudes := c.finalAmplitudes()
	c.resetLocked()
	c.restoreRoute(ctx)

	rec := c.store.Append(recording.Recording{
		Asset:      asset,
		Amplitudes: amplitudes,
	})

	slog.Info("Recording stored", "id", rec.ID, "index", rec.Index, "duration_ms", asset.DurationMillis)
	return &rec, nil
}

// DeleteRecording discards the in-progress capture. It is a no-op when idle.
func (c *Controller) DeleteRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusCapturing {
		return nil
	}

	if err := c.capability.AbortCapture(ctx, c.handle); err != nil {
		slog.Warn("Failed to discard capture", "capture", c.handle.ID, "error", err)
	}

	c.stopWorkerLocked()
	c.resetLocked()
	c.restoreRoute(ctx)

	slog.Info("Recording discarded")
	return nil
}

// Snapshot returns a copy of the capture session
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	status, startedAt := c.status, c.startedAt
	var handleID string
	if c.handle != nil {
		handleID = c.handle.ID
	}
	c.mu.Unlock()

	elapsed := int(c.elapsed.Load())
	s := Session{
		Status:         status,
		ElapsedSeconds: elapsed,
		Elapsed:        FormatElapsed(elapsed),
		HandleID:       handleID,
	}
	if status == StatusCapturing {
		s.StartedAt = startedAt
		c.liveMu.Lock()
		s.Live = append([]float64(nil), c.live...)
		c.liveMu.Unlock()
	}
	return s
}

// Synthesize returns a placeholder amplitude sequence of the configured length
func (c *Controller) Synthesize() []float64 {
	amplitudes := make([]float64, c.opts.Bars)
	for i := range amplitudes {
		amplitudes[i] = c.amplitude()
	}
	return amplitudes
}

func (c *Controller) amplitude() float64 {
	c.sourceMu.Lock()
	v := c.opts.Source.Float64()
	c.sourceMu.Unlock()
	return c.opts.MinAmplitude + v*(c.opts.MaxAmplitude-c.opts.MinAmplitude)
}

// finalAmplitudes uses the live window when metering, topped up to the bar count
func (c *Controller) finalAmplitudes() []float64 {
	if !c.opts.LiveMeter {
		return c.Synthesize()
	}

	c.liveMu.Lock()
	amplitudes := append([]float64(nil), c.live...)
	c.liveMu.Unlock()

	for len(amplitudes) < c.opts.Bars {
		amplitudes = append(amplitudes, c.amplitude())
	}
	return amplitudes
}

func (c *Controller) resetLocked() {
	c.status = StatusIdle
	c.handle = nil
	c.startedAt = time.Time{}
	c.elapsed.Store(0)
	c.liveMu.Lock()
	c.live = nil
	c.liveMu.Unlock()
}

func (c *Controller) restoreRoute(ctx context.Context) {
	if err := c.capability.ConfigureRoute(ctx, false); err != nil {
		slog.Warn("Failed to restore audio route", "error", err)
	}
}

func (c *Controller) startWorker() {
	c.elapsed.Store(0)
	c.stopWorker = make(chan struct{})
	c.workerDone = make(chan struct{})
	go c.worker(c.stopWorker, c.workerDone)
}

// stopWorkerLocked cancels the tickers and waits for the worker to exit
func (c *Controller) stopWorkerLocked() {
	if c.stopWorker == nil {
		return
	}
	close(c.stopWorker)
	<-c.workerDone
	c.stopWorker = nil
	c.workerDone = nil
}

func (c *Controller) worker(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	var meter <-chan time.Time
	if c.opts.LiveMeter {
		meterTicker := time.NewTicker(c.opts.MeterInterval)
		defer meterTicker.Stop()
		meter = meterTicker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.elapsed.Add(1)
		case <-meter:
			v := c.amplitude()
			c.liveMu.Lock()
			c.live = append(c.live, v)
			if len(c.live) > c.opts.Bars {
				c.live = c.live[len(c.live)-c.opts.Bars:]
			}
			c.liveMu.Unlock()
		}
	}
}

// FormatElapsed renders seconds as mm:ss
func FormatElapsed(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
