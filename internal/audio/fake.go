package audio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errFakeStopped = errors.New("fake playback stopped")

// Fake is an in-memory Capability. Its fields script the outcome of each
// operation and every call is recorded for verification.
type Fake struct {
	mu sync.Mutex

	// Granted is returned by RequestPermission
	Granted bool
	// PermissionErr, BeginErr, EndErr, AbortErr and LoadErr fail the matching call when set
	PermissionErr error
	BeginErr      error
	EndErr        error
	AbortErr      error
	LoadErr       error
	// DurationMillis is the length given to finalized assets
	DurationMillis int64
	// FinishOnLoad makes handles report completion before LoadAndPlay returns
	FinishOnLoad bool

	route     bool
	calls     []string
	captures  map[string]*CaptureHandle
	playbacks []*FakePlayback
	configs   []CaptureConfig
}

// NewFake creates a fake that grants permission and produces 3 second assets
func NewFake() *Fake {
	return &Fake{
		Granted:        true,
		DurationMillis: 3000,
		captures:       make(map[string]*CaptureHandle),
	}
}

func (f *Fake) record(call string) {
	f.calls = append(f.calls, call)
}

// Calls returns the operations invoked so far, in order
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// RouteAllowsRecording reports the last value passed to ConfigureRoute
func (f *Fake) RouteAllowsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.route
}

// ActiveCaptures returns the number of captures begun and not yet ended or aborted
func (f *Fake) ActiveCaptures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captures)
}

// CaptureConfigs returns the configurations passed to BeginCapture
func (f *Fake) CaptureConfigs() []CaptureConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CaptureConfig(nil), f.configs...)
}

// Playbacks returns the handles created by LoadAndPlay
func (f *Fake) Playbacks() []*FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakePlayback(nil), f.playbacks...)
}

func (f *Fake) RequestPermission(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("permission")
	if f.PermissionErr != nil {
		return false, f.PermissionErr
	}
	return f.Granted, nil
}

func (f *Fake) ConfigureRoute(ctx context.Context, allowRecording bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("route:%t", allowRecording))
	f.route = allowRecording
	return nil
}

func (f *Fake) BeginCapture(ctx context.Context, cfg CaptureConfig) (*CaptureHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("begin")
	if f.BeginErr != nil {
		return nil, CaptureError(f.BeginErr)
	}

	id := uuid.NewString()
	handle := &CaptureHandle{
		ID:        id,
		Path:      filepath.Join("memory", id+cfg.Container),
		StartedAt: time.Now(),
	}
	f.captures[id] = handle
	f.configs = append(f.configs, cfg)
	return handle, nil
}

func (f *Fake) EndCapture(ctx context.Context, handle *CaptureHandle) (*Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("end")
	if _, ok := f.captures[handle.ID]; !ok {
		return nil, CaptureError(fmt.Errorf("capture %s already finalized", handle.ID))
	}
	// Like the real backend, a failed finalize leaves the capture registered
	if f.EndErr != nil {
		return nil, CaptureError(f.EndErr)
	}
	delete(f.captures, handle.ID)

	return &Asset{
		ID:             handle.ID,
		Path:           handle.Path,
		Container:      filepath.Ext(handle.Path),
		DurationMillis: f.DurationMillis,
	}, nil
}

func (f *Fake) AbortCapture(ctx context.Context, handle *CaptureHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("abort")
	delete(f.captures, handle.ID)
	return f.AbortErr
}

func (f *Fake) LoadAndPlay(ctx context.Context, asset *Asset) (PlaybackHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("load")
	if f.LoadErr != nil {
		return nil, PlaybackError(f.LoadErr)
	}

	p := &FakePlayback{
		Asset:   asset,
		updates: make(chan PlaybackStatus, 64),
		playing: true,
	}
	f.playbacks = append(f.playbacks, p)
	if f.FinishOnLoad {
		p.Finish()
	}
	return p, nil
}

// FakePlayback is a PlaybackHandle driven by the test through Emit and Finish
type FakePlayback struct {
	Asset *Asset

	mu      sync.Mutex
	updates chan PlaybackStatus
	calls   []string
	playing bool
	stopped bool
}

func (p *FakePlayback) Updates() <-chan PlaybackStatus { return p.updates }

// Calls returns the handle operations invoked so far, in order
func (p *FakePlayback) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Playing reports whether the handle is between a play/resume and a pause
func (p *FakePlayback) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Emit delivers a position report at positionMillis
func (p *FakePlayback) Emit(positionMillis int64) {
	p.send(PlaybackStatus{IsLoaded: true, PositionMillis: positionMillis, DurationMillis: p.Asset.DurationMillis})
}

// Finish delivers a completion report
func (p *FakePlayback) Finish() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	p.send(PlaybackStatus{IsLoaded: true, PositionMillis: p.Asset.DurationMillis, DurationMillis: p.Asset.DurationMillis, DidJustFinish: true})
}

func (p *FakePlayback) send(st PlaybackStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.updates <- st
}

func (p *FakePlayback) do(call string, playing *bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return errFakeStopped
	}
	p.calls = append(p.calls, call)
	if playing != nil {
		p.playing = *playing
	}
	return nil
}

func (p *FakePlayback) Pause(ctx context.Context) error {
	playing := false
	return p.do("pause", &playing)
}

func (p *FakePlayback) Resume(ctx context.Context) error {
	playing := true
	return p.do("resume", &playing)
}

func (p *FakePlayback) Seek(ctx context.Context, positionMillis int64) error {
	return p.do(fmt.Sprintf("seek:%d", positionMillis), nil)
}

func (p *FakePlayback) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.calls = append(p.calls, "stop")
	p.stopped = true
	p.playing = false
	close(p.updates)
	return nil
}
