package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/voicememo/internal/config"
	"github.com/audiolibrelab/voicememo/internal/play"
	"github.com/google/uuid"
)

// minAssetSize is the smallest file accepted as a finalized recording
const minAssetSize = 1024

// PipeWireCapability records through pw-jack ffmpeg and plays back with ffplay/mpv
type PipeWireCapability struct {
	cfg       *config.Config
	logWriter io.Writer
	pipewire  *PipeWire
	player    *play.Player
	lookPath  func(file string) (string, error)

	mu           sync.Mutex
	routeAllowed bool
	captures     map[string]*captureProcess
}

type captureProcess struct {
	handle    *CaptureHandle
	client    string
	cmd       *exec.Cmd
	container string
	// exited is set once the encoder has been stopped and reaped
	exited bool

	stderr lockedBuffer

	linkCancel context.CancelFunc
	linkDone   chan struct{}
	linksMu    sync.Mutex
	links      [][2]string
}

type lockedBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lockedBuffer) WriteLine(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.b.WriteString(line + "\n")
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

// NewPipeWireCapability creates a new PipeWire-based audio capability
func NewPipeWireCapability(cfg *config.Config, logWriter io.Writer) *PipeWireCapability {
	if logWriter == nil {
		logWriter = io.Discard
	}

	return &PipeWireCapability{
		cfg:       cfg,
		logWriter: logWriter,
		pipewire:  NewPipeWire(),
		player:    play.New(cfg),
		lookPath:  exec.LookPath,
		captures:  make(map[string]*captureProcess),
	}
}

// RequestPermission reports whether the capture toolchain and configured sources are usable.
// There is no interactive prompt on Linux, so a missing tool or port counts as a denial.
func (p *PipeWireCapability) RequestPermission(ctx context.Context) (bool, error) {
	for _, tool := range []string{"pw-jack", "ffmpeg", "pw-link"} {
		if _, err := p.lookPath(tool); err != nil {
			slog.Warn("Capture tool not available", "tool", tool, "error", err)
			return false, nil
		}
	}

	for _, source := range p.cfg.Audio.Sources {
		if err := p.pipewire.ValidatePort(ctx, source); err != nil {
			slog.Warn("Microphone source not usable", "source", source, "error", err)
			return false, nil
		}
	}

	return true, nil
}

// ConfigureRoute allows or forbids linking microphone sources into captures
func (p *PipeWireCapability) ConfigureRoute(ctx context.Context, allowRecording bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.routeAllowed = allowRecording
	slog.Debug("Audio route configured", "allow_recording", allowRecording)

	if allowRecording {
		return nil
	}

	for _, proc := range p.captures {
		p.unlinkSources(ctx, proc)
	}
	return nil
}

func (p *PipeWireCapability) BeginCapture(ctx context.Context, cc CaptureConfig) (*CaptureHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.cfg.Output.Directory, 0755); err != nil {
		return nil, CaptureError(fmt.Errorf("failed to create output directory: %w", err))
	}

	id := uuid.NewString()
	startedAt := time.Now()
	client := "voicememo_" + id[:8]
	path := filepath.Join(p.cfg.Output.Directory,
		fmt.Sprintf("memo_%s_%s%s", startedAt.Format("20060102_150405"), id[:8], cc.Container))

	args := buildCaptureArgs(client, cc, path)
	slog.Info("Starting capture", "command", strings.Join(args, " "))

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), "PIPEWIRE_QUANTUM=256/48000", "PIPEWIRE_LATENCY=256/48000")

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, CaptureError(fmt.Errorf("failed to create stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, CaptureError(fmt.Errorf("failed to start ffmpeg: %w", err))
	}

	proc := &captureProcess{
		handle:    &CaptureHandle{ID: id, Path: path, StartedAt: startedAt},
		client:    client,
		cmd:       cmd,
		container: cc.Container,
		linkDone:  make(chan struct{}),
	}
	go p.readOutput(stderr, proc)

	linkCtx, cancel := context.WithCancel(context.Background())
	proc.linkCancel = cancel
	if p.routeAllowed {
		go p.linkSources(linkCtx, proc)
	} else {
		slog.Warn("Recording route not enabled, sources left unlinked", "client", client)
		close(proc.linkDone)
	}

	p.captures[id] = proc
	return proc.handle, nil
}

// buildCaptureArgs constructs the pw-jack ffmpeg command line for one capture
func buildCaptureArgs(client string, cc CaptureConfig, outputFile string) []string {
	codec := cc.PlatformEncoding
	if codec == "" {
		codec = "aac"
	}

	return []string{
		"pw-jack",
		"ffmpeg",
		"-f", "jack",
		"-channels", strconv.Itoa(cc.Channels),
		"-i", client,
		"-ar", strconv.Itoa(cc.SampleRate),
		"-ac", strconv.Itoa(cc.Channels),
		"-c:a", codec,
		"-b:a", strconv.Itoa(cc.BitRate),
		"-y",
		outputFile,
	}
}

// linkSources connects each configured source to the matching ffmpeg input
func (p *PipeWireCapability) linkSources(ctx context.Context, proc *captureProcess) {
	defer close(proc.linkDone)

	for i, source := range p.cfg.Audio.Sources {
		if source == "" || source == "disabled" {
			continue
		}

		dest := fmt.Sprintf("%s:input_%d", proc.client, i+1)
		if err := p.pipewire.ConnectPortsWithRetry(ctx, source, dest); err != nil {
			slog.Error("Failed to link microphone source", "source", source, "dest", dest, "error", err)
			continue
		}

		proc.linksMu.Lock()
		proc.links = append(proc.links, [2]string{source, dest})
		proc.linksMu.Unlock()
		slog.Info("Linked microphone source", "source", source, "dest", dest)
	}
}

func (p *PipeWireCapability) unlinkSources(ctx context.Context, proc *captureProcess) {
	proc.linksMu.Lock()
	links := proc.links
	proc.links = nil
	proc.linksMu.Unlock()

	for _, link := range links {
		if err := p.pipewire.DisconnectPorts(ctx, link[0], link[1]); err != nil {
			slog.Debug("Failed to unlink source", "source", link[0], "error", err)
		}
	}
}

func (p *PipeWireCapability) readOutput(pipe io.ReadCloser, proc *captureProcess) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		proc.stderr.WriteLine(line)
		fmt.Fprintln(p.logWriter, line)
	}
}

func (p *PipeWireCapability) EndCapture(ctx context.Context, handle *CaptureHandle) (*Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proc, ok := p.captures[handle.ID]
	if !ok {
		return nil, CaptureError(fmt.Errorf("capture %s already finalized", handle.ID))
	}

	proc.linkCancel()
	<-proc.linkDone

	// A failed finalize keeps the capture registered so it can be retried or aborted
	if !proc.exited {
		proc.exited = true
		if err := stopProcess(proc); err != nil {
			return nil, CaptureError(err)
		}
	}

	if err := validateOutputFile(handle.Path); err != nil {
		return nil, CaptureError(err)
	}
	delete(p.captures, handle.ID)

	duration, err := play.ProbeDuration(ctx, handle.Path)
	if err != nil {
		slog.Debug("Falling back to wall-clock duration", "error", err)
		duration = time.Since(handle.StartedAt).Milliseconds()
	}

	slog.Info("Capture finalized", "file", handle.Path, "duration_ms", duration)
	return &Asset{
		ID:             handle.ID,
		Path:           handle.Path,
		Container:      proc.container,
		DurationMillis: duration,
	}, nil
}

// AbortCapture kills the encoder and removes the partial file
func (p *PipeWireCapability) AbortCapture(ctx context.Context, handle *CaptureHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proc, ok := p.captures[handle.ID]
	if !ok {
		return nil
	}
	delete(p.captures, handle.ID)

	proc.linkCancel()
	<-proc.linkDone
	p.killProcess(proc)

	if err := os.Remove(handle.Path); err != nil && !os.IsNotExist(err) {
		return CaptureError(fmt.Errorf("failed to remove discarded capture: %w", err))
	}

	slog.Debug("Capture discarded", "id", handle.ID)
	return nil
}

func (p *PipeWireCapability) LoadAndPlay(ctx context.Context, asset *Asset) (PlaybackHandle, error) {
	session, err := p.player.Load(ctx, asset.Path, asset.DurationMillis)
	if err != nil {
		return nil, PlaybackError(err)
	}
	return newSessionHandle(session), nil
}

// Close kills any capture still running
func (p *PipeWireCapability) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, proc := range p.captures {
		proc.linkCancel()
		<-proc.linkDone
		p.killProcess(proc)
		delete(p.captures, id)
	}

	slog.Debug("PipeWire capability cleaned up")
	return nil
}

func (p *PipeWireCapability) killProcess(proc *captureProcess) {
	if proc.cmd.Process != nil && !proc.exited {
		proc.exited = true
		proc.cmd.Process.Kill()
		proc.cmd.Wait()
	}
}

// stopProcess interrupts ffmpeg so it writes the container trailer
func stopProcess(proc *captureProcess) error {
	cmd := proc.cmd
	if cmd.Process == nil {
		return nil
	}

	slog.Debug("Sending SIGINT to ffmpeg process")
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to interrupt ffmpeg, killing", "error", err)
		cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			// 255 is ffmpeg's exit code after a clean interrupt
			if exitErr.ExitCode() == 255 {
				return nil
			}
			if state := exitErr.ProcessState.String(); state == "signal: interrupt" || state == "signal: killed" {
				return nil
			}
		}
		slog.Debug("ffmpeg stderr", "output", proc.stderr.String())
		return fmt.Errorf("ffmpeg process failed: %w", err)

	case <-time.After(5 * time.Second):
		slog.Warn("ffmpeg did not exit within timeout, force killing")
		cmd.Process.Kill()
		<-done
		return nil
	}
}

func validateOutputFile(path string) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording file not found: %s", path)
	}

	if fileInfo.Size() < minAssetSize {
		return fmt.Errorf("recording failed: file too small (%d bytes)", fileInfo.Size())
	}

	return nil
}

// sessionHandle adapts a play.Session to PlaybackHandle
type sessionHandle struct {
	session *play.Session
	updates chan PlaybackStatus
}

func newSessionHandle(session *play.Session) *sessionHandle {
	h := &sessionHandle{
		session: session,
		updates: make(chan PlaybackStatus, 16),
	}

	go func() {
		defer close(h.updates)
		for st := range session.Updates() {
			h.updates <- PlaybackStatus{
				IsLoaded:       st.IsLoaded,
				PositionMillis: st.PositionMillis,
				DurationMillis: st.DurationMillis,
				DidJustFinish:  st.DidJustFinish,
			}
		}
	}()

	return h
}

func (h *sessionHandle) Updates() <-chan PlaybackStatus { return h.updates }

func (h *sessionHandle) Pause(ctx context.Context) error { return h.session.Pause() }

func (h *sessionHandle) Resume(ctx context.Context) error { return h.session.Resume() }

func (h *sessionHandle) Seek(ctx context.Context, positionMillis int64) error {
	return h.session.Seek(positionMillis)
}

func (h *sessionHandle) Stop(ctx context.Context) error { return h.session.Stop() }
