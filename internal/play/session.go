package play

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is a playback position report
type Status struct {
	IsLoaded       bool
	PositionMillis int64
	DurationMillis int64
	DidJustFinish  bool
}

var errSessionClosed = errors.New("playback session closed")

// Session is one loaded audio file. The player process is suspended on
// pause and restarted at an offset on seek, so the position is derived
// from the wall clock since the last (re)start.
type Session struct {
	path     string
	duration int64
	interval time.Duration
	command  func(offsetMillis int64) *exec.Cmd

	mu        sync.Mutex
	cmd       *exec.Cmd
	gen       int
	offset    int64
	startedAt time.Time
	playing   bool
	closed    bool

	updates chan Status
	exited  chan int
	quit    chan struct{}
	done    chan struct{}
}

func newSession(path string, durationMillis int64, interval time.Duration, command func(int64) *exec.Cmd) *Session {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	s := &Session{
		path:     path,
		duration: durationMillis,
		interval: interval,
		command:  command,
		updates:  make(chan Status, 16),
		exited:   make(chan int),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Updates delivers position reports until Stop is called
func (s *Session) Updates() <-chan Status {
	return s.updates
}

func (s *Session) DurationMillis() int64 {
	return s.duration
}

// Position returns the current playback position in milliseconds
func (s *Session) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Session) positionLocked() int64 {
	pos := s.offset
	if s.playing {
		pos += time.Since(s.startedAt).Milliseconds()
	}
	if pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked()
}

// spawnLocked starts a player process at the current offset
func (s *Session) spawnLocked() error {
	cmd := s.command(s.offset)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}

	s.gen++
	s.cmd = cmd
	s.startedAt = time.Now()
	s.playing = true

	gen := s.gen
	go func() {
		cmd.Wait()
		select {
		case s.exited <- gen:
		case <-s.quit:
		}
	}()

	return nil
}

// killLocked terminates the current process; its exit is ignored by the loop
func (s *Session) killLocked() {
	if s.cmd == nil {
		return
	}
	s.gen++
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd = nil
}

func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed
	}
	if !s.playing {
		return nil
	}

	s.offset = s.positionLocked()
	s.playing = false

	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
			// Process is gone, resume will restart it at the offset
			slog.Debug("Failed to suspend player, dropping process", "error", err)
			s.killLocked()
		}
	}
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed
	}
	if s.playing {
		return nil
	}

	if s.offset >= s.duration {
		s.offset = 0
	}

	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Signal(syscall.SIGCONT); err == nil {
			s.startedAt = time.Now()
			s.playing = true
			return nil
		}
		s.killLocked()
	}

	return s.spawnLocked()
}

// Seek moves to positionMillis, keeping the current play/pause state
func (s *Session) Seek(positionMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed
	}

	if positionMillis < 0 {
		positionMillis = 0
	}
	if positionMillis > s.duration {
		positionMillis = s.duration
	}

	wasPlaying := s.playing
	s.killLocked()
	s.offset = positionMillis
	s.playing = false

	if wasPlaying {
		return s.spawnLocked()
	}
	return nil
}

// Stop kills the player and closes the updates channel
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.killLocked()
	s.playing = false
	s.mu.Unlock()

	s.close()
	return nil
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	<-s.done
}

func (s *Session) loop() {
	defer close(s.done)
	defer close(s.updates)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return

		case gen := <-s.exited:
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				continue
			}
			s.cmd = nil
			s.playing = false
			s.offset = s.duration
			s.mu.Unlock()

			slog.Debug("Playback finished", "file", s.path)
			s.send(Status{IsLoaded: true, PositionMillis: s.duration, DurationMillis: s.duration, DidJustFinish: true})

		case <-ticker.C:
			s.mu.Lock()
			playing := s.playing
			pos := s.positionLocked()
			s.mu.Unlock()

			if !playing {
				continue
			}

			// Position reports are dropped when the consumer lags behind
			select {
			case s.updates <- Status{IsLoaded: true, PositionMillis: pos, DurationMillis: s.duration}:
			default:
			}
		}
	}
}

func (s *Session) send(st Status) {
	select {
	case s.updates <- st:
	case <-s.quit:
	}
}
