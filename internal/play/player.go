package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/voicememo/internal/config"
)

// Player starts playback sessions with an external audio player
type Player struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Player {
	return &Player{cfg: cfg}
}

// Load starts playing path from the beginning. durationMillis may be zero,
// in which case the file is probed.
func (p *Player) Load(ctx context.Context, path string, durationMillis int64) (*Session, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return nil, fmt.Errorf("no suitable audio player found: %w", err)
	}

	if durationMillis <= 0 {
		durationMillis, err = ProbeDuration(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	interval := time.Duration(p.cfg.Playback.PositionIntervalMs) * time.Millisecond
	s := newSession(path, durationMillis, interval, func(offsetMillis int64) *exec.Cmd {
		return playerCommand(player, path, offsetMillis)
	})

	if err := s.start(); err != nil {
		s.close()
		return nil, err
	}

	slog.Debug("Playback session started", "player", player, "file", path, "duration_ms", durationMillis)
	return s, nil
}

func (p *Player) findAudioPlayer() (string, error) {
	if p.cfg.Playback.Player != "" {
		if _, err := exec.LookPath(p.cfg.Playback.Player); err != nil {
			return "", fmt.Errorf("configured player %s not found: %w", p.cfg.Playback.Player, err)
		}
		return p.cfg.Playback.Player, nil
	}

	// Only players that can start at an offset are usable for seeking
	players := []string{"ffplay", "mpv"}

	for _, player := range players {
		if _, err := exec.LookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

func playerCommand(player, path string, offsetMillis int64) *exec.Cmd {
	offset := strconv.FormatFloat(float64(offsetMillis)/1000, 'f', 3, 64)

	switch player {
	case "mpv":
		return exec.Command("mpv", "--no-video", "--really-quiet", "--start="+offset, path)
	default:
		return exec.Command("ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-ss", offset, path)
	}
}

// ProbeDuration returns the duration of an audio file in milliseconds using ffprobe
func ProbeDuration(ctx context.Context, path string) (int64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe duration %q: %w", strings.TrimSpace(string(output)), err)
	}

	return int64(seconds * 1000), nil
}
