package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/recorder"
	"github.com/audiolibrelab/voicememo/internal/recording"
	"github.com/audiolibrelab/voicememo/internal/service"
	"github.com/audiolibrelab/voicememo/internal/waveform"
)

const screenHelp = `Commands:
  r        start recording
  s        stop and keep the recording
  d        discard the recording in progress
  p N      play or pause memo N
  l        list memos
  h        show this help
  q        quit`

// screen is the terminal rendition of the memo screen
type screen struct {
	svc   service.Service
	out   io.Writer
	color bool
}

var errUnknownCommand = errors.New("unknown command, type h for help")

// handle runs one command line and reports whether the user asked to quit
func (s *screen) handle(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "r", "record":
		if err := s.svc.StartRecording(ctx); err != nil {
			if errors.Is(err, audio.ErrPermissionDenied) {
				return false, fmt.Errorf("%w, check the configured sources with 'voicememo sources'", err)
			}
			return false, err
		}
		fmt.Fprintln(s.out, "● Recording... (s to stop, d to discard)")

	case "s", "stop":
		rec, err := s.svc.StopRecording(ctx)
		if err != nil {
			return false, err
		}
		if rec == nil {
			fmt.Fprintln(s.out, "Not recording")
			return false, nil
		}
		fmt.Fprintf(s.out, "Saved memo %d (%s)\n", rec.Index+1, formatDuration(*rec))

	case "d", "delete":
		if s.svc.Session().Status != recorder.StatusCapturing {
			fmt.Fprintln(s.out, "Not recording")
			return false, nil
		}
		if err := s.svc.DeleteRecording(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "Recording discarded")

	case "p", "play":
		rec, err := s.memo(fields)
		if err != nil {
			return false, err
		}
		if err := s.svc.TogglePlayback(ctx, rec.ID); err != nil {
			return false, err
		}
		s.printMemo(rec.ID)

	case "l", "list":
		s.list()

	case "h", "help", "?":
		fmt.Fprintln(s.out, screenHelp)

	case "q", "quit", "exit":
		return true, nil

	default:
		return false, errUnknownCommand
	}

	return false, nil
}

func (s *screen) memo(fields []string) (recording.Recording, error) {
	recs := s.svc.Recordings()
	if len(recs) == 0 {
		return recording.Recording{}, fmt.Errorf("no memos yet, press r to record one")
	}

	n := len(recs)
	if len(fields) > 1 {
		var err error
		n, err = strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > len(recs) {
			return recording.Recording{}, fmt.Errorf("memo number must be between 1 and %d", len(recs))
		}
	}
	return recs[n-1], nil
}

func (s *screen) list() {
	recs := s.svc.Recordings()
	if len(recs) == 0 {
		fmt.Fprintln(s.out, "No memos")
		return
	}
	for _, rec := range recs {
		s.printMemo(rec.ID)
	}
}

func (s *screen) printMemo(id string) {
	rec, ok := s.svc.Recording(id)
	if !ok {
		return
	}
	spec, _ := s.svc.Waveform(id)
	fmt.Fprintf(s.out, "%2d %s %s %s\n", rec.Index+1, playbackLabel(rec), waveform.Terminal(spec, s.color), formatDuration(rec))
}

// statusLine is redrawn once per second while something is happening
func (s *screen) statusLine() string {
	session := s.svc.Session()
	if session.Status == recorder.StatusCapturing {
		line := "● REC " + session.Elapsed
		if len(session.Live) > 0 {
			opts := waveform.OptionsFromConfig(s.svc.Config())
			line += " " + waveform.Terminal(waveform.Render(session.Live, float64(len(session.Live)), opts), s.color)
		}
		return line
	}

	for _, rec := range s.svc.Recordings() {
		if rec.Playback.IsPlaying {
			spec, _ := s.svc.Waveform(rec.ID)
			return fmt.Sprintf("▶ %d %s", rec.Index+1, waveform.Terminal(spec, s.color))
		}
	}
	return ""
}

func playbackLabel(rec recording.Recording) string {
	switch {
	case rec.Playback.IsPlaying:
		return "▶"
	case rec.Finished() && rec.Playback.PlayheadFraction > 0:
		return "↺"
	default:
		return "■"
	}
}

func formatDuration(rec recording.Recording) string {
	if rec.Asset == nil || rec.Asset.DurationMillis <= 0 {
		return "--:--"
	}
	return recorder.FormatElapsed(int(rec.Asset.DurationMillis / 1000))
}
