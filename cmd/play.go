package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/voicememo/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "Play an audio file with a live waveform",
	Long: `Play an existing recording with the same waveform and playhead as the
recording screen. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg, cfgFile, backendLogWriter())
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close(context.Background())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rec, err := svc.Import(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Playing: %s\n", rec.Asset.Path)
		if err := svc.TogglePlayback(ctx, rec.ID); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		s := &screen{svc: svc, out: cmd.OutOrStdout(), color: os.Getenv("NO_COLOR") == ""}
		return followPlayback(ctx, s, rec.ID)
	},
}

// followPlayback redraws the waveform until the recording stops playing
func followPlayback(ctx context.Context, s *screen, id string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case <-ticker.C:
			rec, ok := s.svc.Recording(id)
			if !ok {
				return fmt.Errorf("recording %s disappeared", id)
			}
			fmt.Fprintf(s.out, "\r\x1b[2K%s", s.statusLine())
			if !rec.Playback.IsPlaying {
				fmt.Fprintln(s.out)
				return nil
			}
		}
	}
}
