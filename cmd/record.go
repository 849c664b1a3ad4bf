package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/voicememo/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Open the interactive recording screen",
	Long: `Open the memo screen in the terminal. Record memos with r, stop with s,
discard with d and play them back with p N. Memos are kept until you quit;
the audio files stay in the output directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Output.Directory = dir
		}

		svc, err := service.New(cfg, cfgFile, backendLogWriter())
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("Recording screen ready", "profile", cfg.Profile, "mode", cfg.Waveform.Mode, "output", cfg.Output.Directory)

		s := &screen{svc: svc, out: cmd.OutOrStdout(), color: os.Getenv("NO_COLOR") == ""}
		err = runScreen(ctx, s, cmd.InOrStdin())

		// Anything still being captured is discarded on the way out
		if closeErr := svc.Close(context.Background()); closeErr != nil {
			slog.Warn("Failed to shut down cleanly", "error", closeErr)
		}
		return err
	},
}

func runScreen(ctx context.Context, s *screen, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(s.out, screenHelp)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := s.handle(ctx, line)
			if err != nil {
				fmt.Fprintf(s.out, "Error: %v\n", err)
			}
			if quit {
				return nil
			}

		case <-ticker.C:
			if line := s.statusLine(); line != "" {
				fmt.Fprintf(s.out, "\r\x1b[2K%s", line)
			}
		}
	}
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
}
