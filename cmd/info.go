package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/audiolibrelab/voicememo/internal/service"
	"github.com/audiolibrelab/voicememo/internal/waveform"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Show duration and waveform layout for an audio file",
	Long: `Display the probed duration, the waveform layout of the active profile and
a terminal preview for the given audio file. Use --svg to export the waveform.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg, cfgFile, backendLogWriter())
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close(context.Background())

		rec, err := svc.Import(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		spec, _ := svc.Waveform(rec.ID)
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "=== FILE ===\n")
		fmt.Fprintf(out, "path: %s\n", rec.Asset.Path)
		fmt.Fprintf(out, "container: %s\n", rec.Asset.Container)
		fmt.Fprintf(out, "duration: %s\n", formatDuration(*rec))

		fmt.Fprintf(out, "\n=== WAVEFORM (%s) ===\n", cfg.Profile)
		fmt.Fprintf(out, "mode: %s\n", cfg.Waveform.Mode)
		fmt.Fprintf(out, "bars: %d\n", len(spec.Bars))
		fmt.Fprintf(out, "size: %.1fx%.1f\n", spec.Width, spec.Height)
		fmt.Fprintf(out, "preview: %s\n", waveform.Terminal(spec, os.Getenv("NO_COLOR") == ""))

		if path, _ := cmd.Flags().GetString("svg"); path != "" {
			if err := os.WriteFile(path, waveform.SVG(spec), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(out, "svg: %s\n", path)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().String("svg", "", "write the waveform as SVG to this file")
}
