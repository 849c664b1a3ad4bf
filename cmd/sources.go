package cmd

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/audiolibrelab/voicememo/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long: `List all PipeWire/JACK ports that can feed the recorder and check the
sources configured in the active profile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		return listPipeWireSources(ctx, cmd.OutOrStdout(), audio.NewPipeWire(), cfg.Audio.Sources)
	},
}

// listPipeWireSources lists available PipeWire/JACK sources
func listPipeWireSources(ctx context.Context, out io.Writer, pw *audio.PipeWire, configured []string) error {
	sources, err := pw.ListPorts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get PipeWire sources: %w", err)
	}

	fmt.Fprintf(out, "🎙  Audio Sources (%s)\n", runtime.GOOS)
	fmt.Fprintf(out, "═══════════════════════════════════════\n\n")

	fmt.Fprintf(out, "📋 PIPEWIRE/JACK SOURCES (%d found):\n", len(sources))
	for i, source := range sources {
		fmt.Fprintf(out, "  %d. %s\n", i+1, source)
	}

	if len(configured) > 0 {
		fmt.Fprintf(out, "\n🔗 CONFIGURED SOURCES:\n")
		for _, source := range configured {
			status := "ok"
			if err := pw.ValidatePort(ctx, source); err != nil {
				status = err.Error()
			}
			fmt.Fprintf(out, "  • %s: %s\n", source, status)
		}
	}

	fmt.Fprintf(out, "\n💡 PipeWire Usage:\n")
	fmt.Fprintf(out, "  • Format: \"Device: Audio (hw:X,Y):Z\" or \"Application:port\"\n")
	fmt.Fprintf(out, "  • Example: \"Built-in Audio Analog Stereo:capture_FL\"\n")
	fmt.Fprintf(out, "  • Configure in audio.sources: [\"Device: Audio (hw:1,0):0\"]\n")
	fmt.Fprintf(out, "  • Without sources nothing is linked; connect ports with your patchbay\n\n")

	return nil
}
