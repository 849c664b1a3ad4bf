package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/voicememo/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
	logFile      string
)

var rootCmd = &cobra.Command{
	Use:   "voicememo",
	Short: "Record, store and play back voice memos",
	Long: `voicememo records short voice memos from the microphone, keeps them
in a list and plays them back with a waveform whose playhead follows the
audio position.

Use 'voicememo record' for the interactive recording screen or
'voicememo serve' to control it from a browser.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel, logFile)

		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		// config path and config use work on the file itself
		if cmd.Name() == "path" || cmd.Name() == "use" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		slog.Debug("Configuration loaded", "file", cfgFile, "profile", cfg.Profile, "backend", cfg.Audio.Backend)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/voicememo.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output, 3=max tracing")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated at 10 MB")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(infoCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int, file string) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))

	// Set environment variables for maximum tracing (level 3)
	if level >= 3 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}

// backendLogWriter receives ffmpeg and player output from level 2 up
func backendLogWriter() io.Writer {
	if verboseLevel >= 2 {
		return os.Stderr
	}
	return io.Discard
}
