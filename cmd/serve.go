package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/voicememo/internal/server"
	"github.com/audiolibrelab/voicememo/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the voice memo web server to record and play memos from a browser.
This allows you to control recording from your smartphone or any device on the same network.

The server will display the local network URL for easy access from mobile devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		if verboseLevel < 1 {
			gin.SetMode(gin.ReleaseMode)
		}

		svc, err := service.New(cfg, cfgFile, backendLogWriter())
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close(context.Background())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("Voice memo web server starting", "port", port, "config", cfgFile, "profile", cfg.Profile)

		if err := server.New(svc, cfgFile, port).Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
