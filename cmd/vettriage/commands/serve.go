package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/biodoia/vettriage/internal/httpapi"
)

var (
	devMode bool
	verbose bool
)

// ServeCmd rappresenta il comando serve
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the VetTriage HTTP server",
	Long: `Start the HTTP server exposing the triage pipeline.

The server accepts case submissions with optional clinical images and
returns a full triage report with findings, literature passages and a
ranked differential diagnosis.`,
	Example: `  # Start server with default settings
  vettriage serve

  # Start in development mode with verbose logging
  vettriage serve --dev --verbose

  # Start with custom config
  vettriage serve -c /path/to/config.yaml`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (pretty logging)")
	ServeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (debug level)")
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogger(verbose, devMode)

	log.Info().Msg("Starting VetTriage server")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("dev_mode", devMode).
		Msg("Configuration loaded")

	rt, err := buildRuntime(cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := httpapi.New(rt.orchestrator, rt.registry)

	go func() {
		if err := server.Listen(cfg.Server.Host, cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	log.Info().Msgf("Triage API: http://%s:%d/api/v1/diagnose", cfg.Server.Host, cfg.Server.Port)
	log.Info().Msgf("Health check: http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)
	log.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.Host, cfg.Server.Port)

	return waitForShutdown(server)
}

func waitForShutdown(server *httpapi.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return fmt.Errorf("shutdown failed: %w", err)
	}

	log.Info().Msg("VetTriage stopped cleanly")
	return nil
}
