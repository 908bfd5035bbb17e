package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/database"
	"github.com/kozaktomas/selfie-search/internal/web"
	"github.com/kozaktomas/selfie-search/internal/web/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Selfie Search API server.
The server exposes selfie search, recall and profile endpoints for event
galleries, plus /api/v1/health and Prometheus /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().StringSlice("warm", nil, "Event hashes whose HNSW index is built at startup (FACE_INDEX=hnsw)")
}

// warmIndexes builds the in-memory index of the given events before serving.
func warmIndexes(ctx context.Context, a *app, hashes []string) {
	if a.index == nil || len(hashes) == 0 {
		return
	}
	events, err := database.GetEventReader(ctx)
	if err != nil {
		a.logger.Warn("cannot warm face index", zap.Error(err))
		return
	}
	for _, hash := range hashes {
		event, err := events.GetEventByHash(ctx, hash)
		if err != nil || event == nil {
			a.logger.Warn("skipping warm-up of unknown event", zap.String("event_hash", hash), zap.Error(err))
			continue
		}
		if _, err := a.index.Warm(ctx, event.ID); err != nil {
			a.logger.Warn("failed to warm face index", zap.String("event_hash", hash), zap.Error(err))
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	warmIndexes(ctx, a, mustGetStringSlice(cmd, "warm"))

	if a.cfg.Auth.JWTSecret == "" {
		a.logger.Warn("AUTH_JWT_SECRET not set, recall and stored profiles are disabled")
	}
	auth := middleware.NewAuthenticator(a.cfg.Auth.JWTSecret, a.cfg.Auth.JWTIssuer, a.logger)
	server := web.NewServer(a.cfg, a.service, auth, a.pool.Ping, a.logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	return server.Start()
}
