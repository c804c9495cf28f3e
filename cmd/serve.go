package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/ar-marker/internal/assetstore"
	"github.com/kozaktomas/ar-marker/internal/camera"
	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/ingest"
	"github.com/kozaktomas/ar-marker/internal/session"
	"github.com/kozaktomas/ar-marker/internal/web"
	"github.com/kozaktomas/ar-marker/internal/web/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the AR Marker web server.
The server exposes the project API (list, create, delete), one-shot frame
matching and websocket capture sessions that recognise markers live.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies --port and --host over the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
}

// sessionFactory builds capture sessions sampling at the configured cadence.
func sessionFactory(svc *services) func(camera.Device) *session.Session {
	return func(d camera.Device) *session.Session {
		return session.New(d, svc.engine, session.Options{
			Interval:    svc.cfg.Matching.Interval,
			Remediation: svc.cfg.Remediation,
		})
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	fmt.Printf("Loaded %d projects\n", svc.registry.Len())

	assets, err := assetstore.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure asset store: %w", err)
	}
	switch assets.(type) {
	case *assetstore.S3Store:
		fmt.Printf("Asset store: %s (bucket %s)\n", cfg.AssetStore.Endpoint, cfg.AssetStore.Bucket)
	case *assetstore.MemoryStore:
		fmt.Println("Warning: using in-memory asset store (ASSETSTORE_MOCK), uploads are not persisted")
	default:
		fmt.Println("Warning: asset store is not configured, project creation will fail")
	}

	if len(cfg.Web.AuthTokens) == 0 {
		fmt.Println("Warning: AUTH_TOKENS is empty, mutating routes will reject every request")
	}

	server := web.NewServer(cfg, web.Dependencies{
		Projects:   svc.registry,
		Ingester:   ingest.NewPipeline(assets, svc.registry),
		Engine:     svc.engine,
		AssetStore: assets,
		Sessions:   sessionFactory(svc),
		Verifier:   middleware.NewStaticTokenVerifier(cfg.Web.AuthTokens),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting AR Marker server on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
