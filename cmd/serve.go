package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/siftlab/sift/internal/api"
	"github.com/siftlab/sift/internal/metrics"
)

var flagAddr string

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides server.addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregation API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	addr := cfg.Server.Addr
	if flagAddr != "" {
		addr = flagAddr
	}
	server, err := api.New(api.Config{
		Orchestrator: app.orchestrator,
		Summarizer:   app.summarizer,
		Mindmap:      app.mindmap,
		Store:        app.store,
		StoreKind:    app.storeKind,
		Addr:         addr,
		Version:      version,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("setup api server: %w", err)
	}

	if cfg.Metrics.Port > 0 {
		ms := metrics.Start(cfg.Metrics.Port)
		logger.Info("metrics listening", "port", cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Stop(shutdownCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
