package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stratus-analytics/pulse/internal/refresher"
	"github.com/stratus-analytics/pulse/internal/server"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Pulse HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := a.store.Start(ctx); err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}

	serverCfg := &types.ServerConfig{Addr: ":8080"}
	if a.cfg.Server != nil {
		serverCfg = a.cfg.Server
		if serverCfg.Addr == "" {
			serverCfg.Addr = ":8080"
		}
	}
	srv := server.New(serverCfg, server.Deps{
		Config:       a.cfg,
		Store:        a.store,
		Orchestrator: a.orch,
		Freshness:    a.freshness,
		Breaker:      a.breaker,
	})

	var ref *refresher.Refresher
	if a.cfg.Refresher != nil && a.cfg.Refresher.Enabled {
		ref = refresher.New(a.cfg, a.store, a.orch, a.logger)
		ref.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if ref != nil {
			ref.Stop(shutdownCtx)
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		_ = a.store.Stop(shutdownCtx)
		color.Green("Server stopped gracefully")
		return nil
	}
}
