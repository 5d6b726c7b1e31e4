package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"tonearm/internal/jobs"
	"tonearm/internal/reconcile"
	"tonearm/internal/server"
	"tonearm/internal/shared"
)

// Serve runs the release metadata HTTP service until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	store, err := r.buildStore(ctx, config)
	if err != nil {
		return err
	}
	defer store.Close()

	primary, community, fallback, err := r.buildClients(config)
	if err != nil {
		return err
	}
	defer func() {
		for _, client := range []interface{ Close() error }{primary, community, fallback} {
			if client != nil {
				client.Close()
			}
		}
	}()

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	jobStore, err := jobs.NewJobStore(db)
	if err != nil {
		return err
	}

	orchestrator := reconcile.NewOrchestrator(primary, community, fallback, reconcile.Options{
		Timeout:       time.Duration(config.Reconcile.TimeoutSeconds) * time.Second,
		SourceTimeout: time.Duration(config.Reconcile.SourceTimeoutSeconds) * time.Second,
		Store:         store,
		SearchTTL:     time.Duration(config.Cache.SearchTTLSeconds) * time.Second,
		ReleaseTTL:    time.Duration(config.Cache.ReleaseTTLSeconds) * time.Second,
		Logger:        r.logger,
	})

	manager := jobs.NewManager(jobs.ManagerOpts{
		Store:      jobStore,
		Cache:      store,
		Reconciler: orchestrator,
		Logger:     r.logger,
		RunTimeout: time.Duration(config.Reconcile.TimeoutSeconds) * time.Second,
		ResultTTL:  time.Duration(config.Cache.ResultTTLSeconds) * time.Second,
		ErrorTTL:   time.Duration(config.Cache.ErrorTTLSeconds) * time.Second,
	})
	defer manager.Shutdown()

	handler := server.NewHandler(manager, r.logger)
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	srv := server.New(addr, server.NewRouter(handler))

	retention := time.Duration(config.Reconcile.JobRetentionHours) * time.Hour
	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go r.pruneLoop(pruneCtx, manager, retention)

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		r.logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	r.logger.Info("server stopped")
	return nil
}

// pruneLoop periodically removes terminal jobs past the retention window.
func (r *Runner) pruneLoop(ctx context.Context, manager *jobs.Manager, retention time.Duration) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := manager.Prune(ctx, retention)
			if err != nil {
				r.logger.Warn("job pruning failed", "error", err)
				continue
			}
			if removed > 0 {
				r.logger.Info("pruned terminal jobs", "count", removed)
			}
		}
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the release metadata HTTP service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Serve,
	}
}
