package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okamoto/hr-dashboard/internal/scheduler"
	"github.com/okamoto/hr-dashboard/internal/server"
	"github.com/okamoto/hr-dashboard/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard HTTP server",
	Long: `Start an HTTP server exposing the dashboard, bookmarks and analytics views
as JSON, plus an event stream of changes. Employees are loaded once on start
unless the local cache already holds them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if servePort != 0 {
		a.cfg.Server.Port = servePort
	}
	logger := a.logger

	pool := worker.NewPool(&a.cfg.Worker, worker.NewProcessor(a.state, logger), logger)
	pool.Start()

	if err := a.openStore(cmd.Context(), pool); err != nil {
		pool.Stop()
		a.close()
		return fmt.Errorf("failed to open store: %w", err)
	}

	if a.cfg.Loader.LoadOnStart {
		go func() {
			if err := a.ensureLoaded(context.Background()); err != nil {
				logger.Warn("initial load did not complete", zap.Error(err))
			}
		}()
	} else {
		go probeSource(a)
	}

	subs := server.NewSubscriberManager(a.cfg.Server.MaxSubscribers, logger)
	handler := server.NewHandler(server.Deps{
		Store:       a.store,
		Loader:      a.loader,
		Subscribers: subs,
		Persistence: pool,
		Health:      map[string]server.HealthChecker{"database": a.db},
		Heartbeat:   a.cfg.Server.HeartbeatInterval,
		Logger:      logger,
	})
	httpServer := server.NewHTTPServer(&a.cfg.Server, handler.Routes(), subs, a.store, logger)

	sched := scheduler.New(logger)
	if err := sched.AddJob("cleanup-subscribers", a.cfg.Server.CleanupSchedule, func(context.Context) error {
		if n := subs.CleanupStale(a.cfg.Server.MaxIdle); n > 0 {
			logger.Info("evicted idle subscribers", zap.Int("count", n))
		}
		return nil
	}); err != nil {
		pool.Stop()
		a.close()
		return err
	}
	if err := sched.AddJob("checkpoint-store", a.cfg.Storage.CheckpointSchedule, a.store.Flush); err != nil {
		pool.Stop()
		a.close()
		return err
	}

	if err := httpServer.Start(); err != nil {
		pool.Stop()
		a.close()
		return err
	}
	sched.Start()

	logger.Info("hr dashboard is running",
		zap.String("address", httpServer.Addr()),
		zap.String("source", a.cfg.Source.BaseURL),
		zap.String("storage", a.db.Path()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	return shutdown(a, httpServer, sched, pool)
}

// probeSource logs whether the source is reachable when nothing loads on start
func probeSource(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.source.HealthCheck(ctx); err != nil {
		a.logger.Warn("employee source unreachable", zap.Error(err))
		return
	}
	a.logger.Info("employee source reachable", zap.String("source", a.cfg.Source.BaseURL))
}

// shutdown stops components in dependency order: no new requests, no new
// loads, final state written, then the writer and storage go away.
func shutdown(a *app, httpServer *server.HTTPServer, sched *scheduler.Scheduler, pool *worker.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	httpErr := httpServer.Stop(ctx)
	sched.Stop()
	a.loader.Close()

	if err := a.store.Flush(ctx); err != nil {
		a.logger.Error("final flush failed", zap.Error(err))
	}
	pool.Stop()

	stats := pool.Stats()
	a.logger.Info("shutdown complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Uint64("snapshots_persisted", stats.Persisted),
		zap.Int("snapshots_superseded", stats.Superseded),
		zap.Int("persist_failures", stats.Failures))

	// already flushed
	a.store = nil
	a.close()

	return httpErr
}
