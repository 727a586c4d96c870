package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/okamoto/hr-dashboard/internal/config"
	"github.com/okamoto/hr-dashboard/internal/models"
	"go.uber.org/zap"
)

// ChangeSource publishes store changes
type ChangeSource interface {
	Subscribe() (<-chan models.Change, func())
}

// HTTPServer represents the dashboard HTTP server
type HTTPServer struct {
	config     *config.ServerConfig
	httpServer *http.Server
	listener   net.Listener
	subs       *SubscriberManager
	changes    ChangeSource
	logger     *zap.Logger
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.ServerConfig, handler http.Handler, subs *SubscriberManager, changes ChangeSource, logger *zap.Logger) *HTTPServer {
	ctx, cancel := context.WithCancel(context.Background())

	s := &HTTPServer{
		config:  cfg,
		subs:    subs,
		changes: changes,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	// Event streams never finish on their own; end them when shutdown begins.
	s.httpServer.RegisterOnShutdown(subs.CloseAll)

	return s
}

// Start binds the listener and serves in the background
func (s *HTTPServer) Start() error {
	addr := s.config.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server on %s: %w", addr, err)
	}

	s.listener = listener
	s.logger.Info("HTTP server started", zap.String("address", listener.Addr().String()))

	changes, unsubscribe := s.changes.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		s.subs.Run(s.ctx, changes)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, useful when the configured port is 0
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return s.config.Addr()
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the HTTP server
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("graceful shutdown incomplete", zap.Error(err))
		_ = s.httpServer.Close()
	}

	s.cancel()
	s.wg.Wait()

	s.logger.Info("HTTP server stopped")
	return err
}

// Subscribers returns the subscriber manager
func (s *HTTPServer) Subscribers() *SubscriberManager {
	return s.subs
}
