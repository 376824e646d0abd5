package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"alertrouter/internal/channel"
	"alertrouter/internal/chart"
	"alertrouter/internal/clock"
	"alertrouter/internal/config"
	"alertrouter/internal/ingest"
	"alertrouter/internal/logging"
	"alertrouter/internal/normalize"
	"alertrouter/internal/notify"
	"alertrouter/internal/routing"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable alert routing service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	alerts    *AlertService
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	readyFlag atomic.Bool
}

// NewService builds the service from a config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	displayLoc, err := time.LoadLocation(cfg.Defaults.DisplayTimezone)
	if err != nil {
		logger.Warn("unknown display timezone, using UTC",
			"timezone", cfg.Defaults.DisplayTimezone, "err", err)
		displayLoc = time.UTC
	}

	renderer, err := notify.NewRenderer(cfg.Templates, displayLoc)
	if err != nil {
		closeLog()
		return nil, err
	}

	matcher := routing.NewMatcher(logger)
	alerts := NewAlertService(AlertServiceDeps{
		Normalizer:  normalize.New(logger),
		Dedup:       routing.NewDedupCache(cfg.JenkinsDedup, clk, logger),
		Router:      routing.NewRouter(cfg.Routing, matcher, logger),
		Channels:    channel.NewTable(cfg.Channels),
		Renderer:    renderer,
		Sender:      notify.NewDispatcher(cfg.Channels, logger),
		Charts:      chart.New(cfg.Chart, clk, logger),
		TitlePrefix: cfg.Defaults.TitlePrefix,
		Log:         logger,
	})

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		alerts:   alerts,
	}
	service.buildHTTPServer()
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	return service, nil
}

// Run starts the service and blocks until a shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Ingest.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("nats subscriber close: %w", err)
			}
		}
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failure.
// Params: none.
// Returns: acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires the webhook and health endpoints.
// Params: none.
// Returns: server stored on the service.
func (s *Service) buildHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Ingest.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Ingest.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.Handle(s.cfg.Ingest.HTTP.WebhookPath,
		ingest.NewHTTPHandler(s.alerts, s.cfg.Ingest.HTTP.MaxBodyBytes, s.logger))

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Ingest.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildNATSSubscriber starts NATS ingest when enabled.
// Params: none.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber() error {
	if !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.alerts, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}
