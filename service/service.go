package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-golden/metrics"
	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config selects which endpoints the service exposes
type Config struct {
	HealthzAddr string // Empty disables the health check endpoint
	Metrics     opmetrics.CLIConfig
	Log         log.Logger
}

// Service runs the HTTP endpoints that accompany continuous mode
type Service struct {
	cfg     Config
	log     log.Logger
	Healthz *HealthzServer
	Metrics *httputil.HTTPServer
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Service{
		cfg:     cfg,
		log:     cfg.Log,
		Healthz: &HealthzServer{log: cfg.Log},
	}
}

// Start launches the enabled endpoints. Both listeners are bound when Start
// returns.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")

	if s.cfg.Metrics.Enabled {
		s.log.Info("starting metrics server", "addr", s.cfg.Metrics.ListenAddr, "port", s.cfg.Metrics.ListenPort)
		server, err := opmetrics.StartServer(metrics.Registry, s.cfg.Metrics.ListenAddr, s.cfg.Metrics.ListenPort)
		if err != nil {
			metrics.RecordErrorDetails("metrics_server", err)
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		s.log.Info("started metrics server", "endpoint", server.Addr())
		s.Metrics = server
	}

	if s.cfg.HealthzAddr != "" {
		s.log.Info("starting healthz server", "addr", s.cfg.HealthzAddr)
		err := s.Healthz.Start(s.cfg.HealthzAddr, func(err error) {
			s.log.Error("healthz server failed", "err", err)
			metrics.RecordErrorDetails("healthz_server", err)
		})
		if err != nil {
			metrics.RecordErrorDetails("healthz_server", err)
			return fmt.Errorf("failed to start healthz server: %w", err)
		}
		s.log.Info("started healthz server", "endpoint", s.Healthz.Addr())
	}

	s.log.Info("service started")
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")

	var result error
	if err := s.Healthz.Shutdown(ctx); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to stop healthz server: %w", err))
	}
	s.log.Info("healthz stopped")

	if s.Metrics != nil {
		if err := s.Metrics.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
		s.log.Info("metrics stopped")
	}

	s.log.Info("service stopped")
	return result
}
