package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"blockrelay/api/health"
	"blockrelay/infra/checkpoint"
	"blockrelay/infra/config"
	"blockrelay/infra/logging"
	"blockrelay/infra/metrics"
	"blockrelay/infra/supervise"
)

func loadConfig(cmd *cobra.Command, role config.Role) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(role); err != nil {
		return cfg, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

func openStore(cfg config.CheckpointConfig) (checkpoint.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return checkpoint.OpenFile(filepath.Join(cfg.Path, cfg.Name+".json"))
	default:
		return checkpoint.OpenPebble(cfg.Path, cfg.Name)
	}
}

func connectPolicy(cfg config.BrokerConfig) supervise.Policy {
	return supervise.Policy{Delay: cfg.ConnectDelay, MaxTries: cfg.ConnectMaxTries}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// status tracks whether the current session is connected and mirrors it
// into the gRPC health service.
type status struct {
	ready atomic.Bool
	hs    *health.Server
}

func (s *status) set(ok bool) {
	s.ready.Store(ok)
	s.hs.SetServing(ok)
}

// runService runs the supervised session next to the optional metrics and
// health endpoints and returns once all of them have stopped.
func runService(ctx context.Context, cfg config.Config, logger *slog.Logger, name string, reg *prometheus.Registry, session func(context.Context, *status) error) error {
	st := &status{hs: health.New("blockrelay." + name)}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return supervise.Run(ctx, connectPolicy(cfg.Broker), logger, name, func(ctx context.Context) error {
			defer st.set(false)
			return session(ctx, st)
		})
	})
	if cfg.Ops.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.Ops.MetricsAddr, reg, st.ready.Load, logger)
		})
	}
	if cfg.Ops.HealthAddr != "" {
		g.Go(func() error {
			return st.hs.Serve(ctx, cfg.Ops.HealthAddr, logger)
		})
	}
	return g.Wait()
}

func newLogger(cfg config.Config, component string) *slog.Logger {
	return logging.New(cfg.Ops.LogLevel, component, nil)
}
