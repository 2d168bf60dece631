package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"blockrelay/infra/blockfile"
	"blockrelay/infra/checkpoint"
	"blockrelay/infra/config"
	"blockrelay/infra/metrics"
	"blockrelay/infra/ratelimit"
	"blockrelay/infra/supervise"
	"blockrelay/infra/transport"
	"blockrelay/infra/transport/kafkago"
	"blockrelay/infra/transport/saramapub"
	"blockrelay/jobs/relay"
)

func newRelayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Tail the block directory and publish every record to the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, config.RoleRelay)
			if err != nil {
				return err
			}
			return runRelay(cmd.Context(), cfg)
		},
	}
}

func dialPublisher(cfg config.Config) func(context.Context) (transport.Publisher, error) {
	b := cfg.Broker
	return func(context.Context) (transport.Publisher, error) {
		if cfg.TransportFor(config.RoleRelay) == config.TransportKafkaGo {
			return kafkago.NewPublisher(kafkago.Config{
				Brokers:  b.Hosts,
				User:     b.User,
				Password: b.Password,
				MaxBytes: b.MaxMessageBytes,
			}), nil
		}
		p, err := saramapub.New(saramapub.Config{
			Brokers:         b.Hosts,
			ClientID:        "blockrelay",
			User:            b.User,
			Password:        b.Password,
			MaxMessageBytes: b.MaxMessageBytes,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func runRelay(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg, "relay")
	store, err := openStore(cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer store.Close()

	reg := newRegistry()
	m := metrics.NewRelay(reg)
	start := checkpoint.Position{File: cfg.Store.StartFile, Offset: cfg.Store.StartByte}

	logger.Info("relay starting",
		"block_dir", cfg.Store.BlockDir,
		"transport", cfg.TransportFor(config.RoleRelay),
		"topic", cfg.Broker.Topic(),
		"bytes_per_second", cfg.Rate.BytesPerSecond,
		"records_per_second", cfg.Rate.RecordsPerSecond,
	)

	return runService(ctx, cfg, logger, "relay", reg, func(ctx context.Context, st *status) error {
		pub, err := supervise.Connect(ctx, connectPolicy(cfg.Broker), logger, "broker", dialPublisher(cfg))
		if err != nil {
			return err
		}
		defer pub.Close()

		// Every session resumes from the last persisted position, so records
		// published after it are sent again.
		pos, err := checkpoint.Resume(store, start)
		if err != nil {
			return err
		}
		logger.Info("resuming", "position", pos.String())

		limiter := ratelimit.New(ratelimit.Config{
			BytesPerSecond:   cfg.Rate.BytesPerSecond,
			RecordsPerSecond: cfg.Rate.RecordsPerSecond,
			Interval:         cfg.Rate.Interval,
		})
		limiter.OnThrottle = m.Throttled

		r := relay.New(relay.Config{
			Exchange:   cfg.Broker.Topic(),
			RoutingKey: cfg.Broker.RoutingKey,
			RetryDelay: cfg.Relay.RetryDelay,
		},
			blockfile.Open(cfg.Store.BlockDir, pos, logger),
			limiter,
			pub,
			checkpoint.NewTracker(store, pos, cfg.Checkpoint.FlushEvery),
			logger,
			m,
		)
		st.set(true)
		return r.Run(ctx)
	})
}
