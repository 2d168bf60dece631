package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"blockrelay/infra/blockfile"
	"blockrelay/infra/config"
	"blockrelay/infra/metrics"
	"blockrelay/infra/supervise"
	"blockrelay/infra/transport"
	"blockrelay/infra/transport/kafkago"
	"blockrelay/jobs/reconstruct"
)

func newWriteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "write",
		Short: "Consume relayed records and write them back at their origin offsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, config.RoleWriter)
			if err != nil {
				return err
			}
			return runWriter(cmd.Context(), cfg)
		},
	}
}

func runWriter(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg, "writer")

	var opts []blockfile.WriterOption
	if cfg.Writer.NoSync {
		opts = append(opts, blockfile.WithoutSync())
	}
	w, err := blockfile.NewWriter(cfg.Store.BlockDir, logger, opts...)
	if err != nil {
		return fmt.Errorf("open block dir: %w", err)
	}

	reg := newRegistry()
	m := metrics.NewWriter(reg)
	b := cfg.Broker

	logger.Info("writer starting", "block_dir", cfg.Store.BlockDir, "topic", b.Topic(), "group", b.Group())

	return runService(ctx, cfg, logger, "writer", reg, func(ctx context.Context, st *status) error {
		sub, err := supervise.Connect(ctx, connectPolicy(b), logger, "broker", func(context.Context) (transport.Subscriber, error) {
			return kafkago.NewSubscriber(kafkago.Config{
				Brokers:     b.Hosts,
				User:        b.User,
				Password:    b.Password,
				Topic:       b.Topic(),
				PollTimeout: b.PollTimeout,
				MaxBytes:    b.MaxMessageBytes,
			}), nil
		})
		if err != nil {
			return err
		}
		defer sub.Close()

		r := reconstruct.New(reconstruct.Config{Queue: b.Group(), PollDelay: cfg.Writer.PollDelay}, sub, w, logger, m)
		st.set(true)
		return r.Run(ctx)
	})
}
