package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"blockrelay/infra/blockfile"
	"blockrelay/infra/checkpoint"
	"blockrelay/infra/config"
)

var errCorrupt = errors.New("block directory has malformed records")

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Scan every block file and report valid records and trailing bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, config.RoleTool)
			if err != nil {
				return err
			}
			files, err := blockfile.ListFiles(cfg.Store.BlockDir)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tRECORDS\tVALID BYTES\tTAIL\tERROR")
			bad := false
			for _, i := range files {
				res, err := blockfile.Scan(blockfile.FilePath(cfg.Store.BlockDir, i))
				if err != nil {
					return err
				}
				msg := "-"
				if res.Err != nil {
					msg = res.Err.Error()
					bad = true
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", blockfile.FileName(i), res.Records, res.ValidBytes, res.Tail, msg)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if bad {
				return errCorrupt
			}
			return nil
		},
	}
}

func newCheckpointCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or move the relay checkpoint",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the persisted position",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd, config.RoleTool)
				if err != nil {
					return err
				}
				store, err := openStore(cfg.Checkpoint)
				if err != nil {
					return err
				}
				defer store.Close()
				pos, ok, err := store.Load()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no checkpoint")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", blockfile.FileName(pos.File), pos.Offset)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set FILE OFFSET",
			Short: "Overwrite the persisted position; the relay must be stopped",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd, config.RoleTool)
				if err != nil {
					return err
				}
				file, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("file index: %w", err)
				}
				off, err := strconv.ParseUint(args[1], 10, 32)
				if err != nil {
					return fmt.Errorf("offset: %w", err)
				}
				store, err := openStore(cfg.Checkpoint)
				if err != nil {
					return err
				}
				defer store.Close()
				pos := checkpoint.Position{File: uint32(file), Offset: uint32(off)}
				if err := store.Save(pos); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checkpoint set to %s\n", pos)
				return nil
			},
		},
	)
	return cmd
}
