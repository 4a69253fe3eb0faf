package main

import (
	"fmt"
	"log/slog"

	"github.com/johnwmail/clipsync/config"
	"github.com/johnwmail/clipsync/internal/sweeper"
	"github.com/johnwmail/clipsync/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	sweepCommand.Flags().Int("sweep-cap", config.DefaultConfig().BackendSweepCap, "maximum clips deleted per user")
	Command.AddCommand(sweepCommand)
}

var sweepCommand = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired clips of every user once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := agentConfig()
		if err != nil {
			return err
		}
		store, err := storage.NewClipStore(cfg, slog.Default())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		sum := sweeper.NewBackend(store, viper.GetInt("sweep-cap"), slog.Default()).RunOnce(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "partitions=%d deleted=%d failed=%d\n", sum.Partitions, sum.Deleted, sum.Failed)
		return sum.Err
	},
}
