package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/intentrank/internal/adapters/ingest"
	"github.com/okian/intentrank/internal/generator"
	"github.com/okian/intentrank/pkg/logger"
)

func newGenerateCmd(c *cli) *cobra.Command {
	var (
		output string
		users  int
		seed   int64
		now    string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic events file",
		Long: `Write a deterministic synthetic events file. The same seed and anchor
time always produce the same events.

Examples:
  intentctl generate --users 500 --seed 7 --output data/raw_events.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			anchor := time.Now()
			if now != "" {
				t, err := ingest.ParseTimestamp(now)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				anchor = t
			}
			cfg := generator.DefaultConfig(anchor)
			cfg.Users = users
			cfg.Seed = seed

			events, err := generator.Generate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := ingest.WriteFile(output, events, ingest.WriteEvents); err != nil {
				return err
			}
			c.log.Info(cmd.Context(), "events generated",
				logger.Int("users", users),
				logger.Int("events", len(events)),
				logger.String("output", output),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "data/raw_events.csv", "Events file to write")
	cmd.Flags().IntVar(&users, "users", generator.DefaultUsers, "Number of users")
	cmd.Flags().Int64Var(&seed, "seed", generator.DefaultSeed, "Random seed")
	cmd.Flags().StringVar(&now, "now", "", "Anchor time for the batch (defaults to the current time)")
	return cmd
}
