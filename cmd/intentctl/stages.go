package main

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/okian/intentrank/internal/adapters/ingest"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/pkg/logger"
)

func newFeaturizeCmd(c *cli) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "featurize",
		Short: "Aggregate events into one feature row per user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			events, diag, err := ingest.ReadEventsFile(input)
			if err != nil {
				return err
			}
			fs, built, err := c.pipeline().BuildUserFeatures(ctx, events, c.cfg.Sessions(), diag.UserIDs()...)
			if err != nil {
				return err
			}
			diag.Then(built)
			logDiagnostics(ctx, c.log, diag)
			if err := ingest.WriteFile(output, fs, ingest.WriteFeatures); err != nil {
				return err
			}
			c.log.Info(ctx, "features written", logger.Int("users", len(fs)), logger.String("output", output))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "data/raw_events.csv", "Events file to read")
	cmd.Flags().StringVar(&output, "output", "data/user_features.csv", "Features file to write")
	return cmd
}

func newScoreCmd(c *cli) *cobra.Command {
	var (
		input, output string
		topK          int
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score feature rows and attach explanations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sc, err := c.newScorer()
			if err != nil {
				return err
			}
			fs, diag, err := ingest.ReadFile(input, ingest.ReadFeatures)
			if err != nil {
				return err
			}
			logDiagnostics(ctx, c.log, diag)
			scored, err := c.pipeline().ScoreUsers(ctx, fs, sc, c.topK(topK))
			if err != nil {
				return err
			}
			if err := ingest.WriteFile(output, scored, ingest.WriteScored); err != nil {
				return err
			}
			c.log.Info(ctx, "scores written",
				logger.Int("users", len(scored)),
				logger.String("scorer", sc.Name()),
				logger.String("output", output),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "data/user_features.csv", "Features file to read")
	cmd.Flags().StringVar(&output, "output", "data/scored_users.csv", "Scored file to write")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Contributions kept per explanation (defaults to config)")
	return cmd
}

func newRankCmd(c *cli) *cobra.Command {
	var (
		input, output string
		n             int
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Write the top N scored users in rank order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			scored, diag, err := ingest.ReadFile(input, ingest.ReadScored)
			if err != nil {
				return err
			}
			logDiagnostics(ctx, c.log, diag)
			if !cmd.Flags().Changed("n") {
				n = c.cfg.TopN
			}
			top := c.pipeline().RankUsers(ctx, scored, n)
			if err := ingest.WriteFile(output, top, ingest.WriteRanked); err != nil {
				return err
			}
			c.log.Info(ctx, "ranking written", logger.Int("rows", len(top)), logger.String("output", output))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "data/scored_users.csv", "Scored file to read")
	cmd.Flags().StringVar(&output, "output", "data/top_users.csv", "Ranked file to write")
	cmd.Flags().IntVar(&n, "n", 0, "Number of users to keep (defaults to config top_n)")
	return cmd
}

// logDiagnostics logs one warning per skip reason.
func logDiagnostics(ctx context.Context, log logger.Logger, d *model.Diagnostics) {
	if d == nil || d.Skipped == 0 {
		return
	}
	reasons := make([]string, 0, len(d.ByReason))
	for r := range d.ByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		log.Warn(ctx, "records skipped",
			logger.String("reason", r),
			logger.Int("count", d.ByReason[model.WarningReason(r)]),
		)
	}
}
