package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/okian/intentrank/internal/adapters/ingest"
	"github.com/okian/intentrank/internal/pipeline"
	"github.com/okian/intentrank/pkg/logger"
)

// Files written by the pipeline command.
const (
	featuresFile = "user_features.csv"
	scoredFile   = "scored_users.csv"
	rankedFile   = "top_users.csv"
	reportFile   = "explain.yaml"
)

func newPipelineCmd(c *cli) *cobra.Command {
	var (
		input, outDir string
		n, topK       int
	)
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run featurize, score, rank and explain in one pass",
		Long: `Run every stage over an events file and write each stage's output to
the output directory: ` + featuresFile + `, ` + scoredFile + `, ` + rankedFile + ` and ` + reportFile + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sc, err := c.newScorer()
			if err != nil {
				return err
			}
			events, loaded, err := ingest.ReadEventsFile(input)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("n") {
				n = c.cfg.TopN
			}
			res, err := c.pipeline().Run(ctx, events, loaded, pipeline.RunConfig{
				Sessions: c.cfg.Sessions(),
				Scorer:   sc,
				TopK:     c.topK(topK),
				TopN:     n,
			})
			if err != nil {
				return err
			}

			if err := ingest.WriteFile(filepath.Join(outDir, featuresFile), res.Features, ingest.WriteFeatures); err != nil {
				return err
			}
			if err := ingest.WriteFile(filepath.Join(outDir, scoredFile), res.Ranked, ingest.WriteScored); err != nil {
				return err
			}
			if err := ingest.WriteFile(filepath.Join(outDir, rankedFile), res.Top, ingest.WriteRanked); err != nil {
				return err
			}
			path := filepath.Join(outDir, reportFile)
			fh, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			defer fh.Close()
			if err := encode(fh, "yaml", res.Global); err != nil {
				return err
			}

			c.log.Info(ctx, "pipeline outputs written",
				logger.String("dir", outDir),
				logger.Int("users", len(res.Ranked)),
				logger.Int("top", len(res.Top)),
				logger.Int("skipped", res.Diagnostics.Skipped),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "data/raw_events.csv", "Events file to read")
	cmd.Flags().StringVar(&outDir, "output", "data", "Directory for stage outputs")
	cmd.Flags().IntVar(&n, "n", 0, "Number of users in the ranked shortlist (defaults to config top_n)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Contributions per explanation (defaults to config)")
	return cmd
}
