// Command intentctl runs the intent scoring pipeline over files, one stage at
// a time or end to end.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/intentrank/internal/config"
	"github.com/okian/intentrank/internal/domain/scoring"
	"github.com/okian/intentrank/internal/pipeline"
	"github.com/okian/intentrank/pkg/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand once flags are parsed.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	scorer     string

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "intentctl",
		Short: "Score user purchase intent from interaction events",
		Long: `intentctl turns raw interaction events into per-user intent scores,
explanations and a ranked shortlist.

Stages can run one at a time, each reading the previous stage's file:
  generate -> featurize -> score -> rank -> explain
or all together with the pipeline command.

Files ending in .csv are read and written as CSV, .jsonl or .ndjson as JSON lines.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (defaults to $"+config.EnvConfigFile+")")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Logging level: debug|info|warn|error (defaults to config)")
	cmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "console", "Logging format: console|json")
	cmd.PersistentFlags().StringVar(&c.scorer, "scorer", "", "Scoring strategy: rules|model (defaults to config)")

	cmd.AddCommand(
		newGenerateCmd(c),
		newFeaturizeCmd(c),
		newScoreCmd(c),
		newRankCmd(c),
		newExplainCmd(c),
		newPipelineCmd(c),
	)
	return cmd
}

// setup loads .env, configuration and logging before any subcommand runs.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	path := c.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigFile)
	}
	cfg, err := config.LoadFile(cmd.Context(), path)
	if err != nil {
		return err
	}
	if c.scorer != "" {
		cfg.Scorer = c.scorer
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	c.cfg = cfg

	if err := logger.Init(c.logFormat); err != nil {
		return err
	}
	level := c.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logger.SetLevelString(level); err != nil {
		return err
	}
	c.log = logger.Get().Named("intentctl")
	return nil
}

func (c *cli) pipeline() *pipeline.Pipeline {
	return pipeline.New(
		pipeline.WithWorkers(c.cfg.WorkerCount),
		pipeline.WithQueueSize(c.cfg.QueueSize),
		pipeline.WithLogger(c.log.Named("pipeline")),
	)
}

func (c *cli) newScorer() (scoring.Scorer, error) {
	return c.cfg.NewScorer()
}

// topK returns the flag value when set, else the configured default.
func (c *cli) topK(flag int) int {
	if flag > 0 {
		return flag
	}
	return c.cfg.Scoring.TopK
}
