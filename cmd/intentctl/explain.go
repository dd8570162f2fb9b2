package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/intentrank/internal/adapters/ingest"
	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/ranking"
	"github.com/okian/intentrank/internal/domain/types"
)

var errUserNotFound = errors.New("user not found")

func newExplainCmd(c *cli) *cobra.Command {
	var (
		input, output, userID, format string
		topK                          int
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Report why users scored as they did",
		Long: `Report the population-level explanation of a scored file, or with
--user-id the rank and top contributions of one user.

Examples:
  intentctl explain --input data/scored_users.csv
  intentctl explain --user-id u0042 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "yaml" && format != "json" {
				return fmt.Errorf("--format must be yaml or json, got %q", format)
			}
			scored, diag, err := ingest.ReadFile(input, ingest.ReadScored)
			if err != nil {
				return err
			}
			logDiagnostics(cmd.Context(), c.log, diag)

			k := c.topK(topK)
			var report any
			if userID != "" {
				d, err := userDetail(scored, userID, k)
				if err != nil {
					return err
				}
				report = d
			} else {
				report = explain.NewGlobal(ranking.Sort(scored), k)
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				fh, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer fh.Close()
				w = fh
			}
			return encode(w, format, report)
		},
	}
	cmd.Flags().StringVar(&input, "input", "data/scored_users.csv", "Scored file to read")
	cmd.Flags().StringVar(&output, "output", "-", "Report file to write, - for stdout")
	cmd.Flags().StringVar(&userID, "user-id", "", "Explain a single user")
	cmd.Flags().StringVar(&format, "format", "yaml", "Report format: yaml|json")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Contributions per explanation (defaults to config)")
	return cmd
}

// userDetail ranks scored and returns id's row with its top k contributions.
func userDetail(scored []model.ScoredUser, id string, k int) (types.UserDetail, error) {
	ranked := ranking.Sort(scored)
	for i, u := range ranked {
		if u.UserID != id {
			continue
		}
		top := explain.Local(u.Contributions, k)
		u.Explanation = explain.Lines(top)
		return types.UserDetail{Rank: i + 1, User: u, Top: top, Total: len(ranked)}, nil
	}
	return types.UserDetail{}, fmt.Errorf("%q: %w", id, errUserNotFound)
}

func encode(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
