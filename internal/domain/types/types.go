// Package types contains row shapes shared by the API, CLI and store.
package types

import (
	"strings"

	"github.com/okian/intentrank/internal/domain/model"
)

// Entry is one rank-indexed leaderboard row.
type Entry struct {
	Rank               int         `json:"rank" yaml:"rank"`
	UserID             string      `json:"user_id" yaml:"user_id"`
	Score              float64     `json:"score" yaml:"score"`
	Label              model.Label `json:"score_label" yaml:"score_label"`
	DaysSinceLastEvent int         `json:"days_since_last_event" yaml:"days_since_last_event"`
	Converted          int         `json:"converted" yaml:"converted"`
	Explanation        string      `json:"explanation" yaml:"explanation"`
}

// FromScored builds a row for u at rank.
func FromScored(rank int, u model.ScoredUser) Entry {
	return Entry{
		Rank:               rank,
		UserID:             u.UserID,
		Score:              u.Score,
		Label:              u.Label,
		DaysSinceLastEvent: u.DaysSinceLastEvent,
		Converted:          u.Converted,
		Explanation:        joinExplanation(u.Explanation),
	}
}

// UserDetail is a scored user with its rank and local explanation.
type UserDetail struct {
	Rank  int                  `json:"rank" yaml:"rank"`
	User  model.ScoredUser     `json:"user" yaml:"user"`
	Top   []model.Contribution `json:"top_contributions" yaml:"top_contributions"`
	Total int                  `json:"total_users" yaml:"total_users"`
}

// Summary is the headline view of a run.
type Summary struct {
	RunID          string              `json:"run_id" yaml:"run_id"`
	Scorer         string              `json:"scorer" yaml:"scorer"`
	TotalUsers     int                 `json:"total_users" yaml:"total_users"`
	Converted      int                 `json:"converted" yaml:"converted"`
	ConversionRate float64             `json:"conversion_rate" yaml:"conversion_rate"`
	AverageScore   float64             `json:"average_score" yaml:"average_score"`
	Labels         map[model.Label]int `json:"label_counts" yaml:"label_counts"`
	Skipped        int                 `json:"skipped_records" yaml:"skipped_records"`
}

func joinExplanation(lines []string) string {
	if len(lines) == 0 {
		return "No strong signals"
	}
	return strings.Join(lines, " + ")
}
