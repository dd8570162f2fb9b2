// Package scoring turns a UserFeatures record into a bounded score, a label
// and a per-feature contribution breakdown.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/intentrank/internal/domain/model"
)

// Scorer names.
const (
	NameRules = "rules"
	NameModel = "model"
)

// Scorer computes a score for one user. Implementations are stateless per
// call and safe for concurrent use.
type Scorer interface {
	// Name identifies the scorer in ScoredUser.Scorer.
	Name() string
	// Score scores f, honoring ctx for cancellation.
	Score(ctx context.Context, f model.UserFeatures) (model.ScoredUser, error)
}

// RuleScorer implements the tiered rule scoring.
type RuleScorer struct {
	cfg Config
}

// NewRuleScorer validates cfg and returns a scorer holding a private copy.
func NewRuleScorer(cfg Config) (*RuleScorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RuleScorer{cfg: cfg.clone()}, nil
}

// Name implements Scorer.
func (s *RuleScorer) Name() string { return NameRules }

// Config returns a copy of the scorer's configuration.
func (s *RuleScorer) Config() Config { return s.cfg.clone() }

// Score implements Scorer.
//
// Each feature contributes weight * normalize(value). The pre-recency total is
// scaled by the recency multiplier, and so is every contribution, so the
// contributions sum to the unclamped score.
func (s *RuleScorer) Score(ctx context.Context, f model.UserFeatures) (model.ScoredUser, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoredUser{}, fmt.Errorf("score %s: %w", f.UserID, err)
	}
	mult := s.cfg.Recency.Multiplier(f.DaysSinceLastEvent)
	contribs := make(map[string]float64, len(definitions))
	var pre, total float64
	for _, def := range definitions {
		w := s.cfg.Weights[def.Name]
		pts := 0.0
		if w > 0 {
			pts = w * s.cfg.normalize(def, def.Extract(f))
		}
		pre += pts
		c := pts * mult
		contribs[def.Name] = c
		total += c
	}
	return s.finish(f, contribs, pre, mult, total), nil
}

func (s *RuleScorer) finish(f model.UserFeatures, contribs map[string]float64, pre, mult, total float64) model.ScoredUser {
	score := clamp(total, minScore, maxScore)
	return model.ScoredUser{
		UserFeatures:      f,
		Score:             score,
		Label:             s.cfg.LabelFor(score),
		Contributions:     contribs,
		UnclampedScore:    total,
		PreRecencyTotal:   pre,
		RecencyMultiplier: mult,
		Scorer:            NameRules,
	}
}

// Label returns the label for score under the scorer's thresholds.
func (s *RuleScorer) Label(score float64) model.Label { return s.cfg.LabelFor(score) }
