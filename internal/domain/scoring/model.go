package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/intentrank/internal/domain/model"
)

// ModelParams are externally supplied linear model parameters over normalised
// features. Coefficients may be negative. Nothing here is fitted.
type ModelParams struct {
	Coefficients map[string]float64 `json:"coefficients" koanf:"coefficients"`
	Intercept    float64            `json:"intercept" koanf:"intercept"`
}

// DefaultModelParams returns coefficients that sum to one over the scored
// features, so a saturated user scores 100.
func DefaultModelParams() ModelParams {
	return ModelParams{
		Coefficients: map[string]float64{
			FeatureSignups:           0.30,
			FeatureCalendarBookings:  0.30,
			FeatureDemoClicks:        0.15,
			FeaturePricingViews:      0.08,
			FeaturePageViews:         0.05,
			FeatureRepeatSessionRate: 0.05,
			FeatureAccountBalance:    0.05,
			FeatureBrowsingDepth:     0.02,
		},
	}
}

// ModelScorer scores with a linear model. It shares normalisation and label
// thresholds with the rule configuration.
type ModelScorer struct {
	cfg    Config
	params ModelParams
}

// NewModelScorer validates cfg and params.
func NewModelScorer(cfg Config, params ModelParams) (*ModelScorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(params.Coefficients) {
		if _, ok := lookup(name); !ok && name != FeatureRecency {
			return nil, &model.ConfigError{Field: "model.coefficients." + name, Reason: "unknown feature"}
		}
		if c := params.Coefficients[name]; math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, &model.ConfigError{Field: "model.coefficients." + name, Reason: "must be finite"}
		}
	}
	if math.IsNaN(params.Intercept) || math.IsInf(params.Intercept, 0) {
		return nil, &model.ConfigError{Field: "model.intercept", Reason: "must be finite"}
	}
	// Every coefficient on a count or continuous feature needs its normaliser.
	for _, def := range definitions {
		if params.Coefficients[def.Name] == 0 {
			continue
		}
		if def.Kind == KindCount && cfg.Scales[def.Name] <= 0 {
			return nil, &model.ConfigError{Field: "scoring.scales." + def.Name, Reason: "must be > 0"}
		}
		if _, ok := cfg.Ranges[def.Name]; def.Kind == KindContinuous && !ok {
			return nil, &model.ConfigError{Field: "scoring.ranges." + def.Name, Reason: "is required"}
		}
	}
	return &ModelScorer{
		cfg:    cfg.clone(),
		params: ModelParams{Coefficients: copyMap(params.Coefficients), Intercept: params.Intercept},
	}, nil
}

// Name implements Scorer.
func (s *ModelScorer) Name() string { return NameModel }

// Score implements Scorer. Contributions are coefficient * normalised value *
// 100, with recency expressed as a feature instead of a multiplier.
func (s *ModelScorer) Score(ctx context.Context, f model.UserFeatures) (model.ScoredUser, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoredUser{}, fmt.Errorf("score %s: %w", f.UserID, err)
	}
	contribs := make(map[string]float64, len(definitions)+2)
	total := 0.0
	for _, def := range definitions {
		c := s.params.Coefficients[def.Name] * s.cfg.normalize(def, def.Extract(f)) * maxScore
		contribs[def.Name] = c
		total += c
	}
	if coef, ok := s.params.Coefficients[FeatureRecency]; ok {
		fresh := math.Exp(-float64(max(f.DaysSinceLastEvent, 0)) / s.cfg.Recency.DecayDays)
		c := coef * fresh * maxScore
		contribs[FeatureRecency] = c
		total += c
	}
	if s.params.Intercept != 0 {
		c := s.params.Intercept * maxScore
		contribs[FeatureIntercept] = c
		total += c
	}

	score := clamp(total, minScore, maxScore)
	return model.ScoredUser{
		UserFeatures:      f,
		Score:             score,
		Label:             s.cfg.LabelFor(score),
		Contributions:     contribs,
		UnclampedScore:    total,
		PreRecencyTotal:   total,
		RecencyMultiplier: 1,
		Scorer:            NameModel,
	}, nil
}

// New builds the scorer named by name.
func New(name string, cfg Config, params ModelParams) (Scorer, error) {
	switch name {
	case "", NameRules:
		return NewRuleScorer(cfg)
	case NameModel:
		return NewModelScorer(cfg, params)
	default:
		return nil, &model.ConfigError{Field: "scorer", Reason: fmt.Sprintf("unknown scorer %q", name)}
	}
}
