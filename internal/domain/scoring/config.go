package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/validation"
)

const (
	minScore = 0.0
	maxScore = 100.0
)

// Range is a plausible [Min, Max] for a continuous feature.
type Range struct {
	Min float64 `json:"min" koanf:"min"`
	Max float64 `json:"max" koanf:"max" validate:"gtfield=Min"`
}

// Recency shapes the multiplier floor + (ceiling - floor) * e^(-days/decay).
type Recency struct {
	Floor     float64 `json:"floor" koanf:"floor" validate:"gt=0,lte=1"`
	Ceiling   float64 `json:"ceiling" koanf:"ceiling" validate:"gte=1"`
	DecayDays float64 `json:"decay_days" koanf:"decay_days" validate:"gt=0"`
}

// LabelBand assigns Label to scores >= Min, up to the next band's Min.
type LabelBand struct {
	Label model.Label `json:"label" koanf:"label" validate:"oneof=low medium high"`
	Min   float64     `json:"min" koanf:"min" validate:"gte=0,lte=100"`
}

// Config is the scoring configuration. Pass it by value; scorers copy what
// they keep so callers may reuse or mutate their copy afterwards.
type Config struct {
	// Weights is the maximum points per feature.
	Weights map[string]float64 `json:"weights" koanf:"weights"`
	// TierCaps bound the pre-recency points of each feature in a tier. A
	// reported contribution is those points times the recency multiplier, so
	// it stays within cap * Recency.Ceiling.
	TierCaps map[Tier]float64 `json:"tier_caps" koanf:"tier_caps"`
	// Scales are the saturation constants of count features.
	Scales  map[string]float64 `json:"scales" koanf:"scales"`
	Ranges  map[string]Range   `json:"ranges" koanf:"ranges"`
	Recency Recency            `json:"recency" koanf:"recency"`
	Labels  []LabelBand        `json:"labels" koanf:"labels" validate:"min=1,dive"`
	TopK    int                `json:"top_k" koanf:"top_k" validate:"gte=1"`
}

// DefaultConfig returns the default tiered configuration.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			FeatureSignups:           40,
			FeatureCalendarBookings:  40,
			FeatureDemoClicks:        15,
			FeaturePricingViews:      15,
			FeaturePageViews:         5,
			FeatureRepeatSessionRate: 5,
			FeatureAccountBalance:    5,
			FeatureBrowsingDepth:     5,
		},
		TierCaps: map[Tier]float64{
			TierHighIntent: 40,
			TierMidFunnel:  15,
			TierEngagement: 5,
		},
		Scales: map[string]float64{
			FeatureSignups:          0.5,
			FeatureCalendarBookings: 0.5,
			FeatureDemoClicks:       2,
			FeaturePricingViews:     3,
			FeaturePageViews:        10,
			FeatureBrowsingDepth:    5,
		},
		Ranges: map[string]Range{
			FeatureRepeatSessionRate: {Min: 0, Max: 1},
			FeatureAccountBalance:    {Min: 0, Max: 1000},
		},
		Recency: Recency{Floor: 0.8, Ceiling: 1.2, DecayDays: 14},
		Labels: []LabelBand{
			{Label: model.LabelLow, Min: 0},
			{Label: model.LabelMedium, Min: 40},
			{Label: model.LabelHigh, Min: 70},
		},
		TopK: 3,
	}
}

// Validate checks the configuration and returns a *model.ConfigError for the
// first problem found. Map keys are checked in sorted order.
func (c Config) Validate() error {
	if err := validation.Struct("scoring", c); err != nil {
		return err
	}
	for _, tier := range []Tier{TierHighIntent, TierMidFunnel, TierEngagement} {
		capPts, ok := c.TierCaps[tier]
		if !ok {
			return &model.ConfigError{Field: "scoring.tier_caps." + string(tier), Reason: "is required"}
		}
		if err := validation.Var("scoring.tier_caps."+string(tier), capPts, "gt=0"); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(c.TierCaps) {
		switch Tier(name) {
		case TierHighIntent, TierMidFunnel, TierEngagement:
		default:
			return &model.ConfigError{Field: "scoring.tier_caps." + name, Reason: "unknown tier"}
		}
	}
	for _, name := range sortedKeys(c.Weights) {
		def, ok := lookup(name)
		if !ok {
			return &model.ConfigError{Field: "scoring.weights." + name, Reason: "unknown feature"}
		}
		w := c.Weights[name]
		if err := validation.Var("scoring.weights."+name, w, "gte=0"); err != nil {
			return err
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return &model.ConfigError{Field: "scoring.weights." + name, Reason: "must be finite"}
		}
		if tierCap := c.TierCaps[def.Tier]; w > tierCap {
			return &model.ConfigError{
				Field:  "scoring.weights." + name,
				Reason: fmt.Sprintf("exceeds %s tier cap %g", def.Tier, tierCap),
			}
		}
	}
	for _, def := range definitions {
		if c.Weights[def.Name] == 0 {
			continue
		}
		switch def.Kind {
		case KindCount:
			if err := validation.Var("scoring.scales."+def.Name, c.Scales[def.Name], "gt=0"); err != nil {
				return err
			}
		case KindContinuous:
			r, ok := c.Ranges[def.Name]
			if !ok {
				return &model.ConfigError{Field: "scoring.ranges." + def.Name, Reason: "is required"}
			}
			if r.Max <= r.Min {
				return &model.ConfigError{Field: "scoring.ranges." + def.Name + ".max", Reason: "must be greater than min"}
			}
		}
	}
	return validateLabels(c.Labels)
}

// validateLabels requires low, medium, high in order with strictly increasing
// lower bounds starting at 0, so every score in [0,100] has exactly one label.
func validateLabels(bands []LabelBand) error {
	want := []model.Label{model.LabelLow, model.LabelMedium, model.LabelHigh}
	if len(bands) != len(want) {
		return &model.ConfigError{Field: "scoring.labels", Reason: fmt.Sprintf("must define exactly %d bands", len(want))}
	}
	for i, b := range bands {
		field := fmt.Sprintf("scoring.labels[%d]", i)
		if b.Label != want[i] {
			return &model.ConfigError{Field: field + ".label", Reason: fmt.Sprintf("expected %q", want[i])}
		}
		if i == 0 && b.Min != minScore {
			return &model.ConfigError{Field: field + ".min", Reason: "first band must start at 0"}
		}
		if i > 0 && b.Min <= bands[i-1].Min {
			return &model.ConfigError{Field: field + ".min", Reason: "thresholds must be strictly increasing"}
		}
		if b.Min > maxScore {
			return &model.ConfigError{Field: field + ".min", Reason: "must be <= 100"}
		}
	}
	return nil
}

// clone deep-copies c.
func (c Config) clone() Config {
	out := c
	out.Weights = copyMap(c.Weights)
	out.TierCaps = copyMap(c.TierCaps)
	out.Scales = copyMap(c.Scales)
	out.Ranges = copyMap(c.Ranges)
	out.Labels = append([]LabelBand(nil), c.Labels...)
	return out
}

// LabelFor returns the label of the band containing score.
func (c Config) LabelFor(score float64) model.Label {
	label := model.LabelLow
	if len(c.Labels) > 0 {
		label = c.Labels[0].Label
	}
	for _, b := range c.Labels {
		if score >= b.Min {
			label = b.Label
		}
	}
	return label
}

// Multiplier returns the recency multiplier for days of inactivity.
func (r Recency) Multiplier(days int) float64 {
	if days < 0 {
		days = 0
	}
	return r.Floor + (r.Ceiling-r.Floor)*math.Exp(-float64(days)/r.DecayDays)
}

// normalize maps a raw feature value into [0,1]. Non-finite values count as 0.
func (c Config) normalize(def Definition, raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	switch def.Kind {
	case KindCount:
		if raw <= 0 {
			return 0
		}
		return 1 - math.Exp(-raw/c.Scales[def.Name])
	default:
		r := c.Ranges[def.Name]
		return clamp((raw-r.Min)/(r.Max-r.Min), 0, 1)
	}
}

// clamp bounds v to [lo, hi]; NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
