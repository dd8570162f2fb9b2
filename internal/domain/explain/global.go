package explain

import (
	"math"
	"sort"

	"github.com/okian/intentrank/internal/domain/model"
)

// FeatureStat summarises one feature's contribution across a population.
type FeatureStat struct {
	Feature     string  `json:"feature" yaml:"feature"`
	Mean        float64 `json:"mean" yaml:"mean"`
	Variance    float64 `json:"variance" yaml:"variance"`
	TotalPoints float64 `json:"total_points" yaml:"total_points"`
	// TopKCount is how many local explanations list the feature.
	TopKCount int `json:"top_k_count" yaml:"top_k_count"`
	// Correlation is Pearson's r between contribution and converted; 0 when
	// either side has no variance.
	Correlation float64 `json:"correlation_with_converted" yaml:"correlation_with_converted"`
	// CoOccurrence is the share of users with a positive contribution who converted.
	CoOccurrence float64 `json:"co_occurrence_with_converted" yaml:"co_occurrence_with_converted"`
}

// Distribution summarises scores.
type Distribution struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	Std    float64 `json:"std" yaml:"std"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// Bin is one histogram bucket.
type Bin struct {
	Range string `json:"range" yaml:"range"`
	Count int    `json:"count" yaml:"count"`
}

// Global is the population-level diagnostic report.
type Global struct {
	Users          int                 `json:"users" yaml:"users"`
	TopK           int                 `json:"top_k" yaml:"top_k"`
	Converted      int                 `json:"converted" yaml:"converted"`
	ConversionRate float64             `json:"conversion_rate" yaml:"conversion_rate"`
	MostFrequent   string              `json:"most_frequent_top_feature" yaml:"most_frequent_top_feature"`
	Features       []FeatureStat       `json:"features" yaml:"features"`
	Scores         Distribution        `json:"score_distribution" yaml:"score_distribution"`
	Histogram      []Bin               `json:"histogram" yaml:"histogram"`
	Labels         map[model.Label]int `json:"label_counts" yaml:"label_counts"`
}

var binUpper = []struct {
	label string
	upper float64
}{
	{"0-20", 20}, {"21-40", 40}, {"41-60", 60}, {"61-80", 80}, {"81-100", math.Inf(1)},
}

// NewGlobal computes the population report. users is iterated in order, so
// callers that need bit-identical output should pass a stable order.
func NewGlobal(users []model.ScoredUser, k int) Global {
	if k <= 0 {
		k = DefaultTopK
	}
	g := Global{
		Users:  len(users),
		TopK:   k,
		Labels: map[model.Label]int{model.LabelLow: 0, model.LabelMedium: 0, model.LabelHigh: 0},
	}
	g.Histogram = Histogram(users)
	if len(users) == 0 {
		g.Features = []FeatureStat{}
		return g
	}

	names := featureNames(users)
	n := float64(len(users))
	converted := make([]float64, len(users))
	scores := make([]float64, len(users))
	for i, u := range users {
		converted[i] = float64(u.Converted)
		scores[i] = u.Score
		g.Converted += u.Converted
		g.Labels[u.Label]++
	}
	g.ConversionRate = float64(g.Converted) / n
	g.Scores = describe(scores)

	topCounts := make(map[string]int, len(names))
	for _, u := range users {
		for _, c := range Local(u.Contributions, k) {
			topCounts[c.Feature]++
		}
	}

	values := make([]float64, len(users))
	for _, name := range names {
		st := FeatureStat{Feature: name, TopKCount: topCounts[name]}
		positive, positiveConverted := 0, 0
		for i, u := range users {
			v := u.Contributions[name]
			values[i] = v
			st.TotalPoints += v
			if v > 0 {
				positive++
				positiveConverted += u.Converted
			}
		}
		st.Mean = st.TotalPoints / n
		st.Variance = variance(values, st.Mean)
		st.Correlation = pearson(values, converted)
		if positive > 0 {
			st.CoOccurrence = float64(positiveConverted) / float64(positive)
		}
		g.Features = append(g.Features, st)
	}

	best := 0
	for _, name := range names {
		if c := topCounts[name]; c > best {
			g.MostFrequent, best = name, c
		}
	}
	return g
}

// Histogram buckets scores into 0-20, 21-40, 41-60, 61-80 and 81-100.
// Bucket upper bounds are inclusive.
func Histogram(users []model.ScoredUser) []Bin {
	bins := make([]Bin, len(binUpper))
	for i, b := range binUpper {
		bins[i].Range = b.label
	}
	for _, u := range users {
		for i, b := range binUpper {
			if u.Score <= b.upper {
				bins[i].Count++
				break
			}
		}
	}
	return bins
}

// featureNames returns the union of contribution keys, sorted.
func featureNames(users []model.ScoredUser) []string {
	set := make(map[string]struct{})
	for _, u := range users {
		for name := range u.Contributions {
			set[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func describe(xs []float64) Distribution {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	d := Distribution{Min: sorted[0], Max: sorted[len(sorted)-1]}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	d.Mean = total / float64(len(xs))
	d.Std = math.Sqrt(variance(xs, d.Mean))
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		d.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		d.Median = sorted[mid]
	}
	return d
}

// variance is the population variance.
func variance(xs []float64, mean float64) float64 {
	acc := 0.0
	for _, x := range xs {
		d := x - mean
		acc += d * d
	}
	return acc / float64(len(xs))
}

func pearson(xs, ys []float64) float64 {
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	n := float64(len(xs))
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}
