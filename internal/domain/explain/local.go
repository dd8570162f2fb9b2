// Package explain renders per-user and population-level score explanations.
package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/intentrank/internal/domain/model"
)

// DefaultTopK is the number of contributions kept in a local explanation.
const DefaultTopK = 3

// NoSignals is the summary used when nothing contributed.
const NoSignals = "No strong signals"

// Local returns the top k non-zero contributions ordered by absolute value
// descending, ties broken by feature name.
func Local(contribs map[string]float64, k int) []model.Contribution {
	if k <= 0 {
		k = DefaultTopK
	}
	out := make([]model.Contribution, 0, len(contribs))
	for name, v := range contribs {
		if v == 0 {
			continue
		}
		out = append(out, model.Contribution{Feature: name, Points: v, Direction: direction(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Points), math.Abs(out[j].Points)
		if ai != aj {
			return ai > aj
		}
		return out[i].Feature < out[j].Feature
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func direction(v float64) model.Direction {
	switch {
	case v > 0:
		return model.DirectionUp
	case v < 0:
		return model.DirectionDown
	default:
		return model.DirectionNeutral
	}
}

// Render formats one contribution, e.g. "signups (+41.5 pts)".
func Render(c model.Contribution) string {
	return fmt.Sprintf("%s (%+.1f pts)", c.Feature, c.Points)
}

// Lines renders each contribution.
func Lines(cs []model.Contribution) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = Render(c)
	}
	return out
}

// Summary joins rendered contributions with " + ".
func Summary(cs []model.Contribution) string {
	if len(cs) == 0 {
		return NoSignals
	}
	return strings.Join(Lines(cs), " + ")
}

// Annotate fills the Explanation of u from its contributions.
func Annotate(u *model.ScoredUser, k int) {
	u.Explanation = Lines(Local(u.Contributions, k))
}
