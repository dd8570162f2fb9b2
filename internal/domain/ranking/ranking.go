// Package ranking orders scored users deterministically.
package ranking

import (
	"sort"

	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/types"
)

// Less reports whether a ranks before b: higher score first, then more recent
// activity, then user id ascending.
func Less(a, b model.ScoredUser) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DaysSinceLastEvent != b.DaysSinceLastEvent {
		return a.DaysSinceLastEvent < b.DaysSinceLastEvent
	}
	return a.UserID < b.UserID
}

// Sort returns a sorted copy of users.
func Sort(users []model.ScoredUser) []model.ScoredUser {
	out := make([]model.ScoredUser, len(users))
	copy(out, users)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Top returns the first n users in rank order. n <= 0 yields an empty result
// and n beyond the population yields everyone.
func Top(users []model.ScoredUser, n int) []model.ScoredUser {
	if n <= 0 {
		return []model.ScoredUser{}
	}
	sorted := Sort(users)
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Entries converts ranked users into rank-indexed rows starting at 1.
func Entries(ranked []model.ScoredUser) []types.Entry {
	out := make([]types.Entry, len(ranked))
	for i, u := range ranked {
		out[i] = types.FromScored(i+1, u)
	}
	return out
}
