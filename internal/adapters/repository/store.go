// Package repository holds the published results of the latest pipeline run.
package repository

import (
	"context"
	"time"

	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/types"
)

// Snapshot is the immutable result of one run.
type Snapshot struct {
	RunID       string
	Scorer      string
	PublishedAt time.Time
	// Reference is the batch reference timestamp.
	Reference time.Time
	// Ranked holds every scored user in rank order.
	Ranked      []model.ScoredUser
	Global      explain.Global
	Diagnostics model.Diagnostics
	// TopK bounds the contributions in a user detail.
	TopK int

	index map[string]int
}

// Store serves read access to the latest snapshot. Publish replaces it
// atomically; readers never observe a partially published run.
type Store interface {
	// Publish makes s the current snapshot.
	Publish(ctx context.Context, s *Snapshot) error

	// TopN returns the first n ranked rows. Returns ErrInvalidLimit if n < 1.
	TopN(ctx context.Context, n int) ([]types.Entry, error)

	// User returns one user's scored row with rank and local explanation.
	// Returns ErrNotFound if the user is unknown.
	User(ctx context.Context, userID string) (types.UserDetail, error)

	// Summary returns the headline view of the current run.
	Summary(ctx context.Context) (types.Summary, error)

	// Global returns the population-level explanation.
	Global(ctx context.Context) (explain.Global, error)

	// Diagnostics returns the run's record diagnostics.
	Diagnostics(ctx context.Context) (model.Diagnostics, error)

	// Count returns the number of ranked users, 0 before the first publish.
	Count(ctx context.Context) int
}
