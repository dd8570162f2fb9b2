package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/ranking"
	"github.com/okian/intentrank/internal/domain/types"
	"github.com/okian/intentrank/pkg/metrics"
)

// MemoryStore implements Store with a copy-on-publish snapshot.
type MemoryStore struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish implements Store. The snapshot is copied, so later changes by the
// caller are not visible to readers.
func (s *MemoryStore) Publish(_ context.Context, snap *Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}
	cp := *snap
	cp.Ranked = append([]model.ScoredUser(nil), snap.Ranked...)
	cp.index = make(map[string]int, len(cp.Ranked))
	for i, u := range cp.Ranked {
		if _, dup := cp.index[u.UserID]; dup {
			return fmt.Errorf("publish: duplicate user %q", u.UserID)
		}
		cp.index[u.UserID] = i
	}
	if cp.PublishedAt.IsZero() {
		cp.PublishedAt = s.now()
	}
	if cp.TopK < 1 {
		cp.TopK = explain.DefaultTopK
	}
	s.current.Store(&cp)
	metrics.RecordSnapshotPublished(len(cp.Ranked), float64(cp.PublishedAt.Unix()))
	return nil
}

func (s *MemoryStore) snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Current returns the current snapshot. Callers must not modify it.
func (s *MemoryStore) Current() (*Snapshot, error) { return s.snapshot() }

// TopN implements Store.
func (s *MemoryStore) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return ranking.Entries(snap.Ranked[:min(n, len(snap.Ranked))]), nil
}

// User implements Store.
func (s *MemoryStore) User(_ context.Context, userID string) (types.UserDetail, error) {
	snap, err := s.snapshot()
	if err != nil {
		return types.UserDetail{}, err
	}
	i, ok := snap.index[userID]
	if !ok {
		return types.UserDetail{}, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	u := snap.Ranked[i]
	return types.UserDetail{
		Rank:  i + 1,
		User:  u,
		Top:   explain.Local(u.Contributions, snap.TopK),
		Total: len(snap.Ranked),
	}, nil
}

// Summary implements Store.
func (s *MemoryStore) Summary(_ context.Context) (types.Summary, error) {
	snap, err := s.snapshot()
	if err != nil {
		return types.Summary{}, err
	}
	labels := make(map[model.Label]int, len(snap.Global.Labels))
	for l, n := range snap.Global.Labels {
		labels[l] = n
	}
	return types.Summary{
		RunID:          snap.RunID,
		Scorer:         snap.Scorer,
		TotalUsers:     len(snap.Ranked),
		Converted:      snap.Global.Converted,
		ConversionRate: snap.Global.ConversionRate,
		AverageScore:   snap.Global.Scores.Mean,
		Labels:         labels,
		Skipped:        snap.Diagnostics.Skipped,
	}, nil
}

// Global implements Store.
func (s *MemoryStore) Global(_ context.Context) (explain.Global, error) {
	snap, err := s.snapshot()
	if err != nil {
		return explain.Global{}, err
	}
	return snap.Global, nil
}

// Diagnostics implements Store.
func (s *MemoryStore) Diagnostics(_ context.Context) (model.Diagnostics, error) {
	snap, err := s.snapshot()
	if err != nil {
		return model.Diagnostics{}, err
	}
	return snap.Diagnostics, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	snap := s.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.Ranked)
}
