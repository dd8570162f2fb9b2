// Package dedupe tracks event ids so each event is aggregated at most once.
package dedupe

import (
	"context"
	"sync"

	"github.com/okian/intentrank/internal/domain/model"
)

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool
	// Size returns the number of ids currently remembered.
	Size() int
}

// inMemoryDeduper remembers ids in a map. When bounded, the oldest id is
// evicted first using a ring of insertion order.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // ring buffer, bounded mode only
	next    int
	maxSize int // <= 0 means unbounded
}

// NewInMemoryDeduper creates a deduper. The default is unbounded, which is
// what a closed batch needs.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{})
	if d.maxSize > 0 {
		d.order = make([]string, 0, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	if d.maxSize <= 0 {
		return false
	}
	if len(d.order) < d.maxSize {
		d.order = append(d.order, id)
		return false
	}
	delete(d.seen, d.order[d.next])
	d.order[d.next] = id
	d.next = (d.next + 1) % d.maxSize
	return false
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Filter drops events whose non-empty EventID was already seen, keeping the
// first occurrence. Each drop is returned as a duplicate_event warning at the
// event's source line (see model.Event.Position).
func Filter(ctx context.Context, d Deduper, events []model.Event) ([]model.Event, []model.RecordWarning) {
	kept := make([]model.Event, 0, len(events))
	var warnings []model.RecordWarning
	for i, ev := range events {
		if ev.EventID != "" && d.SeenAndRecord(ctx, ev.EventID) {
			warnings = append(warnings, model.RecordWarning{
				Line:   ev.Position(i),
				UserID: ev.UserID,
				Reason: model.ReasonDuplicateEvent,
				Detail: ev.EventID,
			})
			continue
		}
		kept = append(kept, ev)
	}
	return kept, warnings
}
