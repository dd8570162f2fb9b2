package session

import (
	"sort"
	"time"

	"github.com/okian/intentrank/internal/domain/model"
)

// Batch is a set of events partitioned by user.
type Batch struct {
	// Users lists every user id seen in the input, sorted ascending, including
	// users whose events were all rejected.
	Users []string
	// Events holds each user's accepted events in input order.
	Events map[string][]model.Event
	// Reference is the latest accepted timestamp in the batch.
	Reference time.Time
	// Earliest is the earliest accepted timestamp in the batch.
	Earliest time.Time
	// Warnings lists events rejected for a missing user id or timestamp.
	Warnings []model.RecordWarning
}

// Span is the wall-clock extent of the batch.
func (b Batch) Span() time.Duration {
	if b.Reference.IsZero() {
		return 0
	}
	return b.Reference.Sub(b.Earliest)
}

// Partition groups events by user id. Events lacking a user id or timestamp
// are excluded and reported as warnings at their source line (see
// model.Event.Position). known names users whose records were all rejected
// before partitioning; they are listed in Users with no events.
func Partition(events []model.Event, known ...string) Batch {
	b := Batch{Events: make(map[string][]model.Event)}
	seen := make(map[string]struct{})
	addUser := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			b.Users = append(b.Users, id)
		}
	}
	for _, id := range known {
		if id != "" {
			addUser(id)
		}
	}
	for i, ev := range events {
		if ev.UserID == "" {
			b.Warnings = append(b.Warnings, model.RecordWarning{Line: ev.Position(i), Reason: model.ReasonMissingUserID})
			continue
		}
		addUser(ev.UserID)
		if ev.Timestamp.IsZero() {
			b.Warnings = append(b.Warnings, model.RecordWarning{Line: ev.Position(i), UserID: ev.UserID, Reason: model.ReasonMissingTimestamp})
			continue
		}
		b.Events[ev.UserID] = append(b.Events[ev.UserID], ev)
		if b.Reference.IsZero() || ev.Timestamp.After(b.Reference) {
			b.Reference = ev.Timestamp
		}
		if b.Earliest.IsZero() || ev.Timestamp.Before(b.Earliest) {
			b.Earliest = ev.Timestamp
		}
	}
	sort.Strings(b.Users)
	return b
}
