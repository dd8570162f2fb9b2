// Package session groups one user's events into sessions and flags
// degenerate (bounce, spam) sessions.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/validation"
)

// Defaults.
const (
	DefaultGap                    = 30 * time.Minute
	DefaultSpamMaxEventsPerMinute = 30.0
)

// minRateWindow is the shortest duration a session's event rate is measured over.
const minRateWindow = time.Minute

// Config holds session aggregation parameters. It is a value; share it freely.
type Config struct {
	Gap                    time.Duration `json:"session_gap" validate:"gt=0"`
	SpamMaxEventsPerMinute float64       `json:"spam_max_events_per_minute" validate:"gt=0"`
}

// DefaultConfig returns the default aggregation parameters.
func DefaultConfig() Config {
	return Config{Gap: DefaultGap, SpamMaxEventsPerMinute: DefaultSpamMaxEventsPerMinute}
}

// Validate reports an invalid configuration as a *model.ConfigError.
func (c Config) Validate() error {
	return validation.Struct("sessions", c)
}

// Aggregate splits the events of a single user into sessions.
//
// A new session starts when the gap since the previous event exceeds cfg.Gap,
// or when two consecutive events carry different non-empty session ids.
// The input slice is not modified.
func Aggregate(userID string, events []model.Event, cfg Config) []model.Session {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var (
		out     []model.Session
		current []model.Event
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, build(userID, len(out)+1, current, cfg))
		current = nil
	}
	for i, ev := range sorted {
		if i > 0 && splits(sorted[i-1], ev, cfg.Gap) {
			flush()
		}
		current = append(current, ev)
	}
	flush()
	return out
}

func splits(prev, next model.Event, gap time.Duration) bool {
	if next.Timestamp.Sub(prev.Timestamp) > gap {
		return true
	}
	return prev.SessionID != "" && next.SessionID != "" && prev.SessionID != next.SessionID
}

func build(userID string, seq int, events []model.Event, cfg Config) model.Session {
	s := model.Session{
		SessionID: sessionID(userID, seq, events),
		UserID:    userID,
		Events:    events,
		Start:     events[0].Timestamp,
		End:       events[len(events)-1].Timestamp,
	}
	s.IsBounce = IsBounce(events)
	s.IsSpam = IsSpam(events, s.Duration(), cfg.SpamMaxEventsPerMinute)
	return s
}

func sessionID(userID string, seq int, events []model.Event) string {
	for _, ev := range events {
		if ev.SessionID != "" {
			return ev.SessionID
		}
	}
	return fmt.Sprintf("%s-s%03d", userID, seq)
}

// IsBounce reports whether a session is exactly one non-funnel event.
func IsBounce(events []model.Event) bool {
	return len(events) == 1 && !events[0].Type.IsFunnelAction()
}

// IsSpam reports whether the event rate exceeds maxPerMinute. Single-event
// sessions are never spam. Durations under a minute are measured as one minute.
func IsSpam(events []model.Event, duration time.Duration, maxPerMinute float64) bool {
	if len(events) < 2 {
		return false
	}
	if duration < minRateWindow {
		duration = minRateWindow
	}
	rate := float64(len(events)) / duration.Minutes()
	return rate > maxPerMinute
}
