package model

import "time"

// Session is a contiguous run of one user's events.
type Session struct {
	SessionID string
	UserID    string
	Events    []Event // ordered by timestamp
	Start     time.Time
	End       time.Time
	IsBounce  bool
	IsSpam    bool
}

// EventCount returns the number of events in the session.
func (s Session) EventCount() int { return len(s.Events) }

// Duration returns the wall-clock span between first and last event.
func (s Session) Duration() time.Duration { return s.End.Sub(s.Start) }

// UserFeatures is the per-user behavioral record consumed by scorers.
type UserFeatures struct {
	UserID string `json:"user_id" yaml:"user_id"`

	// Funnel counts (non-spam sessions only).
	Signups          int `json:"signups" yaml:"signups"`
	CalendarBookings int `json:"calendar_bookings" yaml:"calendar_bookings"`
	DemoClicks       int `json:"demo_clicks" yaml:"demo_clicks"`
	PricingViews     int `json:"pricing_views" yaml:"pricing_views"`
	PageViews        int `json:"page_views" yaml:"page_views"`

	// Engagement.
	RepeatSessionRate float64 `json:"repeat_session_rate" yaml:"repeat_session_rate"`
	TotalEvents       int     `json:"total_events" yaml:"total_events"`
	TotalSessions     int     `json:"total_sessions" yaml:"total_sessions"`
	BounceSessions    int     `json:"bounce_sessions" yaml:"bounce_sessions"`
	SpamSessions      int     `json:"spam_sessions" yaml:"spam_sessions"`
	BounceRate        float64 `json:"bounce_rate" yaml:"bounce_rate"`
	SpamRate          float64 `json:"spam_rate" yaml:"spam_rate"`

	// Recency against the batch reference timestamp.
	DaysSinceLastEvent int       `json:"days_since_last_event" yaml:"days_since_last_event"`
	LastEventTS        time.Time `json:"last_event_ts" yaml:"last_event_ts"`

	// Context.
	AccountBalance float64 `json:"account_balance" yaml:"account_balance"`
	BrowsingDepth  int     `json:"browsing_depth" yaml:"browsing_depth"`
	Username       string  `json:"username,omitempty" yaml:"username,omitempty"`
	LocationCity   string  `json:"location_city,omitempty" yaml:"location_city,omitempty"`
	PrimaryDevice  string  `json:"primary_device,omitempty" yaml:"primary_device,omitempty"`

	Converted int `json:"converted" yaml:"converted"`
}

// Label is the coarse intent bucket derived from a score.
type Label string

// Known labels, ordered from lowest to highest intent.
const (
	LabelLow    Label = "low"
	LabelMedium Label = "medium"
	LabelHigh   Label = "high"
)

// Direction describes the sign of a contribution.
type Direction string

// Contribution directions.
const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// Contribution is one rendered entry of a local explanation.
type Contribution struct {
	Feature   string    `json:"feature" yaml:"feature"`
	Points    float64   `json:"points" yaml:"points"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// ScoredUser is UserFeatures plus the score and its decomposition.
type ScoredUser struct {
	UserFeatures `yaml:",inline"`

	Score             float64            `json:"score" yaml:"score"`
	Label             Label              `json:"score_label" yaml:"score_label"`
	Contributions     map[string]float64 `json:"feature_contributions" yaml:"feature_contributions"`
	Explanation       []string           `json:"explanation" yaml:"explanation"`
	UnclampedScore    float64            `json:"unclamped_score" yaml:"unclamped_score"`
	PreRecencyTotal   float64            `json:"pre_recency_total" yaml:"pre_recency_total"`
	RecencyMultiplier float64            `json:"recency_multiplier" yaml:"recency_multiplier"`
	Scorer            string             `json:"scorer" yaml:"scorer"`
}
