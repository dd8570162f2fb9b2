// Package model contains domain models passed between pipeline stages.
package model

import (
	"strings"
	"time"
)

// EventType enumerates the interaction kinds the pipeline understands.
type EventType string

// Known event types.
const (
	EventPageView        EventType = "page_view"
	EventPricingView     EventType = "pricing_view"
	EventDemoClick       EventType = "demo_click"
	EventSignup          EventType = "signup"
	EventCalendarBooking EventType = "calendar_booking"
	EventSearch          EventType = "search"
	EventChatMessage     EventType = "chat_message"
	EventDocDownload     EventType = "doc_download"
)

// eventAliases maps legacy export names onto canonical types.
var eventAliases = map[string]EventType{
	"pricing_page_view":  EventPricingView,
	"demo_request_click": EventDemoClick,
}

var knownEvents = map[EventType]struct{}{
	EventPageView:        {},
	EventPricingView:     {},
	EventDemoClick:       {},
	EventSignup:          {},
	EventCalendarBooking: {},
	EventSearch:          {},
	EventChatMessage:     {},
	EventDocDownload:     {},
}

// ParseEventType normalises s and reports whether it names a known type.
func ParseEventType(s string) (EventType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := eventAliases[s]; ok {
		return alias, true
	}
	t := EventType(s)
	_, ok := knownEvents[t]
	return t, ok
}

// IsFunnelAction reports whether t is a signup, calendar booking or demo click.
func (t EventType) IsFunnelAction() bool {
	switch t {
	case EventSignup, EventCalendarBooking, EventDemoClick:
		return true
	default:
		return false
	}
}

// Event is an atomic interaction record. Events are never mutated after load.
type Event struct {
	EventID        string    // optional idempotency key
	UserID         string    // subject identifier
	SessionID      string    // optional; assigned by the aggregator when empty
	Type           EventType // interaction kind
	Timestamp      time.Time // event time (UTC)
	Device         string    // optional
	LocationCity   string    // optional
	Page           string    // optional page identifier
	Username       string    // optional
	AccountBalance *float64  // optional account context
	Line           int       // 1-based source line; 0 when not read from a file
}

// Position is e's source line, or index+1 when e carries none.
func (e Event) Position(index int) int {
	if e.Line > 0 {
		return e.Line
	}
	return index + 1
}
