package ingest

import (
	"fmt"
	"io"

	"github.com/okian/intentrank/internal/domain/model"
)

// Event columns.
const (
	ColEventID        = "event_id"
	ColUserID         = "user_id"
	ColUsername       = "username"
	ColSessionID      = "session_id"
	ColTimestamp      = "timestamp"
	ColEventType      = "event_type"
	ColLocationCity   = "location_city"
	ColDevice         = "device"
	ColPage           = "page"
	ColAccountBalance = "account_balance_usd"

	colAccountBalanceAlt = "account_balance"
)

// RequiredEventColumns must be present in every events file.
var RequiredEventColumns = []string{ColUserID, ColEventType, ColTimestamp}

var eventColumns = []string{
	ColEventID, ColUserID, ColUsername, ColSessionID, ColTimestamp, ColEventType,
	ColLocationCity, ColDevice, ColPage, ColAccountBalance,
}

// rawEvent is an event as text, before validation.
type rawEvent struct {
	line                               int
	eventID, userID, username, session string
	timestamp, eventType, city, device string
	page, balance                      string
}

// toEvent validates r. Empty user ids and timestamps pass through and are
// reported by the aggregator; unparsable timestamps, unknown event types and
// bad balances are rejected here.
func (r rawEvent) toEvent() (model.Event, *model.RecordWarning) {
	typ, ok := model.ParseEventType(r.eventType)
	if !ok {
		return model.Event{}, &model.RecordWarning{Line: r.line, UserID: r.userID, Reason: model.ReasonUnknownEventType, Detail: r.eventType}
	}
	ev := model.Event{
		EventID:      r.eventID,
		UserID:       r.userID,
		SessionID:    r.session,
		Type:         typ,
		Device:       r.device,
		LocationCity: r.city,
		Page:         r.page,
		Username:     r.username,
		Line:         r.line,
	}
	if r.timestamp != "" {
		ts, err := ParseTimestamp(r.timestamp)
		if err != nil {
			return model.Event{}, &model.RecordWarning{Line: r.line, UserID: r.userID, Reason: model.ReasonBadTimestamp, Detail: r.timestamp}
		}
		ev.Timestamp = ts
	}
	if r.balance != "" {
		v, err := ParseNumber(r.balance)
		if err != nil {
			return model.Event{}, &model.RecordWarning{Line: r.line, UserID: r.userID, Reason: model.ReasonMalformedRecord, Detail: ColAccountBalance + ": " + err.Error()}
		}
		ev.AccountBalance = &v
	}
	return ev, nil
}

// ReadEvents decodes events from r. A missing required column is a
// *model.SchemaError; malformed rows are skipped and counted in the returned
// diagnostics.
func ReadEvents(r io.Reader, f Format, source string) ([]model.Event, *model.Diagnostics, error) {
	diag := model.NewDiagnostics()
	var events []model.Event
	accept := func(raw rawEvent) {
		ev, w := raw.toEvent()
		if w != nil {
			diag.Warn(*w)
			return
		}
		events = append(events, ev)
	}

	var err error
	switch f {
	case FormatCSV:
		err = readCSV(r, source, RequiredEventColumns, diag, func(h header, row csvRow) error {
			balance := h.get(row.fields, ColAccountBalance)
			if balance == "" {
				balance = h.get(row.fields, colAccountBalanceAlt)
			}
			accept(rawEvent{
				line:      row.line,
				eventID:   h.get(row.fields, ColEventID),
				userID:    h.get(row.fields, ColUserID),
				username:  h.get(row.fields, ColUsername),
				session:   h.get(row.fields, ColSessionID),
				timestamp: h.get(row.fields, ColTimestamp),
				eventType: h.get(row.fields, ColEventType),
				city:      h.get(row.fields, ColLocationCity),
				device:    h.get(row.fields, ColDevice),
				page:      h.get(row.fields, ColPage),
				balance:   balance,
			})
			return nil
		})
	case FormatJSONL:
		err = readJSONL(r, source, RequiredEventColumns, diag, func(rec jsonRecord) error {
			balance := rec.str(ColAccountBalance)
			if balance == "" {
				balance = rec.str(colAccountBalanceAlt)
			}
			accept(rawEvent{
				line:      rec.line,
				eventID:   rec.str(ColEventID),
				userID:    rec.str(ColUserID),
				username:  rec.str(ColUsername),
				session:   rec.str(ColSessionID),
				timestamp: rec.str(ColTimestamp),
				eventType: rec.str(ColEventType),
				city:      rec.str(ColLocationCity),
				device:    rec.str(ColDevice),
				page:      rec.str(ColPage),
				balance:   balance,
			})
			return nil
		})
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, nil, err
	}
	diag.Accepted = len(events)
	return events, diag, nil
}

// ReadEventsFile opens path and decodes it with the format implied by its
// extension.
func ReadEventsFile(path string) ([]model.Event, *model.Diagnostics, error) {
	return ReadFile(path, ReadEvents)
}

// eventRecord is the JSON-lines shape of an event.
type eventRecord struct {
	EventID        string   `json:"event_id,omitempty"`
	UserID         string   `json:"user_id"`
	Username       string   `json:"username,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	Timestamp      string   `json:"timestamp"`
	EventType      string   `json:"event_type"`
	LocationCity   string   `json:"location_city,omitempty"`
	Device         string   `json:"device,omitempty"`
	Page           string   `json:"page,omitempty"`
	AccountBalance *float64 `json:"account_balance_usd,omitempty"`
}

// WriteEvents encodes events in format f.
func WriteEvents(w io.Writer, f Format, events []model.Event) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, eventColumns, func(write func([]string) error) error {
			for i := range events {
				ev := &events[i]
				balance := ""
				if ev.AccountBalance != nil {
					balance = formatFloat(*ev.AccountBalance)
				}
				if err := write([]string{
					ev.EventID, ev.UserID, ev.Username, ev.SessionID, formatTimestamp(ev.Timestamp),
					string(ev.Type), ev.LocationCity, ev.Device, ev.Page, balance,
				}); err != nil {
					return fmt.Errorf("write event %d: %w", i+1, err)
				}
			}
			return nil
		})
	case FormatJSONL:
		recs := make([]eventRecord, len(events))
		for i, ev := range events {
			recs[i] = eventRecord{
				EventID:        ev.EventID,
				UserID:         ev.UserID,
				Username:       ev.Username,
				SessionID:      ev.SessionID,
				Timestamp:      formatTimestamp(ev.Timestamp),
				EventType:      string(ev.Type),
				LocationCity:   ev.LocationCity,
				Device:         ev.Device,
				Page:           ev.Page,
				AccountBalance: ev.AccountBalance,
			}
		}
		return writeJSONL(w, recs)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}
