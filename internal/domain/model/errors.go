package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for the fatal error classes. Use errors.Is against these.
var (
	ErrSchema = errors.New("schema error")
	ErrConfig = errors.New("config error")
)

// SchemaError reports required fields missing from a record set.
type SchemaError struct {
	Source  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s: missing required field(s) %s", e.Source, strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is match ErrSchema.
func (e *SchemaError) Unwrap() error { return ErrSchema }

// ConfigError reports an invalid scoring or session configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrConfig.
func (e *ConfigError) Unwrap() error { return ErrConfig }

// WarningReason classifies a recoverable per-record problem.
type WarningReason string

// Recoverable record problems.
const (
	ReasonMissingUserID    WarningReason = "missing_user_id"
	ReasonMissingTimestamp WarningReason = "missing_timestamp"
	ReasonBadTimestamp     WarningReason = "bad_timestamp"
	ReasonUnknownEventType WarningReason = "unknown_event_type"
	ReasonDuplicateEvent   WarningReason = "duplicate_event"
	ReasonMalformedRecord  WarningReason = "malformed_record"
)

// RecordWarning is a single excluded record.
type RecordWarning struct {
	Line   int           `json:"line"`
	UserID string        `json:"user_id,omitempty"`
	Reason WarningReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

func (w RecordWarning) String() string {
	if w.Detail == "" {
		return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
	}
	return fmt.Sprintf("line %d: %s (%s)", w.Line, w.Reason, w.Detail)
}
