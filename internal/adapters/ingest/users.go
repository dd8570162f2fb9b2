package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
)

// column binds a CSV column to a ScoredUser field.
type column struct {
	name string
	get  func(*model.ScoredUser) string
	set  func(*model.ScoredUser, string) error
}

func intColumn(name string, field func(*model.ScoredUser) *int) column {
	return column{
		name: name,
		get:  func(u *model.ScoredUser) string { return strconv.Itoa(*field(u)) },
		set: func(u *model.ScoredUser, s string) error {
			if s == "" {
				return nil
			}
			// Accept "3.0" as written by dataframe exports.
			v, err := ParseNumber(s)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field(u) = int(v)
			return nil
		},
	}
}

func floatColumn(name string, field func(*model.ScoredUser) *float64) column {
	return column{
		name: name,
		get:  func(u *model.ScoredUser) string { return formatFloat(*field(u)) },
		set: func(u *model.ScoredUser, s string) error {
			if s == "" {
				return nil
			}
			v, err := ParseNumber(s)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field(u) = v
			return nil
		},
	}
}

func stringColumn(name string, field func(*model.ScoredUser) *string) column {
	return column{
		name: name,
		get:  func(u *model.ScoredUser) string { return *field(u) },
		set: func(u *model.ScoredUser, s string) error {
			*field(u) = s
			return nil
		},
	}
}

// featureColumns is the UserFeatures interchange schema.
var featureColumns = []column{
	stringColumn("user_id", func(u *model.ScoredUser) *string { return &u.UserID }),
	stringColumn("username", func(u *model.ScoredUser) *string { return &u.Username }),
	intColumn("signups", func(u *model.ScoredUser) *int { return &u.Signups }),
	intColumn("calendar_bookings", func(u *model.ScoredUser) *int { return &u.CalendarBookings }),
	intColumn("demo_clicks", func(u *model.ScoredUser) *int { return &u.DemoClicks }),
	intColumn("pricing_views", func(u *model.ScoredUser) *int { return &u.PricingViews }),
	intColumn("page_views", func(u *model.ScoredUser) *int { return &u.PageViews }),
	floatColumn("repeat_session_rate", func(u *model.ScoredUser) *float64 { return &u.RepeatSessionRate }),
	intColumn("days_since_last_event", func(u *model.ScoredUser) *int { return &u.DaysSinceLastEvent }),
	floatColumn("account_balance", func(u *model.ScoredUser) *float64 { return &u.AccountBalance }),
	intColumn("browsing_depth", func(u *model.ScoredUser) *int { return &u.BrowsingDepth }),
	intColumn("converted", func(u *model.ScoredUser) *int { return &u.Converted }),
	intColumn("total_events", func(u *model.ScoredUser) *int { return &u.TotalEvents }),
	intColumn("total_sessions", func(u *model.ScoredUser) *int { return &u.TotalSessions }),
	intColumn("bounce_sessions", func(u *model.ScoredUser) *int { return &u.BounceSessions }),
	intColumn("spam_sessions", func(u *model.ScoredUser) *int { return &u.SpamSessions }),
	floatColumn("bounce_rate", func(u *model.ScoredUser) *float64 { return &u.BounceRate }),
	floatColumn("spam_rate", func(u *model.ScoredUser) *float64 { return &u.SpamRate }),
	stringColumn("location_city", func(u *model.ScoredUser) *string { return &u.LocationCity }),
	stringColumn("primary_device", func(u *model.ScoredUser) *string { return &u.PrimaryDevice }),
	{
		name: "last_event_ts",
		get:  func(u *model.ScoredUser) string { return formatTimestamp(u.LastEventTS) },
		set: func(u *model.ScoredUser, s string) error {
			if s == "" {
				return nil
			}
			ts, err := ParseTimestamp(s)
			if err != nil {
				return fmt.Errorf("last_event_ts: %w", err)
			}
			u.LastEventTS = ts
			return nil
		},
	},
}

// scoreColumns extend featureColumns for scored and ranked files.
var scoreColumns = []column{
	floatColumn("score", func(u *model.ScoredUser) *float64 { return &u.Score }),
	{
		name: "score_label",
		get:  func(u *model.ScoredUser) string { return string(u.Label) },
		set: func(u *model.ScoredUser, s string) error {
			u.Label = model.Label(s)
			return nil
		},
	},
	{
		name: "explanation",
		get: func(u *model.ScoredUser) string {
			if len(u.Explanation) == 0 {
				return explain.NoSignals
			}
			return strings.Join(u.Explanation, " + ")
		},
		set: func(u *model.ScoredUser, s string) error {
			if s == "" || s == explain.NoSignals {
				u.Explanation = nil
				return nil
			}
			u.Explanation = strings.Split(s, " + ")
			return nil
		},
	},
	{
		name: "feature_contributions",
		get: func(u *model.ScoredUser) string {
			if u.Contributions == nil {
				return "{}"
			}
			b, _ := json.Marshal(u.Contributions)
			return string(b)
		},
		set: func(u *model.ScoredUser, s string) error {
			if s == "" {
				return nil
			}
			if err := json.Unmarshal([]byte(s), &u.Contributions); err != nil {
				return fmt.Errorf("feature_contributions: %w", err)
			}
			return nil
		},
	},
	floatColumn("unclamped_score", func(u *model.ScoredUser) *float64 { return &u.UnclampedScore }),
	floatColumn("pre_recency_total", func(u *model.ScoredUser) *float64 { return &u.PreRecencyTotal }),
	floatColumn("recency_multiplier", func(u *model.ScoredUser) *float64 { return &u.RecencyMultiplier }),
	stringColumn("scorer", func(u *model.ScoredUser) *string { return &u.Scorer }),
}

// RequiredFeatureColumns must be present in a features file.
var RequiredFeatureColumns = []string{
	"user_id", "signups", "calendar_bookings", "demo_clicks", "pricing_views", "page_views",
	"repeat_session_rate", "days_since_last_event", "account_balance", "browsing_depth", "converted",
}

// RequiredScoredColumns must be present in a scored or ranked file.
var RequiredScoredColumns = append(append([]string(nil), RequiredFeatureColumns...),
	"score", "score_label", "feature_contributions")

func scoredColumns() []column {
	return append(append([]column(nil), featureColumns...), scoreColumns...)
}

func names(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// readUsers decodes user rows with cols. A row with an unparsable cell is
// skipped as malformed.
func readUsers(r io.Reader, f Format, source string, cols []column, required []string) ([]model.ScoredUser, *model.Diagnostics, error) {
	diag := model.NewDiagnostics()
	var users []model.ScoredUser
	decode := func(line int, get func(string) (string, bool)) {
		var u model.ScoredUser
		for _, c := range cols {
			v, ok := get(c.name)
			if !ok {
				continue
			}
			if err := c.set(&u, v); err != nil {
				diag.Warn(model.RecordWarning{Line: line, UserID: u.UserID, Reason: model.ReasonMalformedRecord, Detail: err.Error()})
				return
			}
		}
		users = append(users, u)
	}

	var err error
	switch f {
	case FormatCSV:
		err = readCSV(r, source, required, diag, func(h header, row csvRow) error {
			decode(row.line, func(name string) (string, bool) {
				return h.get(row.fields, name), h.has(name)
			})
			return nil
		})
	case FormatJSONL:
		err = readJSONL(r, source, required, diag, func(rec jsonRecord) error {
			var u model.ScoredUser
			raw, _ := json.Marshal(rec.fields)
			if jerr := json.Unmarshal(raw, &u); jerr != nil {
				diag.Warn(model.RecordWarning{Line: rec.line, UserID: rec.str("user_id"), Reason: model.ReasonMalformedRecord, Detail: jerr.Error()})
				return nil
			}
			users = append(users, u)
			return nil
		})
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, nil, err
	}
	diag.Accepted = len(users)
	return users, diag, nil
}

// ReadFeatures decodes UserFeatures records.
func ReadFeatures(r io.Reader, f Format, source string) ([]model.UserFeatures, *model.Diagnostics, error) {
	users, diag, err := readUsers(r, f, source, featureColumns, RequiredFeatureColumns)
	if err != nil {
		return nil, nil, err
	}
	out := make([]model.UserFeatures, len(users))
	for i := range users {
		out[i] = users[i].UserFeatures
	}
	return out, diag, nil
}

// ReadScored decodes ScoredUser records, including ranked files.
func ReadScored(r io.Reader, f Format, source string) ([]model.ScoredUser, *model.Diagnostics, error) {
	return readUsers(r, f, source, scoredColumns(), RequiredScoredColumns)
}

// WriteFeatures encodes features in format f.
func WriteFeatures(w io.Writer, f Format, fs []model.UserFeatures) error {
	if f == FormatJSONL {
		return writeJSONL(w, fs)
	}
	users := make([]model.ScoredUser, len(fs))
	for i := range fs {
		users[i].UserFeatures = fs[i]
	}
	return writeUsers(w, f, featureColumns, users, false)
}

// WriteScored encodes scored users in format f.
func WriteScored(w io.Writer, f Format, users []model.ScoredUser) error {
	if f == FormatJSONL {
		return writeJSONL(w, users)
	}
	return writeUsers(w, f, scoredColumns(), users, false)
}

// rankedRecord is the JSON-lines shape of a ranked row.
type rankedRecord struct {
	Rank int `json:"rank"`
	model.ScoredUser
}

// WriteRanked encodes users, already in rank order, with a 1-based rank.
func WriteRanked(w io.Writer, f Format, ranked []model.ScoredUser) error {
	if f == FormatJSONL {
		recs := make([]rankedRecord, len(ranked))
		for i := range ranked {
			recs[i] = rankedRecord{Rank: i + 1, ScoredUser: ranked[i]}
		}
		return writeJSONL(w, recs)
	}
	return writeUsers(w, f, scoredColumns(), ranked, true)
}

func writeUsers(w io.Writer, f Format, cols []column, users []model.ScoredUser, ranked bool) error {
	if f != FormatCSV {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	head := names(cols)
	if ranked {
		head = append([]string{"rank"}, head...)
	}
	return writeCSV(w, head, func(write func([]string) error) error {
		for i := range users {
			row := make([]string, 0, len(head))
			if ranked {
				row = append(row, strconv.Itoa(i+1))
			}
			for _, c := range cols {
				row = append(row, c.get(&users[i]))
			}
			if err := write(row); err != nil {
				return fmt.Errorf("write user %s: %w", users[i].UserID, err)
			}
		}
		return nil
	})
}

// ReadFile opens path and decodes it with read using the format implied by
// its extension.
func ReadFile[T any](path string, read func(io.Reader, Format, string) ([]T, *model.Diagnostics, error)) ([]T, *model.Diagnostics, error) {
	f, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()
	return read(fh, f, path)
}

// WriteFile creates path, and any missing parent directories, and encodes
// values with write using the format implied by its extension.
func WriteFile[T any](path string, values []T, write func(io.Writer, Format, []T) error) error {
	f, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(fh, f, values); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
