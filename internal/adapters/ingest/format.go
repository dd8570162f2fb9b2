// Package ingest reads and writes the CSV and JSON-lines interchange files:
// events, user features, scored users and ranked results.
package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/okian/intentrank/internal/domain/model"
)

// Format is an interchange encoding.
type Format string

// Supported formats.
const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// maxLineBytes bounds a single JSON-lines record.
const maxLineBytes = 4 << 20

// DetectFormat picks a format from the file extension. Unknown extensions are
// an error.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// timestampLayouts are tried in order. Values without a zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp encodings found in event exports.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// ParseNumber parses a numeric cell. NaN and infinities are rejected.
func ParseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrBadNumber, s)
	}
	return v, nil
}

// header maps column names to positions.
type header map[string]int

func newHeader(cols []string) header {
	h := make(header, len(cols))
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if _, dup := h[c]; !dup {
			h[c] = i
		}
	}
	return h
}

func (h header) has(name string) bool {
	_, ok := h[name]
	return ok
}

// get returns the trimmed cell for name, or "" when the column or cell is
// absent.
func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// missing reports which of required are absent, in the given order.
func missing(has func(string) bool, required []string) []string {
	var out []string
	for _, name := range required {
		if !has(name) {
			out = append(out, name)
		}
	}
	return out
}

// csvRow is one data record with its physical line number.
type csvRow struct {
	line   int
	fields []string
}

// readCSV reads the header, checks required columns and hands every row to
// fn. Rows the CSV parser rejects are reported as malformed. An input with no
// header at all is empty, not an error.
func readCSV(r io.Reader, source string, required []string, diag *model.Diagnostics, fn func(header, csvRow) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	cols, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s header: %w", source, err)
	}
	h := newHeader(cols)
	if miss := missing(h.has, required); len(miss) > 0 {
		return &model.SchemaError{Source: source, Missing: miss}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return fmt.Errorf("read %s: %w", source, err)
			}
			diag.TotalRecords++
			diag.Warn(model.RecordWarning{Line: perr.Line, Reason: model.ReasonMalformedRecord, Detail: perr.Err.Error()})
			continue
		}
		diag.TotalRecords++
		if err := fn(h, csvRow{line: line, fields: rec}); err != nil {
			return err
		}
	}
}

// jsonRecord is one decoded JSON-lines object keyed by field name.
type jsonRecord struct {
	line   int
	fields map[string]json.RawMessage
}

func (j jsonRecord) has(name string) bool {
	_, ok := j.fields[name]
	return ok
}

// str returns a field as text. Numbers and booleans are returned verbatim.
func (j jsonRecord) str(name string) string {
	raw, ok := j.fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return v
}

// readJSONL decodes one object per non-blank line. Lines that are not JSON
// objects are reported as malformed. required keys must each appear in at
// least one record.
func readJSONL(r io.Reader, source string, required []string, diag *model.Diagnostics, fn func(jsonRecord) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []jsonRecord
	seen := make(map[string]bool)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		diag.TotalRecords++
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			diag.Warn(model.RecordWarning{Line: line, Reason: model.ReasonMalformedRecord, Detail: err.Error()})
			continue
		}
		for k := range fields {
			seen[k] = true
		}
		records = append(records, jsonRecord{line: line, fields: fields})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", source, err)
	}
	if len(records) > 0 {
		if miss := missing(func(k string) bool { return seen[k] }, required); len(miss) > 0 {
			return &model.SchemaError{Source: source, Missing: miss}
		}
	}
	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// writeJSONL encodes each value on its own line.
func writeJSONL[T any](w io.Writer, values []T) error {
	enc := json.NewEncoder(w)
	for i := range values {
		if err := enc.Encode(values[i]); err != nil {
			return fmt.Errorf("encode record %d: %w", i+1, err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, cols []string, rows func(yield func([]string) error) error) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := rows(cw.Write); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
