package model

import "sort"

// maxKeptWarnings bounds how many warnings are retained verbatim.
const maxKeptWarnings = 100

// Diagnostics carries run-level counts of accepted and skipped records.
type Diagnostics struct {
	TotalRecords int                   `json:"total_records"`
	Accepted     int                   `json:"accepted"`
	Skipped      int                   `json:"skipped"`
	ByReason     map[WarningReason]int `json:"by_reason"`
	Warnings     []RecordWarning       `json:"warnings,omitempty"`

	users map[string]struct{}
}

// NewDiagnostics returns an empty Diagnostics.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{ByReason: make(map[WarningReason]int)}
}

// Warn records a skipped record.
func (d *Diagnostics) Warn(w RecordWarning) {
	d.Skipped++
	if d.ByReason == nil {
		d.ByReason = make(map[WarningReason]int)
	}
	d.ByReason[w.Reason]++
	if len(d.Warnings) < maxKeptWarnings {
		d.Warnings = append(d.Warnings, w)
	}
	d.addUser(w.UserID)
}

func (d *Diagnostics) addUser(id string) {
	if id == "" {
		return
	}
	if d.users == nil {
		d.users = make(map[string]struct{})
	}
	d.users[id] = struct{}{}
}

// UserIDs lists, sorted, the user ids named by skipped records. Unlike
// Warnings it is not truncated.
func (d *Diagnostics) UserIDs() []string {
	if d == nil || len(d.users) == 0 {
		return nil
	}
	out := make([]string, 0, len(d.users))
	for id := range d.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of d.
func (d *Diagnostics) Clone() *Diagnostics {
	out := *d
	out.ByReason = make(map[WarningReason]int, len(d.ByReason))
	for r, n := range d.ByReason {
		out.ByReason[r] = n
	}
	out.Warnings = append([]RecordWarning(nil), d.Warnings...)
	out.users = nil
	for id := range d.users {
		out.addUser(id)
	}
	return &out
}

// Merge folds o into d.
func (d *Diagnostics) Merge(o *Diagnostics) {
	if o == nil {
		return
	}
	d.TotalRecords += o.TotalRecords
	d.Accepted += o.Accepted
	d.Skipped += o.Skipped
	for r, n := range o.ByReason {
		d.ByReason[r] += n
	}
	for _, w := range o.Warnings {
		if len(d.Warnings) >= maxKeptWarnings {
			break
		}
		d.Warnings = append(d.Warnings, w)
	}
	for id := range o.users {
		d.addUser(id)
	}
}

// Then folds in the diagnostics of a later stage that consumed d's accepted
// records. d keeps its total; acceptance becomes next's.
func (d *Diagnostics) Then(next *Diagnostics) {
	if next == nil {
		return
	}
	d.Accepted = next.Accepted
	d.Skipped += next.Skipped
	for r, n := range next.ByReason {
		d.ByReason[r] += n
	}
	for _, w := range next.Warnings {
		if len(d.Warnings) >= maxKeptWarnings {
			break
		}
		d.Warnings = append(d.Warnings, w)
	}
	for id := range next.users {
		d.addUser(id)
	}
}
