package core

import (
	"strconv"
	"time"
)

type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportReady     ImportStatus = "ready"
	ImportFailed    ImportStatus = "failed"
	ImportConfirmed ImportStatus = "confirmed"
)

type (
	// StatementImport is an uploaded bank statement and the rows scanned from it.
	StatementImport struct {
		ID          string
		HouseholdID string
		FileName    string
		MimeType    string
		Content     []byte
		Status      ImportStatus
		Error       string
		Rows        []ImportRow
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// ImportRow is one transaction read off a statement.
	ImportRow struct {
		Index       int
		Date        Date
		Description string
		Amount      Money
		Duplicate   bool
	}
)

// Signature identifies a transaction for duplicate detection: same calendar
// date and same amount.
func Signature(d Date, m Money) string {
	return d.String() + "|" + strconv.FormatInt(m.Cents, 10)
}

// RowsDateRange returns the earliest and latest row dates. ok is false when
// rows is empty.
func RowsDateRange(rows []ImportRow) (from, to Date, ok bool) {
	for i, r := range rows {
		if i == 0 || r.Date.Before(from.Time) {
			from = r.Date
		}
		if i == 0 || r.Date.After(to.Time) {
			to = r.Date
		}
	}
	return from, to, len(rows) > 0
}

// FlagDuplicates marks rows whose signature matches an existing transaction.
// The input slice is not modified.
func FlagDuplicates(rows []ImportRow, existing []Transaction) []ImportRow {
	seen := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		seen[Signature(t.Date, t.Amount)] = struct{}{}
	}
	out := make([]ImportRow, len(rows))
	for i, r := range rows {
		_, r.Duplicate = seen[Signature(r.Date, r.Amount)]
		out[i] = r
	}
	return out
}
