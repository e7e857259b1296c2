package google

import (
	"fmt"
	"strings"
	"time"

	"subtrack/internal/core"
)

// Column layout of the subscriptions tab. Row 1 is the header.
var header = []interface{}{"ID", "Name", "Price", "Cycle", "Renewal Date", "Notes", "Created At"}

const (
	colID = iota
	colName
	colPrice
	colCycle
	colRenewal
	colNotes
	colCreated
	numCols
)

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseRow turns one sheet row into a subscription. Created At and Notes
// may be absent; everything else is required.
func parseRow(row []interface{}) (core.Subscription, error) {
	cols := toStrings(row)
	id := safeGet(cols, colID)
	if id == "" {
		return core.Subscription{}, core.ErrEmptyID
	}

	cents, err := core.ParseDecimalToCents(safeGet(cols, colPrice))
	if err != nil {
		return core.Subscription{}, fmt.Errorf("row %s price %q: %w", id, safeGet(cols, colPrice), err)
	}
	cycle, err := core.ParseCycle(safeGet(cols, colCycle))
	if err != nil {
		return core.Subscription{}, fmt.Errorf("row %s: %w", id, err)
	}
	renewal, err := time.Parse(time.RFC3339, safeGet(cols, colRenewal))
	if err != nil {
		return core.Subscription{}, fmt.Errorf("row %s renewal date: %w", id, err)
	}

	sub := core.Subscription{
		ID:          id,
		Name:        safeGet(cols, colName),
		Price:       core.Money{Cents: cents},
		Cycle:       cycle,
		RenewalDate: renewal,
		Notes:       safeGet(cols, colNotes),
	}
	if created := safeGet(cols, colCreated); created != "" {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			sub.CreatedAt = t
		}
	}
	return sub, nil
}

func toRow(s core.Subscription) []interface{} {
	created := ""
	if !s.CreatedAt.IsZero() {
		created = s.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		s.ID,
		s.Name,
		s.Price.String(),
		string(s.Cycle.OrDefault()),
		s.RenewalDate.UTC().Format(time.RFC3339),
		s.Notes,
		created,
	}
}

// isHeader reports whether row is the header line rather than data.
func isHeader(row []interface{}) bool {
	cols := toStrings(row)
	return strings.EqualFold(safeGet(cols, colID), "id") &&
		strings.EqualFold(safeGet(cols, colName), "name")
}
