// Package training maps parsed CSV tables onto training rows.
//
// Normalisation runs in two stages: Normalize keeps every data row, and
// Incomplete narrows the result to the rows snapshots persist.
package training

import (
	"strings"

	"github.com/okian/nudge/internal/domain/csvparse"
	"github.com/okian/nudge/internal/domain/model"
)

// Normalize maps every data row of t onto a ParsedRow using cols.
func Normalize(t *csvparse.Table, cols csvparse.Columns) []model.ParsedRow {
	rows := make([]model.ParsedRow, 0, len(t.Rows))
	for _, rec := range t.Rows {
		first := csvparse.Cell(rec, cols[csvparse.FirstName])
		last := csvparse.Cell(rec, cols[csvparse.LastName])
		rows = append(rows, model.ParsedRow{
			FullName:  strings.TrimSpace(first + " " + last),
			FirstName: first,
			LastName:  last,
			Title:     csvparse.Cell(rec, cols[csvparse.Title]),
			SentDate:  csvparse.Cell(rec, cols[csvparse.SentDate]),
			Status:    csvparse.Cell(rec, cols[csvparse.Status]),
		})
	}
	return rows
}

// Incomplete keeps rows with a name and a not started / in progress status.
func Incomplete(rows []model.ParsedRow) []model.ParsedRow {
	out := make([]model.ParsedRow, 0, len(rows))
	for _, r := range rows {
		if r.IsIncomplete() {
			out = append(out, r)
		}
	}
	return out
}

// Parse runs the full pipeline up to stage one: delimiter detection, header
// resolution and row mapping. Header resolution fails before any row is
// mapped.
func Parse(data []byte, mapping csvparse.FieldMapping) ([]model.ParsedRow, error) {
	t, err := csvparse.Parse(data)
	if err != nil {
		return nil, err
	}
	cols, err := csvparse.Resolve(t.Headers, mapping)
	if err != nil {
		return nil, err
	}
	return Normalize(t, cols), nil
}
