// Package csvparse turns loosely formatted CSV exports into a header row and
// trimmed data rows, and resolves canonical training fields against headers.
package csvparse

import (
	"bytes"
	"encoding/csv"
	"strings"
)

// Table is a parsed CSV: trimmed headers and trimmed data rows.
// Rows may be shorter or longer than Headers.
type Table struct {
	Headers   []string
	Rows      [][]string
	Delimiter rune
}

// Cell returns row[idx], or "" when the row is too short.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// FirstLine returns the first non-blank line of data with a BOM removed.
func FirstLine(data []byte) string {
	data = bytes.TrimPrefix(data, []byte(bom))
	for len(data) > 0 {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		if s := strings.TrimSpace(string(line)); s != "" {
			return s
		}
	}
	return ""
}

// Parse detects the delimiter from the first line and splits data into a
// header row and data rows. Every physical line is one record: quoted cells
// may contain the delimiter but never a line break, so a stray quote cannot
// swallow the rows after it. Blank and whitespace-only lines are skipped.
func Parse(data []byte) (*Table, error) {
	text := strings.TrimPrefix(string(data), bom)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	delim := DetectDelimiter(FirstLine([]byte(text)))

	t := &Table{Delimiter: delim}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells, blank := trimRecord(splitLine(line, delim))
		if blank {
			continue
		}
		if t.Headers == nil {
			t.Headers = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	if len(t.Headers) == 0 {
		return nil, ErrNoHeader
	}
	return t, nil
}

// splitLine reads one record with encoding/csv. Lines the strict reader
// rejects, such as `"Jane" ,Doe`, are split by toggling on quotes instead.
func splitLine(line string, delim rune) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	rec, err := r.Read()
	if err == nil {
		return rec
	}

	var (
		cells    []string
		cur      strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			cur.WriteRune('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == delim && !inQuotes:
			cells = append(cells, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	return append(cells, cur.String())
}

func trimRecord(rec []string) ([]string, bool) {
	out := make([]string, len(rec))
	blank := true
	for i, c := range rec {
		out[i] = strings.TrimSpace(c)
		if out[i] != "" {
			blank = false
		}
	}
	return out, blank
}
