// Package roster extracts master roster names and partitions them against
// the current offenders.
package roster

import (
	"errors"
	"strings"

	"github.com/okian/nudge/internal/domain/csvparse"
)

// ErrEmptyMapping is returned when a mapping names neither a full-name
// column nor both first and last name columns.
var ErrEmptyMapping = errors.New("mapping for either fullName or both firstName and lastName is required")

// Roster field names used in MissingColumnError.
const (
	FieldFullName csvparse.Field = "fullName"
)

// Mapping names the roster columns. FullName wins when set.
type Mapping struct {
	FullName  string `json:"fullName,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Validate checks that m can produce a name.
func (m Mapping) Validate() error {
	if strings.TrimSpace(m.FullName) != "" {
		return nil
	}
	if strings.TrimSpace(m.FirstName) != "" && strings.TrimSpace(m.LastName) != "" {
		return nil
	}
	return ErrEmptyMapping
}

// Names extracts trimmed, non-empty, deduplicated names in first-seen order.
func Names(t *csvparse.Table, m Mapping) ([]string, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var pick func(row []string) string
	if full := strings.TrimSpace(m.FullName); full != "" {
		idx, ok := csvparse.FindHeader(t.Headers, full)
		if !ok {
			return nil, &csvparse.MissingColumnError{Field: FieldFullName, Mapped: full}
		}
		pick = func(row []string) string { return strings.TrimSpace(csvparse.Cell(row, idx)) }
	} else {
		fi, ok := csvparse.FindHeader(t.Headers, m.FirstName)
		if !ok {
			return nil, &csvparse.MissingColumnError{Field: csvparse.FirstName, Mapped: m.FirstName}
		}
		li, ok := csvparse.FindHeader(t.Headers, m.LastName)
		if !ok {
			return nil, &csvparse.MissingColumnError{Field: csvparse.LastName, Mapped: m.LastName}
		}
		pick = func(row []string) string {
			return strings.TrimSpace(strings.TrimSpace(csvparse.Cell(row, fi)) + " " + strings.TrimSpace(csvparse.Cell(row, li)))
		}
	}

	names := make([]string, 0, len(t.Rows))
	seen := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		name := pick(row)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// Partition returns the roster names, trimmed and non-empty, that are not in
// offenders. Comparison is exact and case-sensitive; roster order is kept.
func Partition(names, offenders []string) []string {
	risk := make(map[string]struct{}, len(offenders))
	for _, o := range offenders {
		if o = strings.TrimSpace(o); o != "" {
			risk[o] = struct{}{}
		}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, excluded := risk[n]; excluded {
			continue
		}
		out = append(out, n)
	}
	return out
}
