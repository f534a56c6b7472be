package csvparse

import (
	"strings"
	"unicode"
)

// Field is a canonical training-row field.
type Field string

// Canonical fields, all required.
const (
	FirstName Field = "firstName"
	LastName  Field = "lastName"
	Status    Field = "status"
	Title     Field = "title"
	SentDate  Field = "sentDate"
)

// RequiredFields lists the fields every training CSV must resolve.
var RequiredFields = []Field{FirstName, LastName, Status, Title, SentDate} //nolint:gochecknoglobals // fixed table

// Aliases are tried in order; the first one present in the header row wins.
// "type" is treated as a synonym of status.
var Aliases = map[Field][]string{ //nolint:gochecknoglobals // fixed table
	FirstName: {"first name", "user first name", "given name", "forename"},
	LastName:  {"last name", "user last name", "surname", "family name"},
	Status:    {"status", "type", "training status", "completion status", "assignment status"},
	Title: {
		"title", "training", "training title", "course", "course title",
		"session", "session name", "module",
	},
	SentDate: {"sent date", "sent date (utc)", "date sent", "assigned date", "assignment date"},
}

// FieldMapping overrides alias resolution with explicit header names.
type FieldMapping map[Field]string

// Columns maps each canonical field to its index in the header row.
type Columns map[Field]int

const bom = "\uFEFF"

// NormalizeHeader strips a BOM, lowercases, drops punctuation and collapses
// whitespace.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, bom)
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// headerKey is the whitespace-free form used for comparisons, so "SentDate"
// and "Sent Date" collide.
func headerKey(h string) string {
	return strings.ReplaceAll(NormalizeHeader(h), " ", "")
}

// FindHeader returns the index of name in headers. An exact match on the
// trimmed header wins; otherwise normalised forms are compared.
func FindHeader(headers []string, name string) (int, bool) {
	want := strings.TrimSpace(name)
	for i, h := range headers {
		if strings.TrimSpace(strings.TrimPrefix(h, bom)) == want {
			return i, true
		}
	}
	key := headerKey(name)
	if key == "" {
		return -1, false
	}
	for i, h := range headers {
		if headerKey(h) == key {
			return i, true
		}
	}
	return -1, false
}

// Resolve maps every required field to a header column. Explicit mapping
// entries take precedence over aliases and must name a present header.
func Resolve(headers []string, mapping FieldMapping) (Columns, error) {
	keys := make(map[string]int, len(headers))
	for i, h := range headers {
		k := headerKey(h)
		if _, dup := keys[k]; !dup && k != "" {
			keys[k] = i
		}
	}

	cols := make(Columns, len(RequiredFields))
	for _, f := range RequiredFields {
		if name := strings.TrimSpace(mapping[f]); name != "" {
			idx, ok := FindHeader(headers, name)
			if !ok {
				return nil, &MissingColumnError{Field: f, Mapped: name}
			}
			cols[f] = idx
			continue
		}
		found := false
		for _, alias := range Aliases[f] {
			if idx, ok := keys[headerKey(alias)]; ok {
				cols[f] = idx
				found = true
				break
			}
		}
		if !found {
			tried := append([]string(nil), Aliases[f]...)
			return nil, &MissingColumnError{Field: f, Tried: tried}
		}
	}
	return cols, nil
}
