package csvparse

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for CSV parsing.
var (
	ErrNoHeader = errors.New("no header row detected in CSV")
)

// MissingColumnError reports a required field that no header resolved to.
// When Mapped is set the caller named an explicit header that is absent.
type MissingColumnError struct {
	Field  Field
	Tried  []string
	Mapped string
}

func (e *MissingColumnError) Error() string {
	if e.Mapped != "" {
		return fmt.Sprintf("mapping for %q refers to missing column %q", e.Field, e.Mapped)
	}
	return fmt.Sprintf("missing required column %q (tried: %s)", e.Field, strings.Join(e.Tried, ", "))
}
