package manifest

import (
	"fmt"
	"strings"
)

// ParseError reports a malformed row.
type ParseError struct {
	File   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s:%d: %s", e.File, e.Line, e.Reason)
}

// OrphanError reports auxiliary rows whose key is not in the reference set.
type OrphanError struct {
	Table string
	Keys  []string
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("%s: %d orphaned rows (first: %s)", e.Table, len(e.Keys), FirstN(e.Keys, 5))
}

// FirstN joins at most n items for error messages.
func FirstN(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:n], ", ") + fmt.Sprintf(", ... (+%d)", len(items)-n)
}
