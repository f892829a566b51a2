package reconcile

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

// Normalize returns the comparison form of a scalar: null becomes "", any
// other value is stringified, trimmed and lowercased. It never fails.
func Normalize(v any) string {
	c := table.FormatValue(v)
	if !c.Valid {
		return ""
	}
	// cases.Caser is stateful, so each call gets its own.
	return cases.Lower(language.Und).String(strings.TrimSpace(c.Value))
}

// Equal reports whether a and b normalize to the same string.
func Equal(a, b any) bool {
	return Normalize(a) == Normalize(b)
}
