// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
	"unicode"
)

// CollapseSpaces trims s and collapses internal whitespace runs to one space.
//
// Example:
//
//	CollapseSpaces("  Juan   Derry ")
//	// Returns: "Juan Derry"
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// AnyContainsFold reports whether substr, trimmed, is within any of values,
// ignoring case. A blank substr matches everything.
func AnyContainsFold(substr string, values ...string) bool {
	substr = strings.TrimSpace(substr)
	if substr == "" {
		return true
	}
	for _, v := range values {
		if ContainsFold(v, substr) {
			return true
		}
	}
	return false
}

// Slug lowercases s and replaces every run of non-alphanumeric runes with a
// single underscore.
//
// Example:
//
//	Slug("Surat Tugas (final).pdf")
//	// Returns: "surat_tugas_final_pdf"
func Slug(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
