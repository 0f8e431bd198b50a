package database

import (
	"strconv"
	"strings"
)

// unnamedColumn replaces headers that are empty.
const unnamedColumn = "unnamed"

// SanitizeColumnName turns an arbitrary CSV header into a SQL-safe identifier.
// - Replaces spaces and every other character outside [A-Za-z0-9_] with underscores
// - Prefixes with "col_" if the name starts with a digit
// - Lowercases the result
// - Returns "unnamed" for empty names
func SanitizeColumnName(name string) string {
	if name == "" {
		return unnamedColumn
	}

	var b strings.Builder
	b.Grow(len(name) + 4)
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}

	sanitized := b.String()
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "col_" + sanitized
	}
	return sanitized
}

// Sanitizer assigns unique sanitized names for the columns of one load.
// Names are handed out in call order, so callers must feed headers in
// source column order to get a deterministic result.
type Sanitizer struct {
	assigned map[string]bool
}

// NewSanitizer returns a Sanitizer with no names assigned.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{assigned: make(map[string]bool)}
}

// Assign sanitizes raw and disambiguates it against every name assigned so
// far. The first holder of a name keeps it; later collisions get the smallest
// free numeric suffix starting at _2.
func (s *Sanitizer) Assign(raw string) string {
	base := SanitizeColumnName(raw)
	name := base
	for n := 2; s.assigned[name]; n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	s.assigned[name] = true
	return name
}

// SanitizeHeaders applies a fresh Sanitizer to headers in order.
func SanitizeHeaders(headers []string) []string {
	s := NewSanitizer()
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = s.Assign(h)
	}
	return out
}
