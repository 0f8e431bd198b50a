package database

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnType is the inferred storage type of a column.
type ColumnType int

const (
	// ColumnTypeText holds arbitrary strings.
	ColumnTypeText ColumnType = iota
	// ColumnTypeInteger holds columns whose non-empty cells all parse as int64.
	ColumnTypeInteger
	// ColumnTypeReal holds columns whose non-empty cells all parse as float64.
	ColumnTypeReal
	// ColumnTypeUnknown marks columns without a single non-empty cell.
	ColumnTypeUnknown
)

// String returns the SQL-ish name of the type.
func (ct ColumnType) String() string {
	switch ct {
	case ColumnTypeInteger:
		return "INTEGER"
	case ColumnTypeReal:
		return "REAL"
	case ColumnTypeUnknown:
		return "NULL"
	default:
		return "TEXT"
	}
}

// Column describes one column of a Relation.
type Column struct {
	Raw  string // header as it appeared in the source
	Name string // sanitized identifier used in the table
	Type ColumnType
}

// MappingEntry pairs a raw header with its sanitized name.
type MappingEntry struct {
	Raw       string `json:"original"`
	Sanitized string `json:"sanitized"`
}

// ColumnMapping lists raw → sanitized names in source column order.
type ColumnMapping []MappingEntry

// Relation is a named table loaded from one dataset. It is never mutated
// after creation; loading again replaces it.
type Relation struct {
	Name     string
	Columns  []Column
	RowCount int
}

// ColumnNames returns the sanitized column names in table order.
func (r *Relation) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Mapping returns the raw → sanitized mapping for display.
func (r *Relation) Mapping() ColumnMapping {
	m := make(ColumnMapping, len(r.Columns))
	for i, c := range r.Columns {
		m[i] = MappingEntry{Raw: c.Raw, Sanitized: c.Name}
	}
	return m
}

// Describe renders the schema as a bullet list, one column per line. Raw
// headers that differ from the sanitized name are appended so a reader can
// match them up.
func (r *Relation) Describe() string {
	var b strings.Builder
	for _, c := range r.Columns {
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Type)
		if c.Raw != c.Name {
			fmt.Fprintf(&b, " [from %q]", c.Raw)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildRelation sanitizes headers and infers one type per column from rows.
func BuildRelation(name string, headers []string, rows [][]string) *Relation {
	sanitized := SanitizeHeaders(headers)
	rel := &Relation{
		Name:     name,
		Columns:  make([]Column, len(headers)),
		RowCount: len(rows),
	}
	for i, h := range headers {
		rel.Columns[i] = Column{
			Raw:  h,
			Name: sanitized[i],
			Type: InferColumnType(rows, i),
		}
	}
	return rel
}

// InferColumnType inspects column idx of rows. Missing cells count as empty.
func InferColumnType(rows [][]string, idx int) ColumnType {
	seen := false
	isInt, isReal := true, true
	for _, row := range rows {
		if idx >= len(row) || row[idx] == "" {
			continue
		}
		seen = true
		cell := row[idx]
		if isInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				isInt = false
			}
		}
		if !isInt && isReal {
			if _, ok := parseDecimal(cell); !ok {
				isReal = false
			}
		}
		if !isInt && !isReal {
			return ColumnTypeText
		}
	}
	switch {
	case !seen:
		return ColumnTypeUnknown
	case isInt:
		return ColumnTypeInteger
	default:
		return ColumnTypeReal
	}
}

// parseDecimal parses a plain decimal number. strconv.ParseFloat also takes
// NaN, Inf, Infinity and hex floats; those cells stay text.
func parseDecimal(cell string) (float64, bool) {
	for i := 0; i < len(cell); i++ {
		if strings.IndexByte("0123456789+-.eE", cell[i]) < 0 {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(cell, 64)
	return v, err == nil
}

// ConvertCell turns a raw cell into the value stored for a column type.
// Empty cells become NULL.
func ConvertCell(cell string, ct ColumnType) interface{} {
	if cell == "" {
		return nil
	}
	switch ct {
	case ColumnTypeInteger:
		if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return v
		}
	case ColumnTypeReal:
		if v, ok := parseDecimal(cell); ok {
			return v
		}
	}
	return cell
}
