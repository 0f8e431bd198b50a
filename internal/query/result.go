package query

import (
	"database/sql"
	"fmt"
)

// RepairInfo records which rewrite produced a result.
type RepairInfo struct {
	Strategy string `json:"strategy"`
	Query    string `json:"query"`
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
	// Repair is set when the result came from a rewritten query.
	Repair *RepairInfo `json:"repair,omitempty"`
}

// Records returns one map per row keyed by column name. Duplicate column
// names keep the rightmost value; use Rows when that matters.
func (r *Result) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]interface{}, len(r.Columns))
		for j, col := range r.Columns {
			rec[col] = row[j]
		}
		out[i] = rec
	}
	return out
}

// RowCount returns the number of rows.
func (r *Result) RowCount() int {
	return len(r.Rows)
}

// Repaired reports whether a rewrite produced the result.
func (r *Result) Repaired() bool {
	return r.Repair != nil
}

// fetchRows reads every row. []byte values are returned as strings.
func fetchRows(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &Result{Columns: columns, Rows: [][]interface{}{}}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
