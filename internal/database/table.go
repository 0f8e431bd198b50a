package database

import (
	"context"
	"fmt"
	"strings"
)

const (
	// BatchSize is the number of rows to insert in a single transaction.
	BatchSize = 10000
)

// CreateTable creates the table backing rel, typed per column.
// Drops the table first if it already exists.
func CreateTable(ctx context.Context, db *DB, rel *Relation) error {
	q := db.Dialect.QuoteIdent
	if err := DropTable(ctx, db, rel.Name); err != nil {
		return err
	}

	columns := make([]string, len(rel.Columns))
	for i, col := range rel.Columns {
		columns[i] = strings.TrimSpace(q(col.Name) + " " + db.Dialect.TypeName(col.Type))
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", q(rel.Name), strings.Join(columns, ", "))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// DropTable removes a table if it exists.
func DropTable(ctx context.Context, db *DB, tableName string) error {
	dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", db.Dialect.QuoteIdent(tableName))
	if _, err := db.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return nil
}

// InsertBatch inserts a batch of raw rows into rel's table within a
// transaction. Cells are converted per column type; missing cells are NULL.
func InsertBatch(ctx context.Context, db *DB, rel *Relation, batch [][]string) error {
	if len(batch) == 0 {
		return nil
	}

	q := db.Dialect.QuoteIdent
	names := make([]string, len(rel.Columns))
	placeholders := make([]string, len(rel.Columns))
	for i, col := range rel.Columns {
		names[i] = q(col.Name)
		placeholders[i] = "?"
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		q(rel.Name),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	values := make([]interface{}, len(rel.Columns))
	for _, row := range batch {
		for i, col := range rel.Columns {
			if i < len(row) {
				values[i] = ConvertCell(row[i], col.Type)
			} else {
				values[i] = nil
			}
		}

		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// TableColumn is one row of the engine's table_info pragma.
type TableColumn struct {
	Name string
	Type string
}

// GetTableColumns returns the columns of a table in declaration order.
func GetTableColumns(ctx context.Context, db *DB, tableName string) ([]TableColumn, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", quoteLiteral(tableName))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get table info: %w", err)
	}
	defer rows.Close()

	var columns []TableColumn
	for rows.Next() {
		var cid int
		var name string
		var ctype, notnull, dfltValue, pk interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		col := TableColumn{Name: name}
		switch v := ctype.(type) {
		case string:
			col.Type = v
		case []byte:
			col.Type = string(v)
		}
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table '%s' does not exist", tableName)
	}

	return columns, nil
}

// DescribeTable rebuilds a Relation from a table that already exists, e.g.
// one kept in a persistent database from an earlier run. Raw headers are no
// longer known, so they equal the stored names.
func DescribeTable(ctx context.Context, db *DB, tableName string) (*Relation, error) {
	cols, err := GetTableColumns(ctx, db, tableName)
	if err != nil {
		return nil, err
	}

	rel := &Relation{Name: tableName, Columns: make([]Column, len(cols))}
	for i, c := range cols {
		rel.Columns[i] = Column{Raw: c.Name, Name: c.Name, Type: parseDeclType(c.Type)}
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s", db.Dialect.QuoteIdent(tableName))
	if err := db.QueryRowContext(ctx, countSQL).Scan(&rel.RowCount); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return rel, nil
}

func parseDeclType(decl string) ColumnType {
	switch strings.ToUpper(decl) {
	case "INTEGER", "BIGINT", "INT", "HUGEINT":
		return ColumnTypeInteger
	case "REAL", "DOUBLE", "FLOAT":
		return ColumnTypeReal
	case "":
		return ColumnTypeUnknown
	default:
		return ColumnTypeText
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ValidateColumns checks if all specified columns exist in the table.
// Returns an error listing any missing columns.
func ValidateColumns(ctx context.Context, db *DB, tableName string, columns []string) error {
	tableColumns, err := GetTableColumns(ctx, db, tableName)
	if err != nil {
		return err
	}

	// Build a set of existing columns (case-insensitive)
	existing := make(map[string]bool)
	for _, col := range tableColumns {
		existing[strings.ToLower(col.Name)] = true
	}

	var missing []string
	for _, col := range columns {
		if !existing[strings.ToLower(col)] && !existing[SanitizeColumnName(col)] {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("columns not found in table '%s': %s", tableName, strings.Join(missing, ", "))
	}

	return nil
}

// CreateIndex creates an index on the specified column for a table.
// The column may be given by its raw header; it is sanitized the same way
// the loader sanitized it.
func CreateIndex(ctx context.Context, db *DB, tableName, column string) error {
	if err := ValidateColumns(ctx, db, tableName, []string{column}); err != nil {
		return err
	}

	name := SanitizeColumnName(column)
	indexName := fmt.Sprintf("idx_%s_%s", tableName, name)

	q := db.Dialect.QuoteIdent
	createSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", q(indexName), q(tableName), q(name))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create index on %s.%s: %w", tableName, column, err)
	}

	return nil
}

// CreateIndexes creates indexes on multiple columns for a table.
// Validates all columns exist before creating any indexes.
func CreateIndexes(ctx context.Context, db *DB, tableName string, columns []string) error {
	if len(columns) == 0 {
		return nil
	}

	if err := ValidateColumns(ctx, db, tableName, columns); err != nil {
		return err
	}

	for _, column := range columns {
		if err := CreateIndex(ctx, db, tableName, column); err != nil {
			return err
		}
	}

	return nil
}
