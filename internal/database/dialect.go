package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/mattn/go-sqlite3"
)

// Engine names accepted by DialectFor.
const (
	EngineSQLite = "sqlite"
	EngineDuckDB = "duckdb"
)

// Dialect captures what differs between the embedded engines.
type Dialect interface {
	// Name is the engine name used in configuration.
	Name() string
	// Driver is the database/sql driver name.
	Driver() string
	// QuoteIdent quotes an identifier for use in generated DDL/DML.
	QuoteIdent(name string) string
	// TypeName maps an inferred column type to a column declaration type.
	TypeName(ct ColumnType) string
	// Classify inspects a driver error.
	Classify(err error) ErrorKind
	// LenientQuotes reports whether the engine silently treats an unresolved
	// double-quoted identifier as a string literal.
	LenientQuotes() bool
	// OpenReader returns the pool for user queries on the database at path,
	// which primary already has open.
	OpenReader(primary *sql.DB, path string) (*sql.DB, error)
}

// readOnlySQLiteDriver opens connections that refuse writes and ATTACH.
const readOnlySQLiteDriver = "sqlite3_query_only"

func init() {
	sql.Register(readOnlySQLiteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			conn.SetLimit(sqlite3.SQLITE_LIMIT_ATTACHED, 0)
			return nil
		},
	})
}

// DialectFor returns the dialect for an engine name. Empty selects SQLite.
func DialectFor(engine string) (Dialect, error) {
	switch strings.ToLower(engine) {
	case "", EngineSQLite, "sqlite3":
		return sqliteDialect{}, nil
	case EngineDuckDB:
		return duckdbDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s (use 'sqlite' or 'duckdb')", engine)
	}
}

func quoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string   { return EngineSQLite }
func (sqliteDialect) Driver() string { return "sqlite3" }

func (sqliteDialect) QuoteIdent(name string) string { return quoteDouble(name) }

func (sqliteDialect) TypeName(ct ColumnType) string {
	switch ct {
	case ColumnTypeInteger:
		return "INTEGER"
	case ColumnTypeReal:
		return "REAL"
	case ColumnTypeUnknown:
		return ""
	default:
		return "TEXT"
	}
}

func (sqliteDialect) Classify(err error) ErrorKind {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrMismatch {
		return KindTypeMismatch
	}
	// SQLite reports resolution and parse failures with the generic
	// SQLITE_ERROR code; only the message tells them apart.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such column"):
		return KindColumnNotFound
	case strings.Contains(msg, "no such table"):
		return KindTableNotFound
	case strings.Contains(msg, "syntax error"), strings.Contains(msg, "incomplete input"),
		strings.Contains(msg, "unrecognized token"):
		return KindSyntax
	case strings.Contains(msg, "datatype mismatch"):
		return KindTypeMismatch
	}
	return KindOther
}

func (sqliteDialect) LenientQuotes() bool { return true }

func (sqliteDialect) OpenReader(_ *sql.DB, path string) (*sql.DB, error) {
	reader, err := sql.Open(readOnlySQLiteDriver, path+"?_query_only=1")
	if err != nil {
		return nil, err
	}
	if err := reader.Ping(); err != nil {
		reader.Close()
		return nil, err
	}
	return reader, nil
}

type duckdbDialect struct{}

func (duckdbDialect) Name() string   { return EngineDuckDB }
func (duckdbDialect) Driver() string { return "duckdb" }

func (duckdbDialect) QuoteIdent(name string) string { return quoteDouble(name) }

func (duckdbDialect) TypeName(ct ColumnType) string {
	switch ct {
	case ColumnTypeInteger:
		return "BIGINT"
	case ColumnTypeReal:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func (duckdbDialect) Classify(err error) ErrorKind {
	msg := strings.ToLower(err.Error())
	var derr *duckdb.Error
	if errors.As(err, &derr) {
		switch derr.Type {
		case duckdb.ErrorTypeBinder:
			if strings.Contains(msg, "column") && strings.Contains(msg, "not found") {
				return KindColumnNotFound
			}
		case duckdb.ErrorTypeCatalog:
			if strings.Contains(msg, "table") {
				return KindTableNotFound
			}
		case duckdb.ErrorTypeParser, duckdb.ErrorTypeSyntax:
			return KindSyntax
		case duckdb.ErrorTypeConversion, duckdb.ErrorTypeMismatchType:
			return KindTypeMismatch
		}
		return KindOther
	}
	switch {
	case strings.Contains(msg, "referenced column") && strings.Contains(msg, "not found"):
		return KindColumnNotFound
	case strings.Contains(msg, "table with name") && strings.Contains(msg, "does not exist"):
		return KindTableNotFound
	case strings.Contains(msg, "parser error"), strings.Contains(msg, "syntax error"):
		return KindSyntax
	case strings.Contains(msg, "conversion error"):
		return KindTypeMismatch
	}
	return KindOther
}

func (duckdbDialect) LenientQuotes() bool { return false }

// OpenReader shares the primary pool: one process cannot open a DuckDB file
// twice. File access is switched off for the whole instance instead, and the
// setting is locked so queries cannot turn it back on.
func (duckdbDialect) OpenReader(primary *sql.DB, _ string) (*sql.DB, error) {
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := primary.Exec(stmt); err != nil {
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return primary, nil
}
