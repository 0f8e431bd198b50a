package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sqlassist/sqlassist-go/internal/database"
)

// ExecutionError is returned when a query fails and no repair applies.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Kind returns the engine error kind, or KindOther.
func (e *ExecutionError) Kind() database.ErrorKind {
	return kindOf(e.Err)
}

// Attempt is one rewritten query the repair engine tried.
type Attempt struct {
	Strategy string
	Query    string
	Err      error
}

// RepairError is returned when every rewrite of a query failed. The message
// carries the original error and the real column names so the caller can fix
// the query by hand.
type RepairError struct {
	Query    string
	Cause    error
	Columns  []string
	Attempts []Attempt
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("Query error: %v\n\nAvailable columns: %s", e.Cause, strings.Join(e.Columns, ", "))
}

func (e *RepairError) Unwrap() error { return e.Cause }

// Kind returns the engine error kind of the original failure.
func (e *RepairError) Kind() database.ErrorKind {
	return kindOf(e.Cause)
}

func kindOf(err error) database.ErrorKind {
	var ee *database.EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return database.KindOther
}
