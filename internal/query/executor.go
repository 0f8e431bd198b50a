// Package query executes SQL against a loaded relation and repairs queries
// that reference columns by their raw header names.
package query

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sqlassist/sqlassist-go/internal/database"
)

// Executor runs queries against one database.
type Executor struct {
	db       *database.DB
	repairer *Repairer
	debug    bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithRepairer replaces the default repairer.
func WithRepairer(r *Repairer) Option {
	return func(e *Executor) { e.repairer = r }
}

// WithoutRepair disables repair; unknown-column failures become
// ExecutionErrors.
func WithoutRepair() Option {
	return func(e *Executor) { e.repairer = nil }
}

// WithDebug enables [QUERY] and [REPAIR] log lines.
func WithDebug(debug bool) Option {
	return func(e *Executor) { e.debug = debug }
}

// NewExecutor returns an executor with the default repair strategies.
func NewExecutor(db *database.DB, opts ...Option) *Executor {
	e := &Executor{db: db, repairer: NewRepairer()}
	for _, opt := range opts {
		opt(e)
	}
	if e.repairer != nil && e.debug {
		e.repairer.Debug = true
	}
	return e
}

// RepairEnabled reports whether failed queries are rewritten.
func (e *Executor) RepairEnabled() bool {
	return e.repairer != nil
}

// Execute runs q verbatim. If it fails because a column does not exist and
// repair is enabled, the repair strategies are tried in order. Failures are
// returned as *ExecutionError or *RepairError.
func (e *Executor) Execute(ctx context.Context, rel *database.Relation, q string) (*Result, error) {
	start := time.Now()
	result, err := e.run(ctx, rel, q)
	if err == nil {
		if e.debug {
			log.Printf("[QUERY] %d rows in %v", result.RowCount(), time.Since(start))
		}
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &ExecutionError{Query: q, Err: ctxErr}
	}

	var ee *database.EngineError
	if e.repairer == nil || !errors.As(err, &ee) || ee.Kind != database.KindColumnNotFound || rel == nil {
		if e.debug {
			log.Printf("[QUERY] failed after %v: %v", time.Since(start), err)
		}
		return nil, &ExecutionError{Query: q, Err: err}
	}

	if e.debug {
		log.Printf("[QUERY] %v, trying repair", err)
	}
	return e.Repair(ctx, rel, q, err)
}

// Repair tries the repair strategies for q, which failed with cause.
func (e *Executor) Repair(ctx context.Context, rel *database.Relation, q string, cause error) (*Result, error) {
	r := e.repairer
	if r == nil {
		r = NewRepairer()
	}
	return r.repair(ctx, e.run, rel, q, cause)
}

// run executes one statement on the read-only pool and classifies its error.
// The statement runs inside a transaction that is always rolled back, so
// the loaded relation never changes.
func (e *Executor) run(ctx context.Context, rel *database.Relation, q string) (*Result, error) {
	if e.db.Dialect.LenientQuotes() && rel != nil {
		if err := checkQuotedIdentifiers(q, rel); err != nil {
			return nil, err
		}
	}

	tx, err := e.db.Reader().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, database.Classify(e.db.Dialect, err)
	}
	defer rows.Close()

	result, err := fetchRows(rows)
	if err != nil {
		return nil, database.Classify(e.db.Dialect, err)
	}
	return result, nil
}
