package query

import (
	"context"
	"log"

	"github.com/sqlassist/sqlassist-go/internal/database"
)

// Candidate is one rewritten query and the strategy that produced it.
type Candidate struct {
	Strategy string
	Query    string
}

// Repairer produces rewrites of queries that failed on an unknown column.
type Repairer struct {
	Strategies []Strategy
	Debug      bool
}

// NewRepairer returns a repairer trying strategies in the given order.
// With no strategies, DefaultStrategies(DefaultFuzzyRules()) is used.
func NewRepairer(strategies ...Strategy) *Repairer {
	if len(strategies) == 0 {
		strategies = DefaultStrategies(DefaultFuzzyRules())
	}
	return &Repairer{Strategies: strategies}
}

// Candidates returns every rewrite of query in strategy order. Rewrites equal
// to the original or to an earlier candidate are dropped.
func (r *Repairer) Candidates(query string, rel *database.Relation) []Candidate {
	seen := map[string]bool{query: true}
	var out []Candidate
	for _, s := range r.Strategies {
		for _, q := range s.Rewrite(query, rel) {
			if seen[q] {
				continue
			}
			seen[q] = true
			out = append(out, Candidate{Strategy: s.Name, Query: q})
		}
	}
	return out
}

// runFunc executes one statement and returns a classified error.
type runFunc func(ctx context.Context, rel *database.Relation, q string) (*Result, error)

// repair tries each candidate until one succeeds. Candidates run read-only
// and independently; their failures are only recorded.
func (r *Repairer) repair(ctx context.Context, run runFunc, rel *database.Relation, original string, cause error) (*Result, error) {
	var attempts []Attempt
	for _, c := range r.Candidates(original, rel) {
		if err := ctx.Err(); err != nil {
			return nil, &ExecutionError{Query: original, Err: err}
		}

		result, err := run(ctx, rel, c.Query)
		if err == nil {
			if r.Debug {
				log.Printf("[REPAIR] %s succeeded: %s", c.Strategy, c.Query)
			}
			result.Repair = &RepairInfo{Strategy: c.Strategy, Query: c.Query}
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ExecutionError{Query: original, Err: ctxErr}
		}

		if r.Debug {
			log.Printf("[REPAIR] %s failed: %s: %v", c.Strategy, c.Query, err)
		}
		attempts = append(attempts, Attempt{Strategy: c.Strategy, Query: c.Query, Err: err})
	}

	return nil, &RepairError{
		Query:    original,
		Cause:    cause,
		Columns:  rel.ColumnNames(),
		Attempts: attempts,
	}
}
