// Package assistant holds one session: a single loaded relation plus the
// executor and translator that answer queries and questions about it.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/sqlassist/sqlassist-go/internal/database"
	"github.com/sqlassist/sqlassist-go/internal/importer"
	"github.com/sqlassist/sqlassist-go/internal/query"
	"github.com/sqlassist/sqlassist-go/internal/remote"
	"github.com/sqlassist/sqlassist-go/internal/translator"
)

var (
	// ErrNoDataset is returned when a query arrives before any load.
	ErrNoDataset = errors.New("no dataset loaded")
	// ErrNoTranslator is returned by Ask when no translator is configured.
	ErrNoTranslator = errors.New("no translator configured")
)

// TranslationError wraps a failure of the translator backend.
type TranslationError struct {
	Err error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate question: %v", e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Options configures an Assistant.
type Options struct {
	TableName    string
	Delimiter    rune // 0 detects from the source name
	HasHeader    bool
	QueryTimeout time.Duration // 0 disables
	Remote       remote.Config
	Progress     importer.ProgressCallback
	Debug        bool
}

// Answer is the outcome of a question.
type Answer struct {
	Question string        `json:"question"`
	SQL      string        `json:"sql"`
	Result   *query.Result `json:"result"`
}

// Assistant serializes interactions with one dataset.
type Assistant struct {
	db         *database.DB
	executor   *query.Executor
	translator translator.Translator
	opts       Options

	mu  sync.Mutex
	rel *database.Relation
}

// New returns an assistant. tr may be nil, in which case Ask fails with
// ErrNoTranslator.
func New(db *database.DB, executor *query.Executor, tr translator.Translator, opts Options) *Assistant {
	if opts.TableName == "" {
		opts.TableName = importer.DefaultTableName
	}
	return &Assistant{db: db, executor: executor, translator: tr, opts: opts}
}

func (a *Assistant) loadOptions(source string) importer.Options {
	return importer.Options{
		Source:    source,
		TableName: a.opts.TableName,
		Delimiter: a.opts.Delimiter,
		HasHeader: a.opts.HasHeader,
		Progress:  a.opts.Progress,
		Debug:     a.opts.Debug,
	}
}

// Load replaces the session relation with the dataset at location.
func (a *Assistant) Load(ctx context.Context, location string) (*database.Relation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rel, err := importer.LoadLocation(ctx, a.db, location, a.loadOptions(location), a.opts.Remote)
	if err != nil {
		a.dropRelationIfReplaced(err)
		return nil, err
	}
	a.rel = rel
	return rel, nil
}

// LoadReader replaces the session relation with the dataset read from r.
// sourceName is used for errors and delimiter detection.
func (a *Assistant) LoadReader(ctx context.Context, r io.Reader, sourceName string) (*database.Relation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	opts := a.loadOptions(sourceName)
	if opts.Delimiter == 0 {
		opts.Delimiter = importer.DetectDelimiter(sourceName)
	}
	rel, err := importer.Load(ctx, a.db, r, opts)
	if err != nil {
		a.dropRelationIfReplaced(err)
		return nil, err
	}
	a.rel = rel
	return rel, nil
}

// dropRelationIfReplaced forgets the session relation when a failed load
// already removed its table. Callers hold a.mu.
func (a *Assistant) dropRelationIfReplaced(err error) {
	var loadErr *importer.LoadError
	if errors.As(err, &loadErr) && loadErr.TableReplaced && a.rel != nil && a.rel.Name == a.opts.TableName {
		a.rel = nil
	}
}

// Attach adopts a table that already exists in the database, e.g. one kept
// in a persistent database by an earlier run.
func (a *Assistant) Attach(ctx context.Context) (*database.Relation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rel, err := importer.Describe(ctx, a.db, a.opts.TableName)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", a.opts.TableName, err)
	}
	a.rel = rel
	return rel, nil
}

// Relation returns the loaded relation or nil.
func (a *Assistant) Relation() *database.Relation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rel
}

// HasTranslator reports whether Ask can be used.
func (a *Assistant) HasTranslator() bool {
	return a.translator != nil
}

func (a *Assistant) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.QueryTimeout > 0 {
		return context.WithTimeout(ctx, a.opts.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// Query executes SQL against the loaded relation.
func (a *Assistant) Query(ctx context.Context, sql string) (*query.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rel == nil {
		return nil, ErrNoDataset
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	return a.executor.Execute(ctx, a.rel, sql)
}

// Ask translates question into SQL and executes it. The timeout covers
// translation and execution together.
func (a *Assistant) Ask(ctx context.Context, question string) (*Answer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rel == nil {
		return nil, ErrNoDataset
	}
	if a.translator == nil {
		return nil, ErrNoTranslator
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	sql, err := a.translator.Translate(ctx, question, a.rel.Name, a.rel.Describe())
	if err != nil {
		return nil, &TranslationError{Err: err}
	}
	if a.opts.Debug {
		log.Printf("[ASK] Translated in %v: %s", time.Since(start), sql)
	}

	answer := &Answer{Question: question, SQL: sql}
	result, err := a.executor.Execute(ctx, a.rel, sql)
	if err != nil {
		return answer, err
	}
	answer.Result = result
	return answer, nil
}
