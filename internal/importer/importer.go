package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/trace"
	"time"
	"unicode/utf8"

	"github.com/sqlassist/sqlassist-go/internal/database"
	"github.com/sqlassist/sqlassist-go/internal/remote"
)

// DefaultTableName is the relation name used when none is given.
const DefaultTableName = "data"

// ErrEmptySource is returned when a source has no header and no rows.
var ErrEmptySource = errors.New("source is empty")

// LoadError reports why a source could not be turned into a relation.
// TableReplaced is set when the failure happened after the previous table
// was dropped; the partial table has been removed again.
type LoadError struct {
	Source        string
	Err           error
	TableReplaced bool
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("load failed: %v", e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Stage names a phase of a load for progress reporting.
type Stage string

const (
	StageParse Stage = "parse"
	StageWrite Stage = "write"
)

// ProgressCallback is called periodically while parsing (every 1000 rows)
// and after each batch is written.
type ProgressCallback func(stage Stage, rows int64)

// Options controls how a source is parsed and stored.
type Options struct {
	// Source names the input in errors and logs.
	Source    string
	TableName string
	// Delimiter defaults to ','.
	Delimiter rune
	HasHeader bool
	Progress  ProgressCallback
	Debug     bool
}

func (o Options) withDefaults() Options {
	if o.TableName == "" {
		o.TableName = DefaultTableName
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	return o
}

// Parsed holds the raw content of a CSV/TSV source.
type Parsed struct {
	Headers []string
	Rows    [][]string
}

// Parse reads a whole CSV/TSV source into memory. Without a header row the
// columns are named col1..colN. A row with more fields than the header, or a
// cell that is not valid UTF-8, is an error; shorter rows are kept as they are.
func Parse(r io.Reader, delimiter rune, hasHeader bool, progress ProgressCallback) (*Parsed, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := checkUTF8(first, 1); err != nil {
		return nil, err
	}

	parsed := &Parsed{}
	if hasHeader {
		parsed.Headers = first
	} else {
		parsed.Headers = make([]string, len(first))
		for i := range parsed.Headers {
			parsed.Headers[i] = fmt.Sprintf("col%d", i+1)
		}
		parsed.Rows = append(parsed.Rows, first)
	}

	rowCount := int64(len(parsed.Rows))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		line, _ := reader.FieldPos(0)
		if len(record) > len(parsed.Headers) {
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(record), len(parsed.Headers))
		}
		if err := checkUTF8(record, line); err != nil {
			return nil, err
		}

		parsed.Rows = append(parsed.Rows, record)
		rowCount++

		if progress != nil && rowCount%1000 == 0 {
			progress(StageParse, rowCount)
		}
	}

	if progress != nil {
		progress(StageParse, rowCount)
	}

	return parsed, nil
}

func checkUTF8(record []string, line int) error {
	for i, cell := range record {
		if !utf8.ValidString(cell) {
			return fmt.Errorf("line %d, field %d: invalid UTF-8", line, i+1)
		}
	}
	return nil
}

// Load parses the source, replaces the relation's table and inserts every row
// in batches of database.BatchSize. Any failure is returned as *LoadError.
func Load(ctx context.Context, db *database.DB, r io.Reader, opts Options) (*database.Relation, error) {
	opts = opts.withDefaults()

	ctx, task := trace.NewTask(ctx, "Load")
	defer task.End()

	start := time.Now()
	replaced := false
	fail := func(err error) (*database.Relation, error) {
		if opts.Debug {
			log.Printf("[LOAD] %s failed after %v: %v", opts.Source, time.Since(start), err)
		}
		if replaced {
			if dropErr := database.DropTable(context.WithoutCancel(ctx), db, opts.TableName); dropErr != nil {
				err = errors.Join(err, dropErr)
			}
		}
		return nil, &LoadError{Source: opts.Source, Err: err, TableReplaced: replaced}
	}

	var parsed *Parsed
	var err error
	trace.WithRegion(ctx, "parse", func() {
		parsed, err = Parse(r, opts.Delimiter, opts.HasHeader, opts.Progress)
	})
	if err != nil {
		return fail(err)
	}
	if opts.Debug {
		log.Printf("[LOAD] Parsed %s: %d columns, %d rows in %v", opts.Source, len(parsed.Headers), len(parsed.Rows), time.Since(start))
	}

	rel := database.BuildRelation(opts.TableName, parsed.Headers, parsed.Rows)
	replaced = true
	if err := database.CreateTable(ctx, db, rel); err != nil {
		return fail(err)
	}

	rowsWritten := int64(0)
	for i := 0; i < len(parsed.Rows); i += database.BatchSize {
		end := i + database.BatchSize
		if end > len(parsed.Rows) {
			end = len(parsed.Rows)
		}
		batch := parsed.Rows[i:end]
		if err := database.InsertBatch(ctx, db, rel, batch); err != nil {
			return fail(fmt.Errorf("failed to insert batch: %w", err))
		}
		rowsWritten += int64(len(batch))

		if opts.Progress != nil {
			opts.Progress(StageWrite, rowsWritten)
		}
	}

	if opts.Debug {
		log.Printf("[LOAD] Loaded %s into %s (%d rows) in %v", opts.Source, rel.Name, rel.RowCount, time.Since(start))
	}
	return rel, nil
}

// LoadLocation opens a location (see OpenSource) and loads it. A zero
// delimiter is detected from the location's extension.
func LoadLocation(ctx context.Context, db *database.DB, location string, opts Options, cfg remote.Config) (*database.Relation, error) {
	if opts.Source == "" {
		opts.Source = location
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = DetectDelimiter(location)
	}

	src, err := OpenSource(ctx, location, cfg)
	if err != nil {
		return nil, &LoadError{Source: opts.Source, Err: fmt.Errorf("failed to open source: %w", err)}
	}
	defer src.Close()

	return Load(ctx, db, src, opts)
}

// Describe rebuilds the relation for a table that already exists in db.
func Describe(ctx context.Context, db *database.DB, tableName string) (*database.Relation, error) {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return database.DescribeTable(ctx, db, tableName)
}
