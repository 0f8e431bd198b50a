package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sqlassist/sqlassist-go/internal/database"
	"github.com/sqlassist/sqlassist-go/internal/importer"
	"github.com/sqlassist/sqlassist-go/internal/query"
)

const passengers = `Passenger Id,Passenger Class,Age,Raw Predicted Score
1,3,22,0.12
2,1,38,0.91
3,3,26,0.55
4,1,35,0.88
`

type fakeTranslator struct {
	sql    string
	err    error
	schema string
	delay  time.Duration
}

func (f *fakeTranslator) Translate(ctx context.Context, question, relationName, schema string) (string, error) {
	f.schema = schema
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.sql, f.err
}

func newTestAssistant(t *testing.T, tr *fakeTranslator, opts Options) *Assistant {
	t.Helper()
	db, err := database.Open(database.EngineSQLite, "")
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	opts.HasHeader = true
	if tr == nil {
		return New(db, query.NewExecutor(db), nil, opts)
	}
	return New(db, query.NewExecutor(db), tr, opts)
}

func TestQueryWithoutDataset(t *testing.T) {
	a := newTestAssistant(t, &fakeTranslator{}, Options{})
	if _, err := a.Query(context.Background(), "SELECT 1"); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Query() error = %v, want ErrNoDataset", err)
	}
	if _, err := a.Ask(context.Background(), "anything?"); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Ask() error = %v, want ErrNoDataset", err)
	}
	if a.Relation() != nil {
		t.Error("Relation() should be nil before a load")
	}
}

func TestLoadReaderAndQuery(t *testing.T) {
	a := newTestAssistant(t, nil, Options{})
	ctx := context.Background()

	rel, err := a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv")
	if err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}
	if rel.Name != "data" || rel.RowCount != 4 {
		t.Errorf("relation = %+v", rel)
	}
	if a.Relation() != rel {
		t.Error("Relation() does not return the loaded relation")
	}

	result, err := a.Query(ctx, `SELECT COUNT(*) FROM data WHERE "Passenger Class" = 3`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Repair == nil || result.Rows[0][0] != int64(2) {
		t.Errorf("result = %+v", result)
	}
}

func TestAsk(t *testing.T) {
	tr := &fakeTranslator{sql: "SELECT passenger_id FROM data WHERE passenger_class = 1 ORDER BY 1"}
	a := newTestAssistant(t, tr, Options{})
	ctx := context.Background()

	if _, err := a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv"); err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}

	answer, err := a.Ask(ctx, "Which first class passengers are there?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.SQL != tr.sql {
		t.Errorf("SQL = %q, want %q", answer.SQL, tr.sql)
	}
	if !strings.Contains(tr.schema, `- passenger_class (INTEGER) [from "Passenger Class"]`) {
		t.Errorf("schema passed to translator:\n%s", tr.schema)
	}
	if answer.Result.Repaired() {
		t.Errorf("unexpected repair: %+v", answer.Result.Repair)
	}
	if answer.Result.RowCount() != 2 || answer.Result.Rows[0][0] != int64(2) || answer.Result.Rows[1][0] != int64(4) {
		t.Errorf("rows = %v", answer.Result.Rows)
	}
}

func TestAskRepairs(t *testing.T) {
	tr := &fakeTranslator{sql: `SELECT passenger_id FROM data WHERE "raw predicted" > 0.8 ORDER BY 1`}
	a := newTestAssistant(t, tr, Options{})
	ctx := context.Background()

	if _, err := a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv"); err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}
	answer, err := a.Ask(ctx, "Who is likely to survive?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Result.Repair == nil || answer.Result.Repair.Strategy != query.StrategyFuzzySubstring {
		t.Errorf("Repair = %+v", answer.Result.Repair)
	}
	if answer.Result.RowCount() != 2 {
		t.Errorf("RowCount() = %d, want 2", answer.Result.RowCount())
	}
}

func TestAskErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no translator", func(t *testing.T) {
		a := newTestAssistant(t, nil, Options{})
		a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv")
		if _, err := a.Ask(ctx, "q"); !errors.Is(err, ErrNoTranslator) {
			t.Errorf("Ask() error = %v, want ErrNoTranslator", err)
		}
	})

	t.Run("translator failure", func(t *testing.T) {
		boom := errors.New("boom")
		a := newTestAssistant(t, &fakeTranslator{err: boom}, Options{})
		a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv")
		_, err := a.Ask(ctx, "q")
		var trErr *TranslationError
		if !errors.As(err, &trErr) || !errors.Is(err, boom) {
			t.Errorf("Ask() error = %v, want *TranslationError wrapping boom", err)
		}
	})

	t.Run("repair failure keeps sql", func(t *testing.T) {
		a := newTestAssistant(t, &fakeTranslator{sql: "SELECT ticket FROM data"}, Options{})
		a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv")
		answer, err := a.Ask(ctx, "q")
		var repairErr *query.RepairError
		if !errors.As(err, &repairErr) {
			t.Fatalf("Ask() error = %v, want *query.RepairError", err)
		}
		if answer == nil || answer.SQL != "SELECT ticket FROM data" {
			t.Errorf("answer = %+v", answer)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		a := newTestAssistant(t, &fakeTranslator{sql: "SELECT 1", delay: time.Second}, Options{QueryTimeout: 20 * time.Millisecond})
		a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv")
		if _, err := a.Ask(ctx, "q"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Ask() error = %v, want deadline exceeded", err)
		}
	})
}

func TestLoadErrorKeepsPreviousRelation(t *testing.T) {
	a := newTestAssistant(t, nil, Options{})
	ctx := context.Background()

	first, err := a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv")
	if err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}
	_, err = a.LoadReader(ctx, strings.NewReader("a,b\n1,2,3\n"), "bad.csv")
	var loadErr *importer.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("LoadReader() error = %v, want *importer.LoadError", err)
	}
	if a.Relation() != first {
		t.Error("failed load replaced the session relation")
	}
}

func TestInterruptedReloadForgetsRelation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := false
	a := newTestAssistant(t, nil, Options{
		Progress: func(stage importer.Stage, rows int64) {
			if interrupt && stage == importer.StageWrite {
				cancel()
			}
		},
	})
	if _, err := a.LoadReader(ctx, strings.NewReader(passengers), "upload.csv"); err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}

	var big strings.Builder
	big.WriteString("id\n")
	for i := 0; i <= database.BatchSize; i++ {
		big.WriteString("1\n")
	}
	interrupt = true
	_, err := a.LoadReader(ctx, strings.NewReader(big.String()), "big.csv")
	var loadErr *importer.LoadError
	if !errors.As(err, &loadErr) || !loadErr.TableReplaced {
		t.Fatalf("LoadReader() error = %v, want *importer.LoadError after replacing the table", err)
	}
	if rel := a.Relation(); rel != nil {
		t.Errorf("Relation() = %+v, want nil", rel)
	}
	if _, err := a.Query(context.Background(), "SELECT COUNT(*) FROM data"); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Query() error = %v, want ErrNoDataset", err)
	}
}

func TestAttach(t *testing.T) {
	a := newTestAssistant(t, nil, Options{TableName: "people"})
	ctx := context.Background()

	if _, err := a.Attach(ctx); err == nil {
		t.Error("Attach() expected error before the table exists")
	}
	if _, err := a.LoadReader(ctx, strings.NewReader(passengers), "people.csv"); err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}
	rel, err := a.Attach(ctx)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if rel.Name != "people" || rel.RowCount != 4 || len(rel.Columns) != 4 {
		t.Errorf("relation = %+v", rel)
	}
}
