package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sqlassist/sqlassist-go/internal/database"
	"github.com/sqlassist/sqlassist-go/internal/importer"
	"github.com/sqlassist/sqlassist-go/internal/remote"
)

func TestExecuteValidQuery(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineSQLite)
	exec := NewExecutor(db)

	result, err := exec.Execute(context.Background(), rel,
		"SELECT passenger_class, COUNT(*) AS n FROM data GROUP BY passenger_class ORDER BY passenger_class")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Repaired() {
		t.Errorf("Repair = %+v, want nil", result.Repair)
	}
	if !reflect.DeepEqual(result.Columns, []string{"passenger_class", "n"}) {
		t.Errorf("Columns = %v", result.Columns)
	}
	want := [][]interface{}{
		{int64(1), int64(3)},
		{int64(2), int64(1)},
		{int64(3), int64(6)},
	}
	if !reflect.DeepEqual(result.Rows, want) {
		t.Errorf("Rows = %v, want %v", result.Rows, want)
	}
}

func TestExecuteRepairsSpaceColumn(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineSQLite)
	exec := NewExecutor(db)
	ctx := context.Background()

	q := `SELECT "Passenger Class", COUNT(*) AS n FROM data GROUP BY "Passenger Class" ORDER BY 1`
	result, err := exec.Execute(ctx, rel, q)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Repair == nil || result.Repair.Strategy != StrategySpaceColumn {
		t.Fatalf("Repair = %+v, want strategy %s", result.Repair, StrategySpaceColumn)
	}
	wantQuery := "SELECT passenger_class, COUNT(*) AS n FROM data GROUP BY passenger_class ORDER BY 1"
	if result.Repair.Query != wantQuery {
		t.Errorf("Repair.Query = %q, want %q", result.Repair.Query, wantQuery)
	}

	direct, err := exec.Execute(ctx, rel, wantQuery)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !reflect.DeepEqual(result.Rows, direct.Rows) || !reflect.DeepEqual(result.Columns, direct.Columns) {
		t.Errorf("repaired result %v differs from direct result %v", result.Rows, direct.Rows)
	}
}

func TestExecuteRepairsFuzzyPlaceholder(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineSQLite)
	exec := NewExecutor(db)

	result, err := exec.Execute(context.Background(), rel,
		`SELECT name FROM data WHERE "raw predicted" > 0.8 ORDER BY name`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Repair == nil || result.Repair.Strategy != StrategyFuzzySubstring {
		t.Fatalf("Repair = %+v, want strategy %s", result.Repair, StrategyFuzzySubstring)
	}
	if !strings.Contains(result.Repair.Query, `"raw_predicted_score"`) {
		t.Errorf("Repair.Query = %q", result.Repair.Query)
	}
	if result.RowCount() != 3 {
		t.Errorf("RowCount() = %d, want 3", result.RowCount())
	}
}

func TestExecuteRepairFailure(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineSQLite)
	exec := NewExecutor(db)

	_, err := exec.Execute(context.Background(), rel, `SELECT "Passenger Class", "Ticket Number" FROM data`)
	var repairErr *RepairError
	if !errors.As(err, &repairErr) {
		t.Fatalf("Execute() error = %v, want *RepairError", err)
	}
	if repairErr.Kind() != database.KindColumnNotFound {
		t.Errorf("Kind() = %v, want column_not_found", repairErr.Kind())
	}

	var strategies []string
	for _, a := range repairErr.Attempts {
		strategies = append(strategies, a.Strategy)
	}
	wantStrategies := []string{StrategyQuoteStyle, StrategySpaceColumn}
	if !reflect.DeepEqual(strategies, wantStrategies) {
		t.Errorf("attempted strategies = %v, want %v", strategies, wantStrategies)
	}

	msg := err.Error()
	if !strings.Contains(msg, "Available columns:") {
		t.Errorf("message %q lacks column list", msg)
	}
	for _, name := range rel.ColumnNames() {
		if !strings.Contains(msg, name) {
			t.Errorf("message %q lacks column %s", msg, name)
		}
	}
}

func TestExecuteUnknownColumnNoCandidates(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineSQLite)
	exec := NewExecutor(db)

	_, err := exec.Execute(context.Background(), rel, "SELECT nonexistent FROM data")
	var repairErr *RepairError
	if !errors.As(err, &repairErr) {
		t.Fatalf("Execute() error = %v, want *RepairError", err)
	}
	if len(repairErr.Attempts) != 0 {
		t.Errorf("Attempts = %v, want none", repairErr.Attempts)
	}
	if !reflect.DeepEqual(repairErr.Columns, rel.ColumnNames()) {
		t.Errorf("Columns = %v, want %v", repairErr.Columns, rel.ColumnNames())
	}
}

func TestExecuteErrorsWithoutRepair(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineSQLite)

	tests := []struct {
		name     string
		exec     *Executor
		query    string
		wantKind database.ErrorKind
	}{
		{"syntax error", NewExecutor(db), "SELEC * FROM data", database.KindSyntax},
		{"missing table", NewExecutor(db), "SELECT * FROM passengers", database.KindTableNotFound},
		{"repair disabled", NewExecutor(db, WithoutRepair()), `SELECT "Passenger Class" FROM data`, database.KindColumnNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.exec.Execute(context.Background(), rel, tt.query)
			var execErr *ExecutionError
			if !errors.As(err, &execErr) {
				t.Fatalf("Execute() error = %v, want *ExecutionError", err)
			}
			if execErr.Query != tt.query {
				t.Errorf("Query = %q, want %q", execErr.Query, tt.query)
			}
			if execErr.Kind() != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", execErr.Kind(), tt.wantKind)
			}
		})
	}
}

func TestExecuteCancelled(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineSQLite)
	exec := NewExecutor(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, rel, `SELECT "Passenger Class" FROM data`)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want *ExecutionError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestExecuteDoubleQuotedLiterals(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineSQLite)
	exec := NewExecutor(db)

	tests := []struct {
		query string
		want  int64
	}{
		{`SELECT COUNT(*) FROM data WHERE name = "Braund, Mr. Owen Harris"`, 1},
		{`SELECT COUNT(*) FROM data WHERE name LIKE "%Mrs%"`, 4},
		{`SELECT COUNT(*) FROM data WHERE name IN ("Moran, Mr. James", "Allen, Mr. William Henry")`, 2},
		{`SELECT COUNT(*) FROM data WHERE name BETWEEN "A" AND "C"`, 2},
		{`SELECT COUNT(*) FROM data WHERE (CASE WHEN survived = 1 THEN "yes" ELSE "no" END) = "yes"`, 5},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			result, err := exec.Execute(context.Background(), rel, tt.query)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if result.Repaired() {
				t.Errorf("Repair = %+v, want nil", result.Repair)
			}
			if got := result.Rows[0][0]; got != tt.want {
				t.Errorf("COUNT(*) = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestExecuteIsReadOnly(t *testing.T) {
	for _, engine := range []string{database.EngineSQLite, database.EngineDuckDB} {
		t.Run(engine, func(t *testing.T) {
			db, rel := loadPassengers(t, engine)
			exec := NewExecutor(db)
			ctx := context.Background()

			tmpDir := t.TempDir()
			planted := filepath.Join(tmpDir, "planted.db")
			secret := filepath.Join(tmpDir, "secret.csv")
			if err := os.WriteFile(secret, []byte("user,password\nroot,x\n"), 0644); err != nil {
				t.Fatal(err)
			}

			mustFail := []string{"ATTACH DATABASE '" + planted + "' AS x"}
			if engine == database.EngineSQLite {
				mustFail = append(mustFail, "DELETE FROM data", "DROP TABLE data")
			} else {
				mustFail = append(mustFail, "SELECT * FROM read_csv('"+secret+"')")
			}
			for _, q := range mustFail {
				var execErr *ExecutionError
				if _, err := exec.Execute(ctx, rel, q); !errors.As(err, &execErr) {
					t.Errorf("Execute(%q) error = %v, want *ExecutionError", q, err)
				}
			}
			if _, err := os.Stat(planted); !os.IsNotExist(err) {
				t.Errorf("ATTACH created %s", planted)
			}

			// Statements the engine accepts are rolled back.
			for _, q := range []string{"DELETE FROM data", "UPDATE data SET age = 0", "DROP TABLE data"} {
				exec.Execute(ctx, rel, q)
			}
			result, err := exec.Execute(ctx, rel, "SELECT COUNT(*), SUM(age) FROM data")
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if got := result.Rows[0][0]; got != int64(rel.RowCount) {
				t.Errorf("COUNT(*) = %v, want %d", got, rel.RowCount)
			}
			if got := result.Rows[0][1]; got == int64(0) || got == float64(0) {
				t.Errorf("SUM(age) = %v, update was kept", got)
			}
		})
	}
}

func TestExecuteDuckDB(t *testing.T) {
	db, rel := loadPassengers(t, database.EngineDuckDB)
	exec := NewExecutor(db)

	result, err := exec.Execute(context.Background(), rel, `SELECT "Passenger Class" FROM data WHERE passenger_id = 2`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Repair == nil || result.Repair.Strategy != StrategySpaceColumn {
		t.Fatalf("Repair = %+v, want strategy %s", result.Repair, StrategySpaceColumn)
	}
	if !reflect.DeepEqual(result.Rows, [][]interface{}{{int64(1)}}) {
		t.Errorf("Rows = %v", result.Rows)
	}
}

func TestCandidates(t *testing.T) {
	rel := &database.Relation{
		Name: "data",
		Columns: []database.Column{
			{Raw: "Passenger Class", Name: "passenger_class"},
			{Raw: "Home Port", Name: "home_port"},
			{Raw: "Raw Predicted Score", Name: "raw_predicted_score"},
			{Raw: "raw_prediction_v2", Name: "raw_prediction_v2"},
		},
	}
	r := NewRepairer()

	tests := []struct {
		name  string
		query string
		want  []Candidate
	}{
		{
			name:  "no quotes",
			query: "SELECT x FROM data",
			want:  nil,
		},
		{
			name:  "two space columns",
			query: `SELECT "Passenger Class", "Home Port" FROM data`,
			want: []Candidate{
				{StrategyQuoteStyle, "SELECT `Passenger Class`, `Home Port` FROM data"},
				{StrategySpaceColumn, `SELECT passenger_class, "Home Port" FROM data`},
				{StrategySpaceColumn, `SELECT "Passenger Class", home_port FROM data`},
				{StrategySpaceColumn, `SELECT passenger_class, home_port FROM data`},
			},
		},
		{
			name:  "fuzzy placeholder",
			query: `SELECT "raw predicted" FROM data`,
			want: []Candidate{
				{StrategyQuoteStyle, "SELECT `raw predicted` FROM data"},
				{StrategyFuzzySubstring, `SELECT "raw_predicted_score" FROM data`},
				{StrategyFuzzySubstring, `SELECT "raw_prediction_v2" FROM data`},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Candidates(tt.query, rel)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Candidates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCandidatesSkipDuplicates(t *testing.T) {
	same := Strategy{
		Name: "same",
		Rewrite: func(q string, _ *database.Relation) []string {
			return []string{q, "SELECT 1", "SELECT 1"}
		},
	}
	r := NewRepairer(same, same)
	got := r.Candidates("SELECT 0", &database.Relation{})
	want := []Candidate{{Strategy: "same", Query: "SELECT 1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Candidates() = %v, want %v", got, want)
	}
}

func TestUnresolvedQuoted(t *testing.T) {
	rel := &database.Relation{
		Name: "data",
		Columns: []database.Column{
			{Raw: "Name", Name: "name"},
			{Raw: "Age", Name: "age"},
		},
	}

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"raw header", `SELECT "Passenger Class" FROM data`, "Passenger Class"},
		{"existing column", `SELECT "name" FROM "data"`, ""},
		{"case insensitive", `SELECT "AGE" FROM data`, ""},
		{"alias", `SELECT age AS "Years" FROM data ORDER BY "Years"`, ""},
		{"qualified", `SELECT d."Name", "d".age FROM data "d"`, ""},
		{"string literal", `SELECT name FROM data WHERE name = 'say "hi"'`, ""},
		{"cte", `WITH "t" AS (SELECT age FROM data) SELECT age FROM "t"`, ""},
		{"implicit alias", `SELECT COUNT(*) "n" FROM data`, ""},
		{"comment", "-- \"x\"\nSELECT age FROM data", ""},
		{"escaped quote", `SELECT "a""b" FROM data`, `a"b`},
		{"second reference", `SELECT "name", "Ticket" FROM data`, "Ticket"},
		{"equals literal", `SELECT age FROM data WHERE name = "Braund, Mr. Owen Harris"`, ""},
		{"not equals literal", `SELECT age FROM data WHERE name <> "x" AND name != "y"`, ""},
		{"like literal", `SELECT age FROM data WHERE name NOT LIKE "%Mrs%"`, ""},
		{"glob literal", `SELECT age FROM data WHERE name GLOB "*Mr*"`, ""},
		{"in list", `SELECT age FROM data WHERE name IN ("a", "b")`, ""},
		{"between", `SELECT age FROM data WHERE name BETWEEN "A" AND "C"`, ""},
		{"case labels", `SELECT CASE WHEN age > 18 THEN "adult" ELSE "child" END FROM data`, ""},
		{"raw header before operator", `SELECT age FROM data WHERE "Passenger Class" = "First"`, "Passenger Class"},
		{"in subquery", `SELECT age FROM data WHERE age IN (SELECT "Ticket" FROM data)`, "Ticket"},
		{"after in list", `SELECT age FROM data WHERE name IN ("a") AND "Fare Paid" > 1`, "Fare Paid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unresolvedQuoted(tt.query, rel); got != tt.want {
				t.Errorf("unresolvedQuoted(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestRecords(t *testing.T) {
	r := &Result{
		Columns: []string{"a", "b"},
		Rows:    [][]interface{}{{int64(1), "x"}, {nil, "y"}},
	}
	want := []map[string]interface{}{
		{"a": int64(1), "b": "x"},
		{"a": nil, "b": "y"},
	}
	if got := r.Records(); !reflect.DeepEqual(got, want) {
		t.Errorf("Records() = %v, want %v", got, want)
	}
}

func loadPassengers(t *testing.T, engine string) (*database.DB, *database.Relation) {
	t.Helper()
	testdataPath := findTestdata(t)

	db, err := database.Open(engine, "")
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rel, err := importer.LoadLocation(context.Background(), db, filepath.Join(testdataPath, "passengers.csv"),
		importer.Options{HasHeader: true}, remote.Config{})
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}
	return db, rel
}

func findTestdata(t *testing.T) string {
	paths := []string{
		"../../testdata",
		"../../../testdata",
		"testdata",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	t.Skip("testdata directory not found")
	return ""
}
