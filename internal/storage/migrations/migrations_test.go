package migrations

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- header comment
CREATE TABLE a (x UInt32) ENGINE = MergeTree() ORDER BY x;

-- second
CREATE TABLE b (y String) ENGINE = MergeTree() ORDER BY y;
`
	stmts := splitStatements(sql)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") || !strings.HasPrefix(stmts[1], "CREATE TABLE b") {
		t.Errorf("unexpected statements: %q", stmts)
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	if err := validateNoSemicolonInStrings("SELECT 'it''s fine';"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateNoSemicolonInStrings("SELECT 'a;b';"); err == nil {
		t.Error("expected error for semicolon in string literal")
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/marketing")
	if err != nil || db != "marketing" {
		t.Errorf("databaseFromDSN = %q, %v", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for DSN without database")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		t.Fatalf("list postgres migrations: %v", err)
	}
	if len(pg) == 0 || pg[0] != "001_dim_date.sql" {
		t.Errorf("unexpected postgres migrations: %v", pg)
	}

	ch, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatalf("list clickhouse migrations: %v", err)
	}
	for _, f := range ch {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if err := validateNoSemicolonInStrings(string(data)); err != nil {
			t.Errorf("%s: %v", f, err)
		}
		if n := len(splitStatements(string(data))); n == 0 {
			t.Errorf("%s: no statements", f)
		}
	}
}

func TestLoadStatements_EmbeddedTablesAreRunScoped(t *testing.T) {
	ch, err := loadStatements(ClickhouseFS, "clickhouse", checkClickhouseTable)
	if err != nil {
		t.Fatalf("clickhouse migrations: %v", err)
	}
	pg, err := loadStatements(PostgresFS, "postgres", checkPostgresTable)
	if err != nil {
		t.Fatalf("postgres migrations: %v", err)
	}

	tables := map[string]bool{}
	for _, st := range append(ch, pg...) {
		if st.table != "" {
			tables[st.table] = true
		}
	}
	for _, want := range []string{
		"fact_marketing_daily", "fact_daily_pnl",
		"dim_date", "order_items", "simulation_runs", "order_attribution", "item_costs",
	} {
		if !tables[want] {
			t.Errorf("no CREATE TABLE for %s", want)
		}
	}
}

func TestCheckClickhouseTable(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr string
	}{
		{"replacing merge tree", "CREATE TABLE t (\n    run_id String,\n    date_id UInt32\n) ENGINE = ReplacingMergeTree()\nORDER BY (run_id, date_id)", ""},
		{"bare sort key", "CREATE TABLE t (\n    run_id String\n) ENGINE = MergeTree() ORDER BY run_id", ""},
		{"no run column", "CREATE TABLE t (\n    date_id UInt32\n) ENGINE = MergeTree() ORDER BY date_id", "missing run_id"},
		{"log engine", "CREATE TABLE t (\n    run_id String\n) ENGINE = Log()", "MergeTree"},
		{"date first", "CREATE TABLE t (\n    run_id String,\n    date_id UInt32\n) ENGINE = MergeTree() ORDER BY (date_id, run_id)", "ORDER BY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkClickhouseTable("t", tt.sql)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestCheckPostgresTable(t *testing.T) {
	ok := "CREATE TABLE x (\n    run_id TEXT NOT NULL REFERENCES simulation_runs (run_id),\n    order_id TEXT NOT NULL,\n    PRIMARY KEY (run_id, order_id)\n)"
	if err := checkPostgresTable("x", ok); err != nil {
		t.Errorf("run-scoped table rejected: %v", err)
	}
	if err := checkPostgresTable("dim_date", "CREATE TABLE dim_date (\n    date_id INTEGER PRIMARY KEY\n)"); err != nil {
		t.Errorf("reference table rejected: %v", err)
	}
	if err := checkPostgresTable("simulation_runs", "CREATE TABLE simulation_runs (\n    run_id TEXT PRIMARY KEY\n)"); err != nil {
		t.Errorf("runs table rejected: %v", err)
	}

	unreferenced := "CREATE TABLE x (\n    run_id TEXT NOT NULL,\n    PRIMARY KEY (run_id)\n)"
	if err := checkPostgresTable("x", unreferenced); err == nil {
		t.Error("expected error for run_id without a reference to simulation_runs")
	}
	orderFirst := "CREATE TABLE x (\n    run_id TEXT NOT NULL REFERENCES simulation_runs (run_id),\n    order_id TEXT NOT NULL,\n    PRIMARY KEY (order_id, run_id)\n)"
	if err := checkPostgresTable("x", orderFirst); err == nil {
		t.Error("expected error for primary key not led by run_id")
	}
}

func TestLoadStatements_RejectsBeforeApplying(t *testing.T) {
	fsys := fstest.MapFS{
		"ch/001_ok.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS a (\n    run_id String\n) ENGINE = MergeTree() ORDER BY run_id;\n")},
		"ch/002_bad.sql": {Data: []byte("-- unkeyed\nCREATE TABLE IF NOT EXISTS b (\n    date_id UInt32\n) ENGINE = MergeTree() ORDER BY date_id;\n")},
	}
	stmts, err := loadStatements(fsys, "ch", checkClickhouseTable)
	if err == nil {
		t.Fatalf("expected error, got %d statements", len(stmts))
	}
	if !strings.Contains(err.Error(), "002_bad.sql") || !strings.Contains(err.Error(), "table b") {
		t.Errorf("error does not name the offending file and table: %v", err)
	}
}
