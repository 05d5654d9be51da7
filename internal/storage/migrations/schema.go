package migrations

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

// Simulation outputs are keyed by run_id. Migrations are checked against
// that layout before anything is applied.

var (
	createTableRe = regexp.MustCompile(`(?i)^CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([A-Za-z_][A-Za-z0-9_.]*)`)
	runIDColumnRe = regexp.MustCompile(`(?im)^\s*run_id\s+`)
	chEngineRe    = regexp.MustCompile(`(?i)ENGINE\s*=\s*([A-Za-z]*MergeTree)\s*\(`)
	chOrderByRe   = regexp.MustCompile(`(?i)ORDER\s+BY\s*\(?\s*([A-Za-z_][A-Za-z0-9_]*)`)
	pgPrimaryRe   = regexp.MustCompile(`(?i)PRIMARY\s+KEY\s*\(\s*([A-Za-z_][A-Za-z0-9_]*)`)
	pgRunRefRe    = regexp.MustCompile(`(?i)run_id\s+TEXT\s+NOT\s+NULL\s+REFERENCES\s+simulation_runs\s*\(\s*run_id\s*\)`)
)

// runsTable holds one row per run; the other run-scoped tables point at it.
const runsTable = "simulation_runs"

// statement is one executable migration statement.
type statement struct {
	file  string
	table string // set for CREATE TABLE
	sql   string
}

// loadStatements reads the .sql files under dir, splits them into statements
// and runs check on every CREATE TABLE.
func loadStatements(fsys fs.FS, dir string, check func(table, sql string) error) ([]statement, error) {
	files, err := sqlFiles(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var out []statement
	for _, file := range files {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		if err := validateNoSemicolonInStrings(string(data)); err != nil {
			return nil, fmt.Errorf("validate migration %s: %w", file, err)
		}
		for _, sql := range splitStatements(string(data)) {
			st := statement{file: file, sql: sql}
			if m := createTableRe.FindStringSubmatch(sql); m != nil {
				st.table = m[1]
				if err := check(st.table, sql); err != nil {
					return nil, fmt.Errorf("migration %s: table %s: %w", file, st.table, err)
				}
			}
			out = append(out, st)
		}
	}
	return out, nil
}

// checkClickhouseTable requires a MergeTree-family engine whose sort key
// starts with run_id. All ClickHouse tables hold per-run facts.
func checkClickhouseTable(_ string, sql string) error {
	if !runIDColumnRe.MatchString(sql) {
		return fmt.Errorf("missing run_id column")
	}
	if !chEngineRe.MatchString(sql) {
		return fmt.Errorf("engine must be a MergeTree variant")
	}
	m := chOrderByRe.FindStringSubmatch(sql)
	if m == nil || !strings.EqualFold(m[1], "run_id") {
		return fmt.Errorf("ORDER BY must start with run_id")
	}
	return nil
}

// checkPostgresTable requires tables with a run_id column (other than the
// runs table itself) to reference simulation_runs and lead their primary key
// with run_id. Reference tables such as dim_date are left alone.
func checkPostgresTable(table, sql string) error {
	if strings.EqualFold(table, runsTable) || !runIDColumnRe.MatchString(sql) {
		return nil
	}
	if !pgRunRefRe.MatchString(sql) {
		return fmt.Errorf("run_id must reference %s (run_id)", runsTable)
	}
	m := pgPrimaryRe.FindStringSubmatch(sql)
	if m == nil || !strings.EqualFold(m[1], "run_id") {
		return fmt.Errorf("primary key must start with run_id")
	}
	return nil
}
