package migrations

import (
	"context"
	"fmt"
	"log"

	"causal-commerce-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded statements in file order.
// Statements are idempotent (IF NOT EXISTS), so this runs on every start.
// Run-scoped tables must reference simulation_runs and lead their primary
// key with run_id; nothing is applied if a file breaks that.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	stmts, err := loadStatements(PostgresFS, "postgres", checkPostgresTable)
	if err != nil {
		return err
	}

	for _, st := range stmts {
		if _, err := pool.Exec(ctx, st.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", st.file, err)
		}
		if st.table != "" {
			log.Printf("[migrations] postgres: %s ready (%s)", st.table, st.file)
		}
	}
	return nil
}
