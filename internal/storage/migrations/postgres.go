package migrations

import (
	"context"
	"fmt"

	"retail-signal-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded postgres schema.
// Every file uses IF NOT EXISTS, so reruns are no-ops.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := readMigrations(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, f := range files {
		// pgx simple protocol accepts multi-statement files
		if _, err := pool.Exec(ctx, f.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Name, err)
		}
	}
	return nil
}
