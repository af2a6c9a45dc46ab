package migrations

import (
	"context"
	"fmt"
	"io/fs"

	"mintwatch/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded PostgreSQL schema files in
// lexical order. pgx runs each file as one script, so no statement splitting
// is needed. The files use IF NOT EXISTS guards, making reruns safe.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, file := range files {
		data, err := fs.ReadFile(PostgresFS, "postgres/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}
