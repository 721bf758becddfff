package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS calls (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		call_type TEXT NOT NULL,
		call_id TEXT NOT NULL,
		created_by TEXT NOT NULL,
		recording_quality TEXT NOT NULL DEFAULT '',
		recording_mode TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(call_type, call_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_created_by ON calls (created_by)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for i, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	return nil
}
