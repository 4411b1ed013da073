package store

import (
	"context"
	"fmt"
)

// Migrate creates the schema if missing. The unique index on the natural
// key is what makes InsertUnique idempotent; the JSONB column carries the
// open-ended measurement fields without declaring them one by one.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kpi_records (
			id BIGSERIAL PRIMARY KEY,
			source_line TEXT NOT NULL,
			date_c TEXT NOT NULL,
			mois INT NOT NULL,
			date_num INT NOT NULL,
			semaine INT NOT NULL,
			poste TEXT NOT NULL,
			heure TEXT NOT NULL,
			imputation_method TEXT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS kpi_records_natural_key
			ON kpi_records (source_line, date_c, mois, date_num, semaine, poste, heure, imputation_method)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			message TEXT NOT NULL,
			status TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS notifications_created_at ON notifications (created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
