package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"solana-token-sale/internal/storage/postgres"
)

// RunPostgresMigrations applies embedded files not yet listed in schema_migrations.
// Each file runs in its own transaction together with its version row.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	log := logrus.StandardLogger().WithField("type", "storage/migrations")

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+versionTable+` (
			version    TEXT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create %s: %w", versionTable, err)
	}

	all, err := migrationFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	applied, err := postgresApplied(ctx, pool)
	if err != nil {
		return err
	}

	for _, m := range pending(all, applied) {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO `+versionTable+` (version, applied_at) VALUES ($1, $2)`,
				m.version, time.Now().UnixMilli())
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		log.WithField("version", m.version).Info("applied postgres migration")
	}
	return nil
}

func postgresApplied(ctx context.Context, pool *postgres.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM `+versionTable)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", versionTable, err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", versionTable, err)
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}
