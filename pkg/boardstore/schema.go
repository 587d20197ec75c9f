package boardstore

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 2

// Migrate creates (or upgrades) the board schema in-place.
//
// Candidates and jobs share the items table; kind-specific columns are
// left empty for the other kind.
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS items (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			grp TEXT NOT NULL,
			ord INTEGER NOT NULL,
			name TEXT,
			email TEXT,
			title TEXT,
			slug TEXT,
			status TEXT,
			-- tags is a JSON array of lowercase strings.
			tags TEXT,
			applied_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY(kind, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_group_order ON items(kind, grp, ord);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_job_slug ON items(slug) WHERE kind = 'job';`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	// v2: the screening stage was stored as "screen" by early builds. Legacy
	// rows are appended after any existing screening rows.
	if current < 2 {
		var tail int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ord), -1) + 1 FROM items WHERE kind = 'candidate' AND grp = 'screening'`).Scan(&tail); err != nil {
			return fmt.Errorf("read screening tail: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET grp = 'screening', ord = ord + ? WHERE kind = 'candidate' AND grp = 'screen'`, tail); err != nil {
			return fmt.Errorf("exec migration statement: %w", err)
		}
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// CurrentSchemaVersion reads the stored schema version.
func CurrentSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}
