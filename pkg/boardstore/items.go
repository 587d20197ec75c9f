package boardstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

// Store is a pipeline.Gateway backed by a SQLite or libsql database.
type Store struct {
	db *sql.DB
}

var _ pipeline.Gateway = (*Store)(nil)

// Open opens the database described by cfg and migrates it to SchemaVersion.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const itemColumns = `kind, id, grp, ord, name, email, title, slug, status, tags, applied_at, created_at, updated_at`

// GetGroup implements pipeline.Gateway.
func (s *Store) GetGroup(ctx context.Context, kind pipeline.Kind, group string) ([]pipeline.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE kind = ? AND grp = ?
		 ORDER BY ord ASC, created_at ASC, id ASC`,
		string(kind), group)
	if err != nil {
		return nil, classify(fmt.Errorf("query group: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var out []pipeline.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate group: %w", err))
	}
	return out, nil
}

// Get implements pipeline.Gateway.
func (s *Store) Get(ctx context.Context, kind pipeline.Kind, id string) (pipeline.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE kind = ? AND id = ?`,
		string(kind), id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Item{}, fmt.Errorf("%w: %s %s", ordering.ErrNotFound, kind, id)
	}
	return it, err
}

// BulkOverwriteOrder implements pipeline.Gateway. All updates commit in one
// transaction; an unknown id aborts the whole batch.
func (s *Store) BulkOverwriteOrder(ctx context.Context, kind pipeline.Kind, updates []pipeline.OrderUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE items
		 SET ord = ?, grp = COALESCE(NULLIF(?, ''), grp), updated_at = ?
		 WHERE kind = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.Order, u.Group, formatTime(u.UpdatedAt), string(kind), u.ID)
		if err != nil {
			return classify(fmt.Errorf("overwrite order for %s: %w", u.ID, err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s %s", ordering.ErrNotFound, kind, u.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// MaxOrder implements pipeline.Gateway.
func (s *Store) MaxOrder(ctx context.Context, kind pipeline.Kind, group string) (int, error) {
	var maxOrder int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ord), -1) FROM items WHERE kind = ? AND grp = ?`,
		string(kind), group).Scan(&maxOrder)
	if err != nil {
		return 0, classify(fmt.Errorf("max order: %w", err))
	}
	return maxOrder, nil
}

// Insert implements pipeline.Gateway.
func (s *Store) Insert(ctx context.Context, it pipeline.Item) error {
	tags, err := encodeTags(it.Tags)
	if err != nil {
		return err
	}

	var appliedAt any
	if it.AppliedAt != nil {
		appliedAt = formatTime(*it.AppliedAt)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(it.Kind), it.ID, it.Group, it.Order,
		nullString(it.Name), nullString(it.Email),
		nullString(it.Title), nullString(it.Slug), nullString(string(it.Status)),
		tags, appliedAt,
		formatTime(it.CreatedAt), formatTime(it.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s: %v", pipeline.ErrConflict, it.Kind, it.ID, err)
		}
		return classify(fmt.Errorf("insert item: %w", err))
	}
	return nil
}

// SlugExists implements pipeline.Gateway.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE kind = 'job' AND slug = ?`, slug).Scan(&n)
	if err != nil {
		return false, classify(fmt.Errorf("lookup slug: %w", err))
	}
	return n > 0, nil
}

// UpdateDetails implements pipeline.Gateway.
func (s *Store) UpdateDetails(ctx context.Context, it pipeline.Item) error {
	tags, err := encodeTags(it.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE items
		 SET name = ?, title = ?, slug = ?, status = ?, tags = ?, updated_at = ?
		 WHERE kind = ? AND id = ?`,
		nullString(it.Name), nullString(it.Title), nullString(it.Slug), nullString(string(it.Status)),
		tags, formatTime(it.UpdatedAt), string(it.Kind), it.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %q already exists: %v", pipeline.ErrConflict, it.Slug, err)
		}
		return classify(fmt.Errorf("update item: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ordering.ErrNotFound, it.Kind, it.ID)
	}
	return nil
}

// Count implements pipeline.Gateway.
func (s *Store) Count(ctx context.Context, kind pipeline.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, classify(fmt.Errorf("count items: %w", err))
	}
	return n, nil
}

// GroupCount is the size and order span of one group.
type GroupCount struct {
	Kind     pipeline.Kind
	Group    string
	Count    int
	MaxOrder int
}

// Contiguous reports whether the group's orders can be exactly 0..Count-1.
// Duplicate orders are not detected here.
func (c GroupCount) Contiguous() bool {
	return c.MaxOrder == c.Count-1
}

// CountGroups summarizes every non-empty group.
func (s *Store) CountGroups(ctx context.Context) ([]GroupCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, grp, COUNT(*), MAX(ord) FROM items GROUP BY kind, grp ORDER BY kind, grp`)
	if err != nil {
		return nil, classify(fmt.Errorf("count groups: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var out []GroupCount
	for rows.Next() {
		var c GroupCount
		var kind string
		if err := rows.Scan(&kind, &c.Group, &c.Count, &c.MaxOrder); err != nil {
			return nil, fmt.Errorf("scan group count: %w", err)
		}
		c.Kind = pipeline.Kind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group counts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(sc rowScanner) (pipeline.Item, error) {
	var (
		it                       pipeline.Item
		kind                     string
		name, email, title, slug sql.NullString
		status, tags, appliedAt  sql.NullString
		createdAt, updatedAt     string
	)
	err := sc.Scan(&kind, &it.ID, &it.Group, &it.Order,
		&name, &email, &title, &slug, &status, &tags, &appliedAt,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pipeline.Item{}, err
		}
		return pipeline.Item{}, classify(fmt.Errorf("scan item: %w", err))
	}

	it.Kind = pipeline.Kind(kind)
	it.Name = name.String
	it.Email = email.String
	it.Title = title.String
	it.Slug = slug.String
	it.Status = pipeline.JobStatus(status.String)

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &it.Tags); err != nil {
			return pipeline.Item{}, fmt.Errorf("decode tags for %s: %w", it.ID, err)
		}
		if len(it.Tags) == 0 {
			it.Tags = nil
		}
	}
	if appliedAt.Valid {
		t, err := parseTime(appliedAt.String)
		if err != nil {
			return pipeline.Item{}, fmt.Errorf("parse applied_at: %w", err)
		}
		it.AppliedAt = &t
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return pipeline.Item{}, fmt.Errorf("parse created_at: %w", err)
	}
	if it.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return pipeline.Item{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return it, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(raw), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classify marks lock contention as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") {
		return fmt.Errorf("%w: %w", ordering.ErrTransient, err)
	}
	return err
}
