package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fortio.org/safecast"
)

// ErrNotFound is returned when no template exists under the requested name.
var ErrNotFound = errors.New("template not found")

// TemplateInfo holds the metadata for one stored template.
type TemplateInfo struct {
	Id        int
	Name      string
	UpdatedAt time.Time
}

// SetupSchema initializes the template table in the provided database. This
// function should be called once on a new database before any other
// operations are performed. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS weft_templates (
    template_id INTEGER PRIMARY KEY,
    template_name TEXT NOT NULL UNIQUE,
    template_source TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	return nil
}

// Store gives named access to template sources kept in a SQLite database.
// All methods are safe for concurrent use; the statements are prepared once
// at construction.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	stmtGet    *sql.Stmt
	stmtList   *sql.Stmt
	stmtSave   *sql.Stmt
	stmtDelete *sql.Stmt
	stmtCount  *sql.Stmt
}

// NewStore prepares the statements used by the store. SetupSchema must have
// been run against the database beforehand.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}

	var err error
	if s.stmtGet, err = db.Prepare(
		"SELECT template_source FROM weft_templates WHERE template_name = ?"); err != nil {
		return nil, fmt.Errorf("could not prepare get statement: %w", err)
	}
	if s.stmtList, err = db.Prepare(
		"SELECT template_id, template_name, updated_at FROM weft_templates ORDER BY template_name"); err != nil {
		return nil, fmt.Errorf("could not prepare list statement: %w", err)
	}
	if s.stmtSave, err = db.Prepare(
		`INSERT INTO weft_templates (template_name, template_source, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(template_name) DO UPDATE SET template_source = excluded.template_source, updated_at = excluded.updated_at`); err != nil {
		return nil, fmt.Errorf("could not prepare save statement: %w", err)
	}
	if s.stmtDelete, err = db.Prepare(
		"DELETE FROM weft_templates WHERE template_name = ?"); err != nil {
		return nil, fmt.Errorf("could not prepare delete statement: %w", err)
	}
	if s.stmtCount, err = db.Prepare(
		"SELECT COUNT(*) FROM weft_templates"); err != nil {
		return nil, fmt.Errorf("could not prepare count statement: %w", err)
	}
	return s, nil
}

// Close releases the store's prepared statements. The database itself stays
// open; it belongs to the caller.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtGet, s.stmtList, s.stmtSave, s.stmtDelete, s.stmtCount} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// Save inserts the template source under name, replacing any prior entry.
func (s *Store) Save(ctx context.Context, name, source string) error {
	if _, err := s.stmtSave.ExecContext(ctx, name, source, time.Now().Unix()); err != nil {
		return fmt.Errorf("could not save template '%s': %w", name, err)
	}
	s.logger.InfoContext(ctx, "Template saved", slog.String("template_name", name))
	return nil
}

// Get returns the source stored under name.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var source string
	err := s.stmtGet.QueryRowContext(ctx, name).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("could not get template '%s': %w", name, err)
	}
	return source, nil
}

// List returns the metadata of every stored template, ordered by name.
func (s *Store) List(ctx context.Context) ([]TemplateInfo, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var infos []TemplateInfo
	for rows.Next() {
		var info TemplateInfo
		var updated int64
		if err = rows.Scan(&info.Id, &info.Name, &updated); err != nil {
			return nil, err
		}
		info.UpdatedAt = time.Unix(updated, 0)
		infos = append(infos, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

// Delete removes the template stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.stmtDelete.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("could not delete template '%s': %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	s.logger.InfoContext(ctx, "Template deleted", slog.String("template_name", name))
	return nil
}

// Count returns the number of stored templates.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.stmtCount.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, err
	}
	count, err := safecast.Conv[int](n)
	if err != nil {
		return 0, err
	}
	return count, nil
}
