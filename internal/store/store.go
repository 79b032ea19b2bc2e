// Package store keeps decoded tasks in a sqlite table. It backs the optional
// on-disk mirror of the index and the SQL query engine.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/elcuervo/otx/internal/task"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id             INTEGER PRIMARY KEY,
	path           TEXT    NOT NULL,
	status         TEXT    NOT NULL,
	status_name    TEXT    NOT NULL,
	completed      INTEGER NOT NULL,
	description    TEXT    NOT NULL,
	indentation    TEXT    NOT NULL,
	section_start  INTEGER NOT NULL,
	section_index  INTEGER NOT NULL,
	heading        TEXT,
	priority       INTEGER NOT NULL,
	start_date     TEXT,
	scheduled_date TEXT,
	due_date       TEXT,
	done_date      TEXT,
	created_date   TEXT,
	recurrence     TEXT,
	block_link     TEXT,
	tags           TEXT    NOT NULL,
	original       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_path ON tasks(path);
`

const insertSQL = `INSERT INTO tasks (
	id, path, status, status_name, completed, description, indentation,
	section_start, section_index, heading, priority, start_date, scheduled_date,
	due_date, done_date, created_date, recurrence, block_link, tags, original
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// DB is a task table on one sqlite database.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// an in-memory database lives and dies with its connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// OpenMemory opens a private in-memory database.
func OpenMemory(ctx context.Context) (*DB, error) {
	return Open(ctx, ":memory:")
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// ReplaceDocument swaps the rows of path for tasks.
func (d *DB) ReplaceDocument(ctx context.Context, path string, tasks []task.Task) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	if err := insert(ctx, tx, tasks, false); err != nil {
		return err
	}

	return tx.Commit()
}

func (d *DB) RemoveDocument(ctx context.Context, path string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM tasks WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (d *DB) RenameDocument(ctx context.Context, oldPath, newPath string) error {
	if _, err := d.db.ExecContext(ctx, "UPDATE tasks SET path = ? WHERE path = ?", newPath, oldPath); err != nil {
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	return nil
}

// Load replaces the whole table with tasks, using each task's position as
// its id.
func (d *DB) Load(ctx context.Context, tasks []task.Task) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}

	if err := insert(ctx, tx, tasks, true); err != nil {
		return err
	}

	return tx.Commit()
}

func insert(ctx context.Context, tx *sql.Tx, tasks []task.Task, positional bool) error {
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range tasks {
		tags, err := json.Marshal(nonNil(t.Tags))
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}

		var id any
		if positional {
			id = i
		}

		var rule any
		if t.Recurrence != nil {
			rule = t.Recurrence.Rule
		}

		_, err = stmt.ExecContext(ctx,
			id, t.Path, t.Status.Indicator, t.Status.Name, t.Status.Completed,
			t.Description, t.Indentation, t.SectionStart, t.SectionIndex,
			nullString(t.PrecedingHeader), int(t.Priority),
			date(t.Start), date(t.Scheduled), date(t.Due), date(t.Done), date(t.Created),
			rule, nullString(t.BlockLink), string(tags), t.OriginalMarkdown,
		)
		if err != nil {
			return fmt.Errorf("insert %s:%d: %w", t.Path, t.SectionStart, err)
		}
	}

	return nil
}

// SelectIDs runs a statement whose first column is a task id and returns the
// ids in result order.
func (d *DB) SelectIDs(ctx context.Context, query string) ([]int, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var ids []int
	for rows.Next() {
		dest := make([]any, len(cols))
		var id sql.NullInt64
		dest[0] = &id
		for i := 1; i < len(dest); i++ {
			dest[i] = new(any)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if id.Valid {
			ids = append(ids, int(id.Int64))
		}
	}

	return ids, rows.Err()
}

// Count returns the number of rows, optionally restricted to path.
func (d *DB) Count(ctx context.Context, path string) (int, error) {
	query := "SELECT COUNT(*) FROM tasks"
	var args []any
	if path != "" {
		query += " WHERE path = ?"
		args = append(args, path)
	}

	var n int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Paths lists the distinct document paths in the table.
func (d *DB) Paths(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT path FROM tasks ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func date(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(task.DateFormat)
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
