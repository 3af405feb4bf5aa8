package nutrition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store persists a Table in SQLite so the inference process can reuse the
// values gathered while training.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens or creates the sqlite database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS dishes (
        name TEXT PRIMARY KEY,
        calories REAL
    );
    `
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Replace swaps the stored table for t in a single transaction.
func (s *Store) Replace(ctx context.Context, t *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dishes`); err != nil {
		return fmt.Errorf("failed to clear dishes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO dishes (name, calories) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range t.Entries() {
		var cal sql.NullFloat64
		if e.Known {
			cal = sql.NullFloat64{Float64: e.Calories, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, e.Dish, cal); err != nil {
			return fmt.Errorf("failed to insert dish %q: %w", e.Dish, err)
		}
	}

	return tx.Commit()
}

// Load returns every stored dish as a Table.
func (s *Store) Load(ctx context.Context) (*Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, calories FROM dishes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dishes: %w", err)
	}
	defer rows.Close()

	t := NewTable()
	for rows.Next() {
		var name string
		var cal sql.NullFloat64
		if err := rows.Scan(&name, &cal); err != nil {
			return nil, fmt.Errorf("failed to scan dish: %w", err)
		}
		t.Add(name, cal.Float64, cal.Valid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dishes: %w", err)
	}

	return t, nil
}

// LoadTable reads the table stored at path. A missing database yields an
// empty table.
func LoadTable(ctx context.Context, path string) (*Table, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewTable(), nil
	}

	s, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return s.Load(ctx)
}
