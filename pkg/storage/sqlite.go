package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps all resources in one table of a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database in dir.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fail("open", "", err)
	}
	dbPath := filepath.Join(dir, SQLiteFileName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fail("open", "", errors.Wrap(err, "failed to open database"))
	}
	// a single connection serialises writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fail("open", "", errors.Wrap(err, "failed to ping database"))
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fail("open", "", errors.Wrap(err, "failed to initialize database"))
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		modified INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, id string, data []byte) error {
	if err := ValidateID(id); err != nil {
		return fail("put", id, err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (id, data, modified) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, modified = excluded.modified`,
		id, data, time.Now().UnixNano())
	if err != nil {
		return fail("put", id, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, fail("get", id, err)
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM resources WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fail("get", id, ErrNotFound)
		}
		return nil, fail("get", id, err)
	}
	return data, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, modified FROM resources ORDER BY id`)
	if err != nil {
		return nil, fail("list", "", err)
	}
	defer rows.Close()

	var ret []Resource
	for rows.Next() {
		var (
			id       string
			modified int64
		)
		if err := rows.Scan(&id, &modified); err != nil {
			return nil, fail("list", "", err)
		}
		ret = append(ret, Resource{ID: id, Modified: time.Unix(0, modified)})
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list", "", err)
	}
	return ret, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return fail("delete", id, err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fail("delete", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail("delete", id, err)
	}
	if n == 0 {
		return fail("delete", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
