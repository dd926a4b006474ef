package objectstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tides/internal/database"
)

// SQLBackend stores objects in the tide_objects table of MySQL or SQLite
type SQLBackend struct {
	db       *database.DB
	ownsConn bool
}

// NewSQLBackend uses an initialized database
func NewSQLBackend(db *database.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

// Name returns the backend name
func (s *SQLBackend) Name() string {
	return s.db.Dialect
}

// Get loads the object body
func (s *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM tide_objects WHERE obj_key = ?", key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, classifyTransportError(s.Name(), err)
	}
	return []byte(body), nil
}

// Put upserts the object
func (s *SQLBackend) Put(ctx context.Context, key string, body []byte) error {
	query := `INSERT INTO tide_objects (obj_key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(obj_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	if s.db.Dialect == database.DialectMySQL {
		query = `INSERT INTO tide_objects (obj_key, body, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`
	}

	if _, err := s.db.ExecContext(ctx, query, key, string(body), time.Now().UTC()); err != nil {
		return classifyTransportError(s.Name(), err)
	}
	return nil
}

// Delete removes the object
func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tide_objects WHERE obj_key = ?", key)
	if err != nil {
		return classifyTransportError(s.Name(), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classifyTransportError(s.Name(), err)
	}
	if n == 0 {
		return notFound(key)
	}
	return nil
}

// List returns keys with the given prefix. SUBSTR avoids LIKE wildcard escaping.
func (s *SQLBackend) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT obj_key FROM tide_objects WHERE SUBSTR(obj_key, 1, ?) = ? ORDER BY obj_key",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, classifyTransportError(s.Name(), err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyTransportError(s.Name(), err)
	}
	return keys, nil
}

// Close closes the database when the backend opened it itself
func (s *SQLBackend) Close(ctx context.Context) error {
	if !s.ownsConn {
		return nil
	}
	return s.db.Close()
}
