package store

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `CREATE TABLE IF NOT EXISTS records (
  key TEXT PRIMARY KEY NOT NULL,
  value BLOB NOT NULL,
  updated_at TEXT NOT NULL
)`

// SQLite keeps records in a single table of sqlite database.
type SQLite struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// OpenSQLite opens (creating when necessary) database at path. Use ":memory:"
// for transient database.
func OpenSQLite(path string, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}
	flags := []sqlite.OpenFlags{sqlite.OpenReadWrite, sqlite.OpenCreate}
	if path == ":memory:" {
		flags = append(flags, sqlite.OpenMemory)
	} else {
		flags = append(flags, sqlite.OpenWAL)
	}
	conn, err := sqlite.OpenConn(path, flags...)
	if err != nil {
		return nil, fmt.Errorf("open session store %q: %w", path, err)
	}
	if err := sqlitex.ExecuteTransient(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("prepare session store %q: %w", path, err)
	}
	log.Debug("Session store opened", zap.String("path", path))
	return &SQLite{conn: conn, log: log.Named("store")}, nil
}

func (s *SQLite) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrClosed
	}
	var (
		value []byte
		found bool
	)
	err := sqlitex.Execute(s.conn, `SELECT value FROM records WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) (err error) {
				found = true
				value, err = io.ReadAll(stmt.ColumnReader(0))
				return err
			}})
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLite) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrClosed
	}
	err := sqlitex.Execute(s.conn, `INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{key, value, time.Now().UTC().Format(time.RFC3339Nano)}})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultFull {
			return fmt.Errorf("write %q: %w: %w", key, ErrQuota, err)
		}
		return fmt.Errorf("write %q: %w", key, err)
	}
	s.log.Debug("Record saved", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

func (s *SQLite) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrClosed
	}
	if err := sqlitex.Execute(s.conn, `DELETE FROM records WHERE key = ?`, &sqlitex.ExecOptions{Args: []any{key}}); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrClosed
	}
	var keys []string
	err := sqlitex.Execute(s.conn, `SELECT key FROM records`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			if k := stmt.ColumnText(0); strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
			return nil
		}})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return sortKeys(keys), nil
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
