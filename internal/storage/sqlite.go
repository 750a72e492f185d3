// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound 快照不存在
var ErrNotFound = errors.New("snapshot not found")

// Record 一个会话的持久化快照
type Record struct {
	SessionID string
	Version   uint64
	State     []byte
	UpdatedAt time.Time
}

// SnapshotStore 会话快照存储
type SnapshotStore interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, sessionID string) (*Record, error)
	Delete(ctx context.Context, sessionID string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS session_snapshots (
    session_id TEXT PRIMARY KEY,
    version    INTEGER NOT NULL,
    state      BLOB NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open 打开SQLite数据库并设置pragma
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	return db, nil
}

// EnsureSchema 创建表
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// SQLiteStore 基于SQLite的快照存储
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开数据库并初始化表结构
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	// :memory: 数据库每个连接独立，限制为单连接
	db.SetMaxOpenConns(1)

	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Save 写入或覆盖快照；旧版本不会覆盖新版本
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_snapshots (session_id, version, state, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		     version = excluded.version,
		     state = excluded.state,
		     updated_at = excluded.updated_at
		 WHERE excluded.version >= session_snapshots.version`,
		rec.SessionID, int64(rec.Version), rec.State, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load 读取快照
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	var rec Record
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, version, state, updated_at FROM session_snapshots WHERE session_id = ?`,
		sessionID,
	).Scan(&rec.SessionID, &version, &rec.State, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	rec.Version = uint64(version)
	return &rec, nil
}

// Delete 删除快照
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// Count 快照数量
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
