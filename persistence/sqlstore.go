// persistence/sqlstore.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动
	_ "modernc.org/sqlite" // 纯 Go SQLite 驱动

	"github.com/wfunc/crosskey/models"
)

// Dialect 区分占位符与建表语句
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var schemas = map[Dialect][]string{
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS room_events (
            id BIGSERIAL PRIMARY KEY,
            code VARCHAR(16) NOT NULL,
            kind VARCHAR(32) NOT NULL,
            conn_id VARCHAR(64) NOT NULL DEFAULT '',
            role VARCHAR(16) NOT NULL DEFAULT '',
            problem VARCHAR(16) NOT NULL DEFAULT '',
            members INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_room_events_code ON room_events(code)`,
		`CREATE INDEX IF NOT EXISTS idx_room_events_created_at ON room_events(created_at)`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS room_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT NOT NULL,
            kind TEXT NOT NULL,
            conn_id TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT '',
            problem TEXT NOT NULL DEFAULT '',
            members INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_room_events_code ON room_events(code)`,
		`CREATE INDEX IF NOT EXISTS idx_room_events_created_at ON room_events(created_at)`,
	},
}

// SQLStore 基于 database/sql 的实现, 支持 lib/pq 与 modernc sqlite
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore 打开连接并初始化表结构
func NewSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if _, ok := schemas[dialect]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	// 设置连接池参数; sqlite 只允许单写
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initTables 初始化数据库表结构
func (s *SQLStore) initTables(ctx context.Context) error {
	for _, stmt := range schemas[s.dialect] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// placeholders returns "$1, $2, ..." or "?, ?, ..." for n columns.
func (s *SQLStore) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		if s.dialect == DialectPostgres {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// SaveRoomEvents 在一个事务里写入一批记录
func (s *SQLStore) SaveRoomEvents(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO room_events (code, kind, conn_id, role, problem, members, created_at) VALUES (` +
		s.placeholders(7) + `)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, e.Code, string(e.Kind), e.ConnID, e.Role, e.Problem, e.Members, createdAt.UTC()); err != nil {
			return fmt.Errorf("insert room event: %w", err)
		}
	}
	return tx.Commit()
}

// CountRoomEvents 统计某个房间的记录数; code 为空时统计全部
func (s *SQLStore) CountRoomEvents(ctx context.Context, code string) (int64, error) {
	var (
		n   int64
		err error
	)
	if code == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_events WHERE code = `+s.placeholders(1), code).Scan(&n)
	}
	return n, err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
