// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/crosskey/models"
)

// Store 审计记录存储接口, 只追加不回读
type Store interface {
	SaveRoomEvents(ctx context.Context, events []models.RoomEvent) error
	CountRoomEvents(ctx context.Context, code string) (int64, error)
	Close() error
}

// 错误定义
var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrDisabled      = errors.New("audit store disabled")
)

// Options selects and configures a backend.
type Options struct {
	Driver   string // gorm | postgres | sqlite
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// Open builds the store named by opts.Driver. An empty driver returns
// ErrDisabled.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "":
		return nil, ErrDisabled
	case "gorm":
		return NewGormPostgreSQL(ctx, opts.postgresDSN())
	case "postgres":
		return NewSQLStore(ctx, DialectPostgres, opts.postgresDSN())
	case "sqlite":
		return NewSQLStore(ctx, DialectSQLite, opts.DSN)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
}

func (o Options) postgresDSN() string {
	if o.DSN != "" {
		return o.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		o.Host, o.Port, o.User, o.Password, o.DBName)
}
