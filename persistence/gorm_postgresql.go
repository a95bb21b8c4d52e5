// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/crosskey/logger"
	"github.com/wfunc/crosskey/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// zapWriter routes gorm's logger into zap at debug level.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Log.Debugf(format, args...)
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(ctx context.Context, dsn string) (*GormPostgreSQL, error) {
	return newGormStore(ctx, postgres.Open(dsn))
}

func newGormStore(ctx context.Context, dialector gorm.Dialector) (*GormPostgreSQL, error) {
	gormLogger := gormlogger.New(zapWriter{}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.WithContext(ctx).AutoMigrate(&models.GormRoomEvent{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveRoomEvents 批量插入
func (p *GormPostgreSQL) SaveRoomEvents(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.GormRoomEvent, 0, len(events))
	for _, e := range events {
		row := models.NewGormRoomEvent(e)
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now()
		}
		rows = append(rows, row)
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 100).Error
	})
}

func (p *GormPostgreSQL) CountRoomEvents(ctx context.Context, code string) (int64, error) {
	var n int64
	q := p.db.WithContext(ctx).Model(&models.GormRoomEvent{})
	if code != "" {
		q = q.Where("code = ?", code)
	}
	err := q.Count(&n).Error
	return n, err
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
