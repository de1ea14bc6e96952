package storage

import (
	"context"
	"strings"
	"time"

	"github.com/flasheng/flasheng/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store one independently connected logical data store
type Store interface {
	Name() string
	// DB session outside any transaction, auto-commit per statement
	DB() *gorm.DB
	Begin(ctx context.Context) (Tx, error)
	Migrate(tables ...interface{}) error
	Close() error
}

// Tx native transaction opened on a Store
type Tx interface {
	DB() *gorm.DB
	Commit() error
	Rollback() error
}

type GormStore struct {
	name string
	kind string
	db   *gorm.DB
}

var _ Store = (*GormStore)(nil)

// Open connects a store. sqlite stores are serialized on one connection.
func Open(name string, cfg config.DBConfig) (*GormStore, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Type))
	if kind == "" {
		kind = "postgres"
	}
	var dialector gorm.Dialector
	switch kind {
	case "postgres":
		dialector = postgres.Open(cfg.Dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.Dsn)
	default:
		return nil, errors.Errorf("store %s: unsupported database type %q", name, cfg.Type)
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", name)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", name)
	}
	if kind == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		if cfg.MaxConn > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxConn)
		}
		if cfg.IdleConn > 0 {
			sqlDB.SetMaxIdleConns(cfg.IdleConn)
		}
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	zap.L().Info("store connected",
		zap.String("namespace", "storage"),
		zap.String("store", name),
		zap.String("type", kind))
	return &GormStore{name: name, kind: kind, db: db}, nil
}

// NewGormStore wraps an already opened gorm handle
func NewGormStore(name string, db *gorm.DB) *GormStore {
	return &GormStore{name: name, kind: db.Dialector.Name(), db: db}
}

func (s *GormStore) Name() string {
	return s.name
}

func (s *GormStore) Kind() string {
	return s.kind
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Begin(ctx context.Context) (Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, errors.Wrapf(tx.Error, "begin %s", s.name)
	}
	return &gormTx{db: tx}, nil
}

func (s *GormStore) Migrate(tables ...interface{}) error {
	if len(tables) == 0 {
		return nil
	}
	return errors.Wrapf(s.db.Migrator().AutoMigrate(tables...), "migrate %s", s.name)
}

// Drop removes the given tables, used by the initdb command
func (s *GormStore) Drop(tables ...interface{}) error {
	return errors.Wrapf(s.db.Migrator().DropTable(tables...), "drop %s", s.name)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) DB() *gorm.DB {
	return t.db
}

func (t *gormTx) Commit() error {
	return t.db.Commit().Error
}

func (t *gormTx) Rollback() error {
	return t.db.Rollback().Error
}
