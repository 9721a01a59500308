package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
)

// Store is the GORM-backed persistence layer.
type Store struct {
	db *gorm.DB
}

// Open opens a store from a database URL.
// Supported:
//   - sqlite:<dsn>   e.g. sqlite:/var/lib/forage-ws/forage-ws.db or sqlite::memory:
//   - sqlite3:<dsn>  alias of sqlite
//   - postgres://... or postgresql://...
func Open(dbURL string) (*Store, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
	if logging.Verbose {
		cfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	var (
		db     *gorm.DB
		err    error
		single bool
	)
	switch {
	case strings.HasPrefix(dbURL, "sqlite:"), strings.HasPrefix(dbURL, "sqlite3:"):
		dsn := dbURL[strings.Index(dbURL, ":")+1:]
		if dsn == "" {
			dsn = "./forage-ws.db"
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=5000"
		}
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
		single = true
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		db, err = gorm.Open(postgres.New(postgres.Config{DSN: dbURL}), cfg)
	default:
		return nil, fmt.Errorf("unsupported db scheme: %s", dbURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if single {
		// SQLite allows one writer; a single connection also keeps
		// :memory: databases alive for the life of the store.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database object: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &Store{db: db}, nil
}

// New wraps an existing GORM handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate applies schema migrations for all models.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&WorkspaceRecord{}, &PortRecord{}, &RouteRecord{}); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_workspaces_owner_name ON workspaces (owner_id, name) WHERE status <> 'deleted'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_workspaces_hostname ON workspaces (public_hostname) WHERE status <> 'deleted'`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
