// Package history persists a summary of every manipulator run so operators
// can inspect past runs with `tierkeeper history`.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

// ListOptions filters List.
type ListOptions struct {
	// Manipulator restricts to one kind (deleter, puller, recoverer).
	Manipulator string

	// Since keeps runs started at or after it.
	Since time.Time

	// Limit caps the result. Zero means 50.
	Limit int
}

// GORMStore stores runs in SQLite or PostgreSQL through GORM.
type GORMStore struct {
	db     *gorm.DB
	config *Config
}

// New opens the history database and migrates its schema.
func New(config *Config) (*GORMStore, error) {
	if config == nil {
		config = &Config{}
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid history configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
		// WAL lets `tierkeeper history` read while the daemon writes.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported history database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch config.Type {
	case DatabaseTypeSQLite:
		// One writer; an in-memory database also lives in a single connection.
		sqlDB.SetMaxOpenConns(1)
	case DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(&Run{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run history migration: %w", err)
	}

	return &GORMStore{db: db, config: config}, nil
}

// DB returns the underlying GORM connection.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// Record stores the outcome of one run and prunes expired runs when a
// retention is configured.
func (s *GORMStore) Record(ctx context.Context, res manipulator.RunResult, runErr error) error {
	run := FromResult(res, runErr)
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("record run %s: %w", res.RunID, err)
	}

	if s.config.RetentionDays > 0 {
		cutoff := res.StartedAt.AddDate(0, 0, -s.config.RetentionDays)
		if _, err := s.Prune(ctx, cutoff); err != nil {
			return err
		}
	}
	return nil
}

// List returns runs, most recent first.
func (s *GORMStore) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	q := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(opts.Limit)
	if opts.Manipulator != "" {
		q = q.Where("manipulator = ?", opts.Manipulator)
	}
	if !opts.Since.IsZero() {
		q = q.Where("started_at >= ?", opts.Since.UTC())
	}

	var runs []*Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []*Run{}
	}
	return runs, nil
}

// Get returns the run with the given run ID.
func (s *GORMStore) Get(ctx context.Context, runID string) (*Run, error) {
	var run Run
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, convertNotFoundError(err)
	}
	return &run, nil
}

// Last returns the most recent run of a manipulator kind.
func (s *GORMStore) Last(ctx context.Context, kind string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Where("manipulator = ?", kind).
		Order("started_at DESC").Order("id DESC").
		First(&run).Error
	if err != nil {
		return nil, convertNotFoundError(err)
	}
	return &run, nil
}

// Prune deletes runs started before cutoff and returns how many were removed.
func (s *GORMStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("started_at < ?", cutoff.UTC()).Delete(&Run{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GORMStore) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

func convertNotFoundError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRunNotFound
	}
	return err
}
