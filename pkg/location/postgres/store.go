// Package postgres is a location.Store on PostgreSQL (pgx). The schema is
// managed by embedded golang-migrate migrations.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/location"
)

// Store is a location.Store backed by a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	cfg    Config
	mu     sync.RWMutex
	closed bool
}

var _ location.Store = (*Store)(nil)

// New connects to PostgreSQL, running migrations first when cfg.AutoMigrate is set.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.AutoMigrate {
		if _, err := runMigrations(ctx, cfg.ConnectionString()); err != nil {
			return nil, err
		}
	}

	pool, err := createPool(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, cfg: cfg}, nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return location.ErrStoreClosed
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// buildCandidateQuery renders q as one grouped join of files against objects.
func buildCandidateQuery(q location.CandidateQuery) (string, []any) {
	var (
		sb   strings.Builder
		args = []any{int16(q.Location)}
	)
	sb.WriteString(`SELECT f.contenthash, MAX(f.filesize)
FROM files f
JOIN objects o ON o.contenthash = f.contenthash
WHERE o.location = $1`)
	if q.DuplicatedBefore != nil {
		args = append(args, q.DuplicatedBefore.UTC())
		fmt.Fprintf(&sb, "\n  AND o.timeduplicated IS NOT NULL AND o.timeduplicated <= $%d", len(args))
	}
	sb.WriteString("\nGROUP BY f.contenthash")
	if q.MaxFileSize != nil {
		args = append(args, *q.MaxFileSize)
		fmt.Fprintf(&sb, "\nHAVING MAX(f.filesize) <= $%d", len(args))
	}
	sb.WriteString("\nORDER BY f.contenthash COLLATE \"C\"")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, "\nLIMIT $%d", len(args))
	}
	return sb.String(), args
}

func (s *Store) FindCandidates(ctx context.Context, q location.CandidateQuery) ([]location.Candidate, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	sql, args := buildCandidateQuery(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError(err, "find candidates", "")
	}
	defer rows.Close()

	out := make([]location.Candidate, 0)
	for rows.Next() {
		var c location.Candidate
		if err := rows.Scan(&c.ContentHash, &c.FileSize); err != nil {
			return nil, mapPgError(err, "scan candidate", "")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "find candidates", "")
	}
	return out, nil
}

// UpdateLocation is a single conditional UPDATE. The SET expressions see the
// pre-update row, so the CASE stamps timeduplicated only on entry into
// DUPLICATED.
func (s *Store) UpdateLocation(ctx context.Context, hash location.ContentHash, expected, next location.Location, now time.Time) (bool, error) {
	if !next.Valid() {
		return false, location.ErrInvalidLocation
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return false, err
	}

	const q = `UPDATE objects
SET location = $3::smallint,
    timeduplicated = CASE
        WHEN $3::smallint = 1 AND location <> 1 THEN $4::timestamptz
        ELSE timeduplicated
    END
WHERE contenthash = $1 AND location = $2::smallint`

	tag, err := s.pool.Exec(ctx, q, string(hash), int16(expected), int16(next), now.UTC())
	if err != nil {
		return false, mapPgError(err, "update location", hash)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetRecord(ctx context.Context, hash location.ContentHash) (*location.ObjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var (
		rec  location.ObjectRecord
		kind int16
		dup  *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT contenthash, location, filesize, timeduplicated FROM objects WHERE contenthash = $1`,
		string(hash),
	).Scan(&rec.ContentHash, &kind, &rec.FileSize, &dup)
	if err != nil {
		return nil, mapPgError(err, "get record", hash)
	}

	rec.Location = location.Location(kind)
	if dup != nil {
		rec.TimeDuplicated = *dup
	}
	return &rec, nil
}

func (s *Store) PutRecord(ctx context.Context, rec location.ObjectRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO objects (contenthash, location, filesize, timeduplicated)
VALUES ($1, $2, $3, $4)
ON CONFLICT (contenthash) DO UPDATE
SET location = EXCLUDED.location, filesize = EXCLUDED.filesize, timeduplicated = EXCLUDED.timeduplicated`,
		string(rec.ContentHash), int16(rec.Location), rec.FileSize, nullTime(rec.TimeDuplicated),
	)
	return mapPgError(err, "put record", rec.ContentHash)
}

func (s *Store) AddFile(ctx context.Context, f location.File) error {
	if err := f.ContentHash.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	var err error
	if f.ID == 0 {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO files (contenthash, filesize, filename) VALUES ($1, $2, $3)`,
			string(f.ContentHash), f.FileSize, f.FileName)
	} else {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO files (id, contenthash, filesize, filename) VALUES ($1, $2, $3, $4)`,
			f.ID, string(f.ContentHash), f.FileSize, f.FileName)
	}
	return mapPgError(err, "add file", f.ContentHash)
}

func (s *Store) CountByLocation(ctx context.Context) (map[location.Location]location.LocationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT location, COUNT(*), COALESCE(SUM(filesize), 0)::bigint FROM objects GROUP BY location`)
	if err != nil {
		return nil, mapPgError(err, "count by location", "")
	}
	defer rows.Close()

	out := make(map[location.Location]location.LocationSummary)
	for rows.Next() {
		var (
			l   int16
			sum location.LocationSummary
		)
		if err := rows.Scan(&l, &sum.Objects, &sum.Bytes); err != nil {
			return nil, mapPgError(err, "scan count", "")
		}
		out[location.Location(l)] = sum
	}
	return out, mapPgError(rows.Err(), "count by location", "")
}

// Healthcheck pings the pool.
func (s *Store) Healthcheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	logger.Info("Closing PostgreSQL connection pool", "host", s.cfg.Host, "database", s.cfg.Database)
	s.pool.Close()
	return nil
}
