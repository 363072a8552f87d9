// Package local is the filesystem tier. Objects live at
// {base}/{h[0:2]}/{h[2:4]}/{h}.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marmos91/tierkeeper/pkg/bufpool"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/tier"
)

// Config holds configuration for the filesystem tier.
type Config struct {
	// Path is the root directory of the object tree.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// CreateDir creates Path when missing. Default: true
	CreateDir *bool `mapstructure:"create_dir" yaml:"create_dir,omitempty"`

	// DirMode and FileMode default to 0755 and 0644.
	DirMode  os.FileMode `mapstructure:"dir_mode" yaml:"dir_mode,omitempty"`
	FileMode os.FileMode `mapstructure:"file_mode" yaml:"file_mode,omitempty"`
}

// Store is a tier.Tier on a local directory.
type Store struct {
	mu       sync.RWMutex
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
	closed   bool
}

var _ tier.Tier = (*Store)(nil)

// New creates the filesystem tier.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("local tier: path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	if cfg.CreateDir == nil || *cfg.CreateDir {
		if err := os.MkdirAll(cfg.Path, cfg.DirMode); err != nil {
			return nil, fmt.Errorf("create local tier directory: %w", err)
		}
	}

	base, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(base)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local tier: %s is not a directory", base)
	}

	return &Store{basePath: base, dirMode: cfg.DirMode, fileMode: cfg.FileMode}, nil
}

func (s *Store) Name() string { return "local" }

// BasePath returns the root directory.
func (s *Store) BasePath() string { return s.basePath }

// ObjectPath returns the path of hash under the tree.
func (s *Store) ObjectPath(hash location.ContentHash) string {
	h := string(hash)
	return filepath.Join(s.basePath, h[0:2], h[2:4], h)
}

func (s *Store) path(hash location.ContentHash) (string, error) {
	if err := hash.Validate(); err != nil {
		return "", err
	}
	return s.ObjectPath(hash), nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return tier.ErrStoreClosed
	}
	return nil
}

func mapNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return tier.ErrObjectNotFound
	}
	return err
}

func (s *Store) Stat(ctx context.Context, hash location.ContentHash) (tier.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return tier.ObjectInfo{}, err
	}
	if err := s.checkOpen(); err != nil {
		return tier.ObjectInfo{}, err
	}
	p, err := s.path(hash)
	if err != nil {
		return tier.ObjectInfo{}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return tier.ObjectInfo{}, mapNotExist(err)
	}
	if !info.Mode().IsRegular() {
		return tier.ObjectInfo{}, fmt.Errorf("%s is not a regular file", p)
	}
	return tier.ObjectInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *Store) Open(ctx context.Context, hash location.ContentHash) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	p, err := s.path(hash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, mapNotExist(err)
	}
	return f, nil
}

// Put writes to a temporary file in the target directory, syncs it and
// renames it into place.
func (s *Store) Put(ctx context.Context, hash location.ContentHash, r io.Reader) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	p, err := s.path(hash)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, "."+string(hash)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			s.cleanEmptyDirs(dir)
		}
	}()

	n, err := bufpool.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		return 0, err
	}
	if err := tmp.Chmod(s.fileMode); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

func (s *Store) Delete(ctx context.Context, hash location.ContentHash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	p, err := s.path(hash)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil {
		return mapNotExist(err)
	}
	s.cleanEmptyDirs(filepath.Dir(p))
	return nil
}

// cleanEmptyDirs removes empty fan-out directories up to the base path.
func (s *Store) cleanEmptyDirs(dir string) {
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

// HealthCheck verifies the base directory is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := os.Stat(s.basePath); err != nil {
		return fmt.Errorf("local tier health check failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
