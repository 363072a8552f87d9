// Package tier moves object bytes between the local and remote tiers and
// reports where an object actually lives.
package tier

import (
	"context"
	"io"
	"time"

	"github.com/marmos91/tierkeeper/pkg/location"
)

// ObjectInfo describes one stored copy of an object.
type ObjectInfo struct {
	Size    int64
	ModTime time.Time
}

// Tier is one storage class holding objects by content hash. Implementations
// return ErrObjectNotFound for missing objects.
type Tier interface {
	// Name identifies the tier in logs and metrics ("local", "s3", ...).
	Name() string

	Stat(ctx context.Context, hash location.ContentHash) (ObjectInfo, error)
	Open(ctx context.Context, hash location.ContentHash) (io.ReadCloser, error)

	// Put stores the bytes read from r. The object becomes visible only once
	// r is fully consumed; a read error leaves the tier unchanged.
	Put(ctx context.Context, hash location.ContentHash, r io.Reader) (int64, error)

	Delete(ctx context.Context, hash location.ContentHash) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// Metrics records tier operations. A nil Metrics disables recording.
type Metrics interface {
	ObserveOperation(tier, operation string, duration time.Duration, err error)
	RecordBytes(tier, operation string, bytes int64)
}
