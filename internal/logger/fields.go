package logger

import (
	"log/slog"
	"time"
)

// Standard field keys. Use them consistently so log lines can be aggregated
// and queried across manipulators.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Run identification
	KeyRunID       = "run_id"
	KeyManipulator = "manipulator"
	KeyDeadline    = "deadline"

	// Objects and tiers
	KeyContentHash = "contenthash"
	KeyFileSize    = "filesize"
	KeyLocation    = "location"
	KeyExpected    = "expected"
	KeyTier        = "tier"
	KeyBucket      = "bucket"
	KeyKey         = "key"
	KeyPath        = "path"

	// Run statistics
	KeyCandidates = "candidates"
	KeyProcessed  = "processed"
	KeyTotalBytes = "total_bytes"
	KeyConflicts  = "conflicts"
	KeyFailures   = "failures"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyStore      = "store"
	KeyOperation  = "operation"
)

// TraceID returns a slog.Attr for an OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for an OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// RunID returns a slog.Attr for a run identifier.
func RunID(id string) slog.Attr {
	return slog.String(KeyRunID, id)
}

// Manipulator returns a slog.Attr naming the manipulator kind.
func Manipulator(name string) slog.Attr {
	return slog.String(KeyManipulator, name)
}

// ContentHash returns a slog.Attr for a content hash.
func ContentHash(hash string) slog.Attr {
	return slog.String(KeyContentHash, hash)
}

// FileSize returns a slog.Attr for an object size in bytes.
func FileSize(n int64) slog.Attr {
	return slog.Int64(KeyFileSize, n)
}

// Location returns a slog.Attr for a tier location name.
func Location(name string) slog.Attr {
	return slog.String(KeyLocation, name)
}

// Tier returns a slog.Attr naming a storage tier (local, remote).
func Tier(name string) slog.Attr {
	return slog.String(KeyTier, name)
}

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Bucket returns a slog.Attr for an object store bucket.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key.
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Duration returns a slog.Attr with the elapsed time since start in milliseconds.
func DurationSince(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}

// Err returns a slog.Attr for an error. A nil error yields an empty attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
