package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for manipulator runs and tier operations.
const (
	// ========================================================================
	// Run attributes
	// ========================================================================
	AttrManipulator     = "tierkeeper.manipulator" // deleter, puller, recoverer
	AttrAction          = "tierkeeper.action"      // delete, pull, recover
	AttrRunID           = "tierkeeper.run_id"
	AttrCandidates      = "tierkeeper.candidates"
	AttrProcessed       = "tierkeeper.processed"
	AttrTotalBytes      = "tierkeeper.total_bytes"
	AttrConflicts       = "tierkeeper.conflicts"
	AttrDeadlineReached = "tierkeeper.deadline_reached"

	// ========================================================================
	// Object attributes
	// ========================================================================
	AttrContentHash = "object.contenthash"
	AttrFileSize    = "object.filesize"
	AttrLocation    = "object.location"
	AttrExpected    = "object.expected_location"

	// ========================================================================
	// Storage attributes
	// ========================================================================
	AttrTier = "storage.tier"
)

func Manipulator(name string) attribute.KeyValue {
	return attribute.String(AttrManipulator, name)
}

func Action(name string) attribute.KeyValue {
	return attribute.String(AttrAction, name)
}

func RunID(id string) attribute.KeyValue {
	return attribute.String(AttrRunID, id)
}

func Candidates(n int) attribute.KeyValue {
	return attribute.Int(AttrCandidates, n)
}

func Processed(n int) attribute.KeyValue {
	return attribute.Int(AttrProcessed, n)
}

func TotalBytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrTotalBytes, n)
}

func Conflicts(n int) attribute.KeyValue {
	return attribute.Int(AttrConflicts, n)
}

func DeadlineReached(reached bool) attribute.KeyValue {
	return attribute.Bool(AttrDeadlineReached, reached)
}

// ContentHash returns an attribute for an object's content hash.
func ContentHash(hash string) attribute.KeyValue {
	return attribute.String(AttrContentHash, hash)
}

func FileSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, size)
}

// Location returns an attribute for the resolved location name.
func Location(name string) attribute.KeyValue {
	return attribute.String(AttrLocation, name)
}

func ExpectedLocation(name string) attribute.KeyValue {
	return attribute.String(AttrExpected, name)
}

func Tier(name string) attribute.KeyValue {
	return attribute.String(AttrTier, name)
}

// StartRunSpan starts the root span of one manipulator run.
func StartRunSpan(ctx context.Context, manipulator, runID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Manipulator(manipulator),
		RunID(runID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "run."+manipulator, trace.WithAttributes(allAttrs...))
}

// StartObjectSpan starts a span for one candidate being processed.
func StartObjectSpan(ctx context.Context, action, hash string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Action(action),
		ContentHash(hash),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "object."+action, trace.WithAttributes(allAttrs...))
}

// StartTierSpan starts a span for a storage tier operation.
func StartTierSpan(ctx context.Context, tier, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Tier(tier)}, attrs...)
	return StartSpan(ctx, "tier."+operation, trace.WithAttributes(allAttrs...))
}

// StartLocationStoreSpan starts a span for a location store query or update.
func StartLocationStoreSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "locations."+operation, trace.WithAttributes(attrs...))
}
