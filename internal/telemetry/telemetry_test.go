package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useRecorder installs an in-memory tracer for the duration of the test and
// returns the span recorder.
func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := tp.Tracer(instrumentationName)
	current.Store(&tr)
	t.Cleanup(func() {
		current.Store(nil)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "tierkeeper", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Profiling.Enabled)
	assert.Contains(t, cfg.Profiling.ProfileTypes, "cpu")
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestTracerWithoutInit(t *testing.T) {
	current.Store(nil)

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		assert.True(t, strings.HasPrefix(sampler(tt.rate).Description(), "ParentBased{root:"+tt.want),
			"rate %v: %s", tt.rate, sampler(tt.rate).Description())
	}
}

func TestRunSpanHierarchy(t *testing.T) {
	rec := useRecorder(t)

	ctx, run := StartRunSpan(context.Background(), "puller", "run-1", Candidates(2))
	require.NotEmpty(t, TraceID(ctx))
	require.NotEmpty(t, SpanID(ctx))

	octx, obj := StartObjectSpan(ctx, "pull", "ab12cd34", FileSize(10))
	_, tierSpan := StartTierSpan(octx, "s3", "get", ContentHash("ab12cd34"))
	tierSpan.End()
	obj.End()

	_, query := StartLocationStoreSpan(ctx, "find_candidates")
	query.End()
	run.End()

	spans := rec.Ended()
	require.Len(t, spans, 4)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	require.Contains(t, byName, "run.puller")
	require.Contains(t, byName, "object.pull")
	require.Contains(t, byName, "tier.get")
	require.Contains(t, byName, "locations.find_candidates")

	runID := byName["run.puller"].SpanContext().SpanID()
	assert.Equal(t, runID, byName["object.pull"].Parent().SpanID())
	assert.Equal(t, runID, byName["locations.find_candidates"].Parent().SpanID())
	assert.Equal(t, byName["object.pull"].SpanContext().SpanID(), byName["tier.get"].Parent().SpanID())

	assert.Contains(t, byName["run.puller"].Attributes(), Manipulator("puller"))
	assert.Contains(t, byName["run.puller"].Attributes(), RunID("run-1"))
	assert.Contains(t, byName["tier.get"].Attributes(), Tier("s3"))
}

func TestRecordError(t *testing.T) {
	rec := useRecorder(t)

	ctx, span := StartSpan(context.Background(), "failing")
	RecordError(ctx, nil)
	RecordError(ctx, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}

func TestRecordErrorOutsideSpan(t *testing.T) {
	require.NotPanics(t, func() {
		RecordError(context.Background(), errors.New("boom"))
	})
	assert.False(t, trace.SpanContextFromContext(context.Background()).IsValid())
}

func TestAttributeHelpers(t *testing.T) {
	assert.Equal(t, "deleter", Manipulator("deleter").Value.AsString())
	assert.Equal(t, AttrContentHash, string(ContentHash("ab12").Key))
	assert.Equal(t, int64(1048576), FileSize(1048576).Value.AsInt64())
	assert.Equal(t, "REMOTE", Location("REMOTE").Value.AsString())
	assert.Equal(t, "LOCAL", ExpectedLocation("LOCAL").Value.AsString())
	assert.Equal(t, int64(12), Candidates(12).Value.AsInt64())
	assert.True(t, DeadlineReached(true).Value.AsBool())
	assert.Equal(t, int64(7), TotalBytes(7).Value.AsInt64())
}

func TestParseProfileType(t *testing.T) {
	for _, name := range []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space",
		"goroutines", "mutex_count", "mutex_duration", "block_count", "block_duration"} {
		_, err := parseProfileType(name)
		assert.NoError(t, err, name)
	}
	_, err := parseProfileType("heap")
	assert.Error(t, err)
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestInitProfilingRejectsUnknownType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{Enabled: true, Endpoint: "http://localhost:4040", ProfileTypes: []string{"heap"}})
	assert.ErrorContains(t, err, "heap")
}
