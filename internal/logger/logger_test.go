package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer, restoring the previous
// writer, format and level on cleanup.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	origOutput, origColor, origFormat := output, color, format
	output, color = buf, false
	mu.Unlock()
	origLevel := level.Level()
	reconfigure()

	t.Cleanup(func() {
		mu.Lock()
		output, color, format = origOutput, origColor, origFormat
		mu.Unlock()
		level.Set(origLevel)
		reconfigure()
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level    string
		present  []string
		filtered []string
	}{
		{"DEBUG", []string{"debug message", "info message", "warn message", "error message"}, nil},
		{"INFO", []string{"info message", "warn message", "error message"}, []string{"debug message"}},
		{"WARN", []string{"warn message", "error message"}, []string{"debug message", "info message"}},
		{"ERROR", []string{"error message"}, []string{"debug message", "info message", "warn message"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.filtered {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		captureOutput(t)
		SetLevel("warn")
		assert.Equal(t, slog.LevelWarn, level.Level())
		SetLevel("Debug")
		assert.Equal(t, slog.LevelDebug, level.Level())
	})

	t.Run("InvalidLevelIgnored", func(t *testing.T) {
		captureOutput(t)
		SetLevel("ERROR")
		SetLevel("LOUD")
		assert.Equal(t, slog.LevelError, level.Level())
	})
}

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("text")

	Info("deleter processed", KeyProcessed, 3, "note", "two words", KeyDurationMs, 1.5)

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "deleter processed")
	assert.Contains(t, line, "processed=3")
	assert.Contains(t, line, `note="two words"`)
	assert.Contains(t, line, "duration_ms=1.500")
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.NotContains(t, line, "\033[", "color must be off for buffers")
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("json")

	Info("candidates selected", KeyCandidates, 7, KeyManipulator, "puller")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "candidates selected", rec["msg"])
	assert.EqualValues(t, 7, rec[KeyCandidates])
	assert.Equal(t, "puller", rec[KeyManipulator])
}

func TestFormatSwitching(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	SetFormat("json")
	Info("first")
	SetFormat("text")
	Info("second")
	SetFormat("yaml") // ignored
	Info("third")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, json.Valid([]byte(lines[0])))
	assert.False(t, json.Valid([]byte(lines[1])))
	assert.Contains(t, lines[2], "third")
	assert.False(t, json.Valid([]byte(lines[2])))
}

func TestContextLogging(t *testing.T) {
	t.Run("RunFieldsPrefixed", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DEBUG")
		SetFormat("json")

		lc := NewRunContext("run-42", "recoverer").WithTrace("trace-1", "span-1")
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "object probed", KeyContentHash, "abc")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "run-42", rec[KeyRunID])
		assert.Equal(t, "recoverer", rec[KeyManipulator])
		assert.Equal(t, "trace-1", rec[KeyTraceID])
		assert.Equal(t, "span-1", rec[KeySpanID])
		assert.Equal(t, "abc", rec[KeyContentHash])
	})

	t.Run("NoContextFields", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DEBUG")

		WarnCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
		assert.NotContains(t, buf.String(), KeyRunID)
	})

	t.Run("FilteredByLevel", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("ERROR")

		ctx := WithContext(context.Background(), NewRunContext("r", "deleter"))
		DebugCtx(ctx, "hidden")
		InfoCtx(ctx, "hidden")
		ErrorCtx(ctx, "shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestLogContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Nil(t, FromContext(nil)) //nolint:staticcheck // nil context is handled

	lc := NewRunContext("run-1", "deleter")
	assert.False(t, lc.StartTime.IsZero())

	traced := lc.WithTrace("t", "s")
	assert.Empty(t, lc.TraceID, "WithTrace must not mutate the receiver")
	assert.Equal(t, "t", traced.TraceID)
	assert.Equal(t, "run-1", traced.RunID)

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Zero(t, nilCtx.DurationMs())

	lc.StartTime = time.Now().Add(-50 * time.Millisecond)
	assert.GreaterOrEqual(t, lc.DurationMs(), 50.0)
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, slog.String(KeyContentHash, "ff"), ContentHash("ff"))
	assert.Equal(t, slog.Int64(KeyFileSize, 10), FileSize(10))
	assert.Equal(t, slog.String(KeyLocation, "REMOTE"), Location("REMOTE"))
	assert.Equal(t, slog.String(KeyError, "boom"), Err(errors.New("boom")))
	assert.True(t, Err(nil).Equal(slog.Attr{}))
}

func TestConsoleHandlerGroups(t *testing.T) {
	buf := new(bytes.Buffer)
	l := slog.New(NewConsoleHandler(buf, slog.LevelInfo, false))

	l.WithGroup("s3").With("bucket", "b").Info("op", slog.Group("retry", "n", 2), "err", errors.New("x y"))

	out := buf.String()
	assert.Contains(t, out, "s3.bucket=b")
	assert.Contains(t, out, "s3.retry.n=2")
	assert.Contains(t, out, `s3.err="x y"`)
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", "g", n, "i", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20*50)
	for _, line := range lines {
		assert.Contains(t, line, "concurrent")
	}
}

func TestInit(t *testing.T) {
	t.Run("FileOutput", func(t *testing.T) {
		captureOutput(t)
		path := filepath.Join(t.TempDir(), "tierkeeper.log")

		require.NoError(t, Init(Config{Level: "INFO", Format: "json", Output: path}))
		Info("to file")
		require.NoError(t, Init(Config{Output: "stderr"})) // closes the file

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"to file"`)
	})

	t.Run("BadPath", func(t *testing.T) {
		captureOutput(t)
		err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
		assert.Error(t, err)
	})
}

func BenchmarkLogDisabled(b *testing.B) {
	InitWithWriter(new(bytes.Buffer), "ERROR", "text", false)
	for i := 0; i < b.N; i++ {
		Debug("disabled", KeyContentHash, "abc")
	}
}

func BenchmarkLogJSON(b *testing.B) {
	InitWithWriter(new(bytes.Buffer), "INFO", "json", false)
	ctx := WithContext(context.Background(), NewRunContext("run", "deleter"))
	for i := 0; i < b.N; i++ {
		InfoCtx(ctx, "transition", KeyContentHash, "abc", KeyFileSize, 42)
	}
}
