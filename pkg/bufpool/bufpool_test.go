package bufpool

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Pool Tests
// ============================================================================

func TestPool(t *testing.T) {
	t.Run("HandsOutBuffersOfPoolSize", func(t *testing.T) {
		p := New(8 * 1024)
		buf := p.Get()
		defer p.Put(buf)

		assert.Equal(t, 8*1024, len(*buf))
		assert.Equal(t, 8*1024, p.Size())
	})

	t.Run("RaisesTinySizes", func(t *testing.T) {
		p := New(10)
		assert.Equal(t, minSize, p.Size())
		assert.Len(t, *p.Get(), minSize)
	})

	t.Run("PutRestoresLength", func(t *testing.T) {
		p := New(minSize)
		buf := p.Get()
		*buf = (*buf)[:10]
		p.Put(buf)

		again := p.Get()
		assert.Len(t, *again, minSize)
	})

	t.Run("PutDropsForeignBuffers", func(t *testing.T) {
		p := New(minSize)
		small := make([]byte, 16)
		p.Put(&small)
		p.Put(nil)

		assert.Len(t, *p.Get(), minSize)
	})

	t.Run("DefaultPool", func(t *testing.T) {
		buf := Get()
		defer Put(buf)
		assert.Len(t, *buf, DefaultSize)
	})
}

func TestPoolConcurrentAccess(t *testing.T) {
	p := New(minSize)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := p.Get()
				(*buf)[0] = byte(id)
				p.Put(buf)
			}
		}(i)
	}
	wg.Wait()
}

// ============================================================================
// Copy Tests
// ============================================================================

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return len(p) - 1, nil
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// readerFromSpy fails the test if Copy takes the io.ReaderFrom shortcut.
type readerFromSpy struct {
	bytes.Buffer
	t *testing.T
}

func (s *readerFromSpy) ReadFrom(r io.Reader) (int64, error) {
	s.t.Fatal("ReadFrom must not be used")
	return 0, nil
}

func TestCopy(t *testing.T) {
	t.Run("CopiesLargerThanBuffer", func(t *testing.T) {
		p := New(minSize)
		data := bytes.Repeat([]byte("tierkeeper"), 3*minSize)

		var dst bytes.Buffer
		n, err := p.Copy(&dst, bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
		assert.Equal(t, data, dst.Bytes())
	})

	t.Run("EmptySource", func(t *testing.T) {
		var dst bytes.Buffer
		n, err := Copy(&dst, strings.NewReader(""))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ReaderErrorKeepsCount", func(t *testing.T) {
		boom := errors.New("boom")
		var dst bytes.Buffer
		n, err := Copy(&dst, &failingReader{data: []byte("abc"), err: boom})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(3), n)
		assert.Equal(t, "abc", dst.String())
	})

	t.Run("ShortWrite", func(t *testing.T) {
		_, err := Copy(shortWriter{}, strings.NewReader("abcdef"))
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})

	t.Run("NeverUsesReaderFrom", func(t *testing.T) {
		dst := &readerFromSpy{t: t}
		n, err := Copy(dst, strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		assert.Equal(t, "hello", dst.String())
	})
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkCopy(b *testing.B) {
	data := bytes.Repeat([]byte{0xAB}, 1<<20)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Copy(io.Discard, bytes.NewReader(data))
	}
}
