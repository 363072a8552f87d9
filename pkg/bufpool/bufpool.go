// Package bufpool pools the fixed-size buffers used to stream object bytes
// between tiers.
//
// Every object copy (local write, remote download) needs a scratch buffer.
// Allocating one per object puts a lot of pressure on the GC during a puller
// run that moves thousands of objects, so buffers are recycled through a
// sync.Pool instead.
//
// Usage:
//
//	n, err := bufpool.Copy(dst, src)
package bufpool

import (
	"errors"
	"io"
	"sync"
)

// DefaultSize is the size of the buffers handed out by the package-level pool.
const DefaultSize = 256 * 1024

// minSize is the smallest buffer a Pool will hand out.
const minSize = 4 * 1024

var errInvalidWrite = errors.New("bufpool: invalid write result")

// Pool hands out buffers of a single size.
type Pool struct {
	size int
	pool sync.Pool
}

// New creates a Pool of buffers of the given size. Sizes below 4KB are raised
// to 4KB.
func New(size int) *Pool {
	if size < minSize {
		size = minSize
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, p.size)
		return &buf
	}
	return p
}

// Size returns the length of the buffers handed out by the pool.
func (p *Pool) Size() int {
	return p.size
}

// Get returns a buffer of exactly Size bytes. Return it with Put when done.
func (p *Pool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Nil buffers and buffers that were resliced
// below the pool size are dropped.
func (p *Pool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) < p.size {
		return
	}
	*buf = (*buf)[:p.size]
	p.pool.Put(buf)
}

// Copy copies src to dst through a pooled buffer until EOF or an error.
//
// Unlike io.Copy it never delegates to io.ReaderFrom or io.WriterTo, so every
// chunk goes through src.Read. Readers that check a context per Read keep
// working when dst is an *os.File.
func (p *Pool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := p.Get()
	defer p.Put(buf)

	var written int64
	for {
		nr, rerr := src.Read(*buf)
		if nr > 0 {
			nw, werr := dst.Write((*buf)[:nr])
			if nw < 0 || nw > nr {
				nw = 0
				if werr == nil {
					werr = errInvalidWrite
				}
			}
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

var defaultPool = New(DefaultSize)

// Get returns a buffer from the default pool.
func Get() *[]byte {
	return defaultPool.Get()
}

// Put returns a buffer to the default pool.
func Put(buf *[]byte) {
	defaultPool.Put(buf)
}

// Copy copies src to dst using the default pool.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	return defaultPool.Copy(dst, src)
}
