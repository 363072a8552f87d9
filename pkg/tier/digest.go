package tier

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/marmos91/tierkeeper/pkg/location"
)

// DigestAlgorithm names the hash that produced content hashes.
type DigestAlgorithm string

const (
	DigestNone   DigestAlgorithm = "none"
	DigestSHA1   DigestAlgorithm = "sha1"
	DigestSHA256 DigestAlgorithm = "sha256"
	DigestBLAKE3 DigestAlgorithm = "blake3"
)

// ParseDigestAlgorithm parses an algorithm name. Empty means none.
func ParseDigestAlgorithm(s string) (DigestAlgorithm, error) {
	switch a := DigestAlgorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return DigestNone, nil
	case DigestNone, DigestSHA1, DigestSHA256, DigestBLAKE3:
		return a, nil
	}
	return "", fmt.Errorf("unknown digest algorithm %q", s)
}

// New returns a fresh hash.Hash, or nil for DigestNone.
func (a DigestAlgorithm) New() hash.Hash {
	switch a {
	case DigestSHA1:
		return sha1.New()
	case DigestSHA256:
		return sha256.New()
	case DigestBLAKE3:
		return blake3.New()
	}
	return nil
}

// Sum hashes data and returns its content hash. It panics for DigestNone.
func (a DigestAlgorithm) Sum(data []byte) location.ContentHash {
	h := a.New()
	h.Write(data)
	return location.ContentHash(hex.EncodeToString(h.Sum(nil)))
}

// verifyingReader hashes everything read through it and, at EOF, replaces
// io.EOF with ErrDigestMismatch when the digest differs from want.
type verifyingReader struct {
	r    io.Reader
	h    hash.Hash
	want location.ContentHash
	done bool
}

// Verify wraps r so that reading it to EOF checks the digest against want.
// With DigestNone it returns r unchanged.
func (a DigestAlgorithm) Verify(r io.Reader, want location.ContentHash) io.Reader {
	h := a.New()
	if h == nil {
		return r
	}
	return &verifyingReader{r: r, h: h, want: want}
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		v.h.Write(p[:n])
	}
	if err == io.EOF && !v.done {
		v.done = true
		if got := hex.EncodeToString(v.h.Sum(nil)); got != string(v.want) {
			return n, fmt.Errorf("%w: want %s, got %s", ErrDigestMismatch, v.want, got)
		}
	}
	return n, err
}
