// Package bytesize parses and formats byte quantities such as "1MiB" or "500MB".
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes. It decodes from plain numbers or from strings
// with a decimal (K, MB, ...) or binary (Ki, MiB, ...) unit suffix.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var units = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB,
	"m": MB, "mb": MB,
	"g": GB, "gb": GB,
	"t": TB, "tb": TB,
	"ki": KiB, "kib": KiB,
	"mi": MiB, "mib": MiB,
	"gi": GiB, "gib": GiB,
	"ti": TiB, "tib": TiB,
}

// Parse converts a human-readable size into a ByteSize.
func Parse(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	unit, ok := units[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q", m[2])
	}

	if strings.Contains(m[1], ".") {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size number %q: %w", m[1], err)
		}
		return ByteSize(f * float64(unit)), nil
	}

	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number %q: %w", m[1], err)
	}
	return ByteSize(n) * unit, nil
}

// UnmarshalText lets ByteSize be decoded directly by mapstructure and yaml.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalText writes the size back in its human-readable form.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// String formats the size with the largest binary unit that keeps the value >= 1.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return trimUnit(float64(b)/float64(TiB), "TiB")
	case b >= GiB:
		return trimUnit(float64(b)/float64(GiB), "GiB")
	case b >= MiB:
		return trimUnit(float64(b)/float64(MiB), "MiB")
	case b >= KiB:
		return trimUnit(float64(b)/float64(KiB), "KiB")
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Int64 returns the size as int64. Values above math.MaxInt64 wrap.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// Format renders a signed byte count for reports. Negative counts render as 0B.
func Format(n int64) string {
	if n <= 0 {
		return "0B"
	}
	return ByteSize(n).String()
}

func trimUnit(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + unit
}
