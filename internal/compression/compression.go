// Package compression detects and decodes compressed catalog payloads.
package compression

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/swatchwise/internal/security"
	"github.com/ulikunitz/xz"
)

// Format identifies a compression container.
type Format string

const (
	None  Format = ""
	Gzip  Format = "gz"
	Xz    Format = "xz"
	Bzip2 Format = "bz2"
)

// DefaultMaxSize caps decompressed payloads.
const DefaultMaxSize int64 = 64 * 1024 * 1024

var (
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
)

// Detect determines the format of data from its magic bytes, falling back to the
// extension of name.
func Detect(data []byte, name string) Format {
	switch {
	case bytes.HasPrefix(data, magicXz):
		return Xz
	case bytes.HasPrefix(data, magicGzip):
		return Gzip
	case bytes.HasPrefix(data, magicBzip2):
		return Bzip2
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xz":
		return Xz
	case ".gz", ".gzip":
		return Gzip
	case ".bz2":
		return Bzip2
	}
	return None
}

// Decompress returns data decoded according to its detected format. Uncompressed
// input is returned unchanged. The decoded size is capped at maxSize (DefaultMaxSize
// when zero or negative).
func Decompress(data []byte, name string, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	var r io.Reader
	switch format := Detect(data, name); format {
	case None:
		return data, nil
	case Xz:
		xzr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xzr
	case Gzip:
		gzr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	case Bzip2:
		r = bzip2.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported compression format: %s", format)
	}

	out, err := io.ReadAll(security.NewLimitedReader(r, maxSize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", name, err)
	}
	return out, nil
}

// Compress encodes data in the given format. Bzip2 is read-only.
func Compress(data []byte, format Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case None:
		return data, nil
	case Xz:
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write xz data: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close xz writer: %w", err)
		}
	case Gzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write gzip data: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported compression format for writing: %s", format)
	}

	return buf.Bytes(), nil
}

// ParseFormat maps a user-supplied name ("xz", "gz", "gzip", "none") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "none":
		return None, nil
	case "xz":
		return Xz, nil
	case "gz", "gzip":
		return Gzip, nil
	}
	return None, fmt.Errorf("unknown compression format %q (expected none, xz or gz)", s)
}
