// Package bitmap decodes captured page bitmaps from data URLs, files and HTTP(S) URLs.
package bitmap

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format
	_ "image/jpeg" // Register JPEG format
	"image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/webp" // Register WebP format

	httputil "github.com/jmylchreest/swatchwise/internal/util/http"
)

// ErrNotDataURL is returned by DecodeDataURL for input without a "data:" prefix.
var ErrNotDataURL = errors.New("bitmap: not a data URL")

// DecodeDataURL decodes a base64 "data:image/...;base64,..." reference as produced by
// the capture service.
func DecodeDataURL(ref string) (image.Image, error) {
	if !strings.HasPrefix(ref, "data:") {
		return nil, ErrNotDataURL
	}

	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URL: missing payload separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("unsupported data URL encoding %q (expected base64)", meta)
	}
	if mime := strings.TrimSuffix(meta, ";base64"); mime != "" && !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("unsupported data URL media type %q", mime)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URL payload: %w", err)
	}

	return Decode(data)
}

// Decode decodes raw PNG, JPEG, GIF or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image (format: %s): %w", format, err)
	}
	return img, nil
}

// DecodeReader decodes an image read from r.
func DecodeReader(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return Decode(data)
}

// EncodeDataURL wraps encoded image bytes of the given format ("png", "jpeg", "webp")
// in a data URL.
func EncodeDataURL(data []byte, format string) string {
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// PNGDataURL encodes img as a PNG data URL.
func PNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	return EncodeDataURL(buf.Bytes(), "png"), nil
}

// LoadFile decodes an image file from disk.
func LoadFile(path string) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("image path cannot be empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to stat image file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 - User-specified image path, intended to be read
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return Decode(data)
}

// Load decodes a bitmap reference: a data URL, an http(s) URL or a file path.
func Load(ctx context.Context, ref string, opts httputil.FetchOptions) (image.Image, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return DecodeDataURL(ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		data, err := httputil.Fetch(ctx, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch image from URL: %w", err)
		}
		return Decode(data)
	default:
		return LoadFile(ref)
	}
}
