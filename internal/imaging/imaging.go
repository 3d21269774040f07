// Package imaging validates uploaded image payloads without decoding pixels.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for DecodeConfig
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is a supported image container.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
)

var allowedExtensions = map[string]Format{
	"png":  FormatPNG,
	"jpg":  FormatJPEG,
	"jpeg": FormatJPEG,
	"gif":  FormatGIF,
}

var (
	pngTrailer = []byte{0x00, 0x00, 0x00, 0x00, 'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}
	jpegEOI    = []byte{0xFF, 0xD9}
)

// Extension returns the lowercased extension of filename without the dot.
func Extension(filename string) string {
	ext := filepath.Ext(strings.TrimSpace(filename))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// AllowedExtension reports whether ext (with or without a leading dot) is on
// the allow-list. Matching is case-insensitive.
func AllowedExtension(ext string) bool {
	_, ok := allowedExtensions[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))]
	return ok
}

// Ext is the canonical file extension used when storing a format.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// MIME returns the media type for f.
func (f Format) MIME() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// ContentTypeForExtension maps a stored file extension to a media type.
func ContentTypeForExtension(ext string) string {
	format, ok := allowedExtensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return "application/octet-stream"
	}
	return format.MIME()
}

// Verify checks that data is a structurally valid PNG, JPEG or GIF: the
// signature is sniffed, the header decoded for dimensions, and the container
// trailer checked. Pixel data is never decoded.
func Verify(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}

	mtype := mimetype.Detect(data)
	var format Format
	switch {
	case mtype.Is("image/png"):
		format = FormatPNG
	case mtype.Is("image/jpeg"):
		format = FormatJPEG
	case mtype.Is("image/gif"):
		format = FormatGIF
	default:
		return "", fmt.Errorf("unsupported content type %s", mtype.String())
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode %s header: %w", format, err)
	}
	if Format(name) != format {
		return "", fmt.Errorf("header format %s does not match signature %s", name, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%s has invalid dimensions %dx%d", format, cfg.Width, cfg.Height)
	}

	switch format {
	case FormatPNG:
		if !bytes.HasSuffix(data, pngTrailer) {
			return "", fmt.Errorf("png is truncated")
		}
	case FormatGIF:
		if data[len(data)-1] != 0x3B {
			return "", fmt.Errorf("gif is truncated")
		}
	case FormatJPEG:
		if bytes.LastIndex(data, jpegEOI) < 2 {
			return "", fmt.Errorf("jpeg is truncated")
		}
	}
	return format, nil
}

// DataURL encodes data as a base64 data URL.
func DataURL(data []byte, format Format) string {
	return "data:" + format.MIME() + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 accepts either a data URL or bare base64 text and returns the
// verified image bytes.
func DecodeBase64(payload string) ([]byte, Format, error) {
	encoded := strings.TrimSpace(payload)
	if encoded == "" {
		return nil, "", fmt.Errorf("image payload is empty")
	}
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 || !strings.HasSuffix(encoded[:comma], ";base64") {
			return nil, "", fmt.Errorf("data URL is not base64 encoded")
		}
		encoded = encoded[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("decode base64: %w", err)
		}
	}
	format, err := Verify(data)
	if err != nil {
		return nil, "", err
	}
	return data, format, nil
}
