// Package imaging validates downloaded image bytes and produces placeholder cards.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/timmy/carousel/internal/domain"
	_ "golang.org/x/image/webp"
)

// Default minimum pixel dimensions; smaller images look blurry once scaled onto a slide.
const (
	DefaultMinWidth  = 200
	DefaultMinHeight = 200
)

// allowedTypes maps accepted MIME types to their short format names.
var allowedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Info describes a validated image.
type Info struct {
	Format      string
	ContentType string
	Width       int
	Height      int
	Size        int64
}

// Extension returns the file extension used when storing the image.
func (i Info) Extension() string {
	if i.Format == "jpeg" {
		return ".jpg"
	}
	return "." + i.Format
}

// Inspect validates image bytes without decoding the full pixel data.
// Parameters:
//   - data: raw downloaded bytes.
//   - minWidth, minHeight: minimum accepted dimensions; zero disables the check.
//
// Returns:
//   - Info: detected format and dimensions.
//   - error: a *domain.ValidationError when the bytes are empty, not a supported
//     image signature, undecodable, or too small.
func Inspect(data []byte, minWidth, minHeight int) (Info, error) {
	if len(data) == 0 {
		return Info{}, &domain.ValidationError{Reason: "empty body"}
	}

	mt := mimetype.Detect(data)
	format, ok := allowedTypes[mt.String()]
	if !ok {
		return Info{}, &domain.ValidationError{
			Reason: fmt.Sprintf("unsupported signature %s", mt.String()),
			Size:   int64(len(data)),
		}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, &domain.ValidationError{
			Reason: fmt.Sprintf("undecodable %s: %v", format, err),
			Size:   int64(len(data)),
		}
	}

	info := Info{
		Format:      format,
		ContentType: mt.String(),
		Width:       cfg.Width,
		Height:      cfg.Height,
		Size:        int64(len(data)),
	}

	if cfg.Width < minWidth || cfg.Height < minHeight {
		return info, &domain.ValidationError{
			Reason: fmt.Sprintf("dimensions %dx%d below minimum %dx%d", cfg.Width, cfg.Height, minWidth, minHeight),
			Width:  cfg.Width,
			Height: cfg.Height,
			Size:   info.Size,
		}
	}

	return info, nil
}

// InspectFile validates an image already on disk.
func InspectFile(path string, minWidth, minHeight int) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	return Inspect(data, minWidth, minHeight)
}
