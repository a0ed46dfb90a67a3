package usecase

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

// MaxUploadBytes is the per-file limit shown to users.
const MaxUploadBytes = 10 << 20

var acceptedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
}

func validatePayload(ctx context.Context, inspector ports.PayloadInspector, payload *domain.UploadPayload) error {
	if strings.TrimSpace(payload.Filename) == "" {
		return domain.NewValidationError("filename", "file name is required")
	}
	if len(payload.Data) == 0 {
		return domain.NewValidationError(payload.Filename, "file is empty")
	}
	if len(payload.Data) > MaxUploadBytes {
		return domain.NewValidationError(payload.Filename, "file exceeds the 10 MB limit")
	}

	payload.MimeType = normalizeMimeType(payload.MimeType, payload.Data)
	if _, ok := acceptedMimeTypes[payload.MimeType]; !ok {
		return domain.NewValidationError(payload.Filename, fmt.Sprintf("file type %s is not accepted; use PDF, JPEG, PNG or WebP", payload.MimeType))
	}

	if inspector != nil {
		if err := inspector.Inspect(ctx, *payload); err != nil {
			return err
		}
	}
	return nil
}

func normalizeMimeType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return strings.ToLower(mediaType)
		}
	}
	sniffed, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return sniffed
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
