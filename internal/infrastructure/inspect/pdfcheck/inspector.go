// Package pdfcheck rejects uploads that claim to be PDF but cannot be opened
// as one. Other MIME types pass through untouched.
package pdfcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

const pdfMimeType = "application/pdf"

type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

func (i *Inspector) Inspect(ctx context.Context, payload domain.UploadPayload) error {
	if payload.MimeType != pdfMimeType {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pages, err := countPages(payload.Data)
	switch {
	case errors.Is(err, pdf.ErrInvalidPassword):
		return domain.NewValidationError(payload.Filename, "password-protected PDFs are not accepted")
	case err != nil:
		return domain.NewValidationError(payload.Filename, "file is not a readable PDF")
	case pages == 0:
		return domain.NewValidationError(payload.Filename, "PDF has no pages")
	}
	return nil
}

// countPages guards against the parser panicking on malformed input.
func countPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
