// Package extract turns uploaded file bytes into plain text.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrplatform/docingest/internal/domain"
)

// TextExtractor is implemented by Extractor; services depend on the interface.
type TextExtractor interface {
	Extract(ctx context.Context, fileType domain.FileType, data []byte) (string, error)
}

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract returns the trimmed text content of data interpreted as fileType.
func (e *Extractor) Extract(ctx context.Context, fileType domain.FileType, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)

	switch fileType {
	case domain.FileTypePDF:
		text, err = extractPDF(data)
	case domain.FileTypeDOCX:
		text, err = extractDOCX(data)
	case domain.FileTypeText, domain.FileTypeCSV, domain.FileTypeMarkdown:
		text = extractPlain(data)
	case domain.FileTypeHTML, domain.FileTypeHTM:
		text, err = extractHTML(data)
	default:
		return "", domain.WithDetail(domain.ErrUnsupportedFileType,
			fmt.Sprintf("%q; allowed: %s", fileType, strings.Join(domain.AllowedFileTypes(), ", ")))
	}

	if err != nil {
		return "", domain.WithCause(domain.ErrExtractionFailed, err)
	}

	return strings.TrimSpace(text), nil
}

// extractPlain decodes UTF-8 and silently drops invalid byte sequences.
func extractPlain(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}
