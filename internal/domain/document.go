package domain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileType is the lowercased extension of an uploaded file, including the dot.
type FileType string

const (
	FileTypePDF      FileType = ".pdf"
	FileTypeDOCX     FileType = ".docx"
	FileTypeText     FileType = ".txt"
	FileTypeCSV      FileType = ".csv"
	FileTypeMarkdown FileType = ".md"
	FileTypeHTML     FileType = ".html"
	FileTypeHTM      FileType = ".htm"
)

var allowedFileTypes = map[FileType]bool{
	FileTypePDF:      true,
	FileTypeDOCX:     true,
	FileTypeText:     true,
	FileTypeCSV:      true,
	FileTypeMarkdown: true,
	FileTypeHTML:     true,
	FileTypeHTM:      true,
}

// DefaultUploadedBy is recorded when the uploader does not identify itself.
const DefaultUploadedBy = "system"

// FileTypeFromName returns the lowercased extension of filename.
func FileTypeFromName(filename string) FileType {
	return FileType(strings.ToLower(filepath.Ext(filename)))
}

// IsAllowed reports whether documents of this type can be ingested.
func (t FileType) IsAllowed() bool {
	return allowedFileTypes[t]
}

// AllowedFileTypes returns the accepted extensions in a stable order.
func AllowedFileTypes() []string {
	types := make([]string, 0, len(allowedFileTypes))
	for t := range allowedFileTypes {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return types
}

// Document is an uploaded file whose text has been chunked and embedded.
type Document struct {
	ID          string
	CompanyID   string
	Filename    string
	StorageKey  string
	FileType    FileType
	ContentType string
	SizeBytes   int64
	SHA256      string
	UploadedBy  string
	ChunkCount  int
	CreatedAt   time.Time
}

// StorageKeyFor builds the object key for a document: <company>/<document><ext>.
// The key is unique per upload so re-uploading a file never overwrites another document.
func StorageKeyFor(companyID, documentID string, fileType FileType) string {
	return fmt.Sprintf("%s/%s%s", companyID, documentID, fileType)
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.CompanyID == "" {
		return fmt.Errorf("document CompanyID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if d.StorageKey == "" {
		return fmt.Errorf("document StorageKey is required")
	}

	if !d.FileType.IsAllowed() {
		return fmt.Errorf("document FileType is invalid: %s", d.FileType)
	}

	if d.ChunkCount < 0 {
		return fmt.Errorf("document ChunkCount cannot be negative")
	}

	return nil
}
