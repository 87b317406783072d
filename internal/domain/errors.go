package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so wrapped copies of the sentinel errors below still match errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithCause returns a copy of a sentinel error carrying err as its cause.
func WithCause(sentinel *DomainError, err error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, err)
}

// WithDetail returns a copy of a sentinel error with extra detail appended to its message
// while still matching the sentinel's code.
func WithDetail(sentinel *DomainError, detail string) *DomainError {
	return &DomainError{Code: sentinel.Code, Message: sentinel.Message, Err: errors.New(detail)}
}

// AsDomainError extracts the first DomainError in err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeTooLarge         = "TOO_LARGE"
	ErrCodeAIUnavailable    = "AI_UNAVAILABLE"
)

// Validation errors
var (
	ErrInvalidEmbeddingJobStatus = NewDomainError(ErrCodeValidation, "invalid embedding job status")
	ErrMissingRequiredField      = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyQuestion             = NewDomainError(ErrCodeValidation, "question is required")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "Document not found")
	ErrCompanyNotFound  = NewDomainError(ErrCodeNotFound, "company not found")
	ErrAPIKeyNotFound   = NewDomainError(ErrCodeNotFound, "api key not found")
	ErrObjectNotFound   = NewDomainError(ErrCodeNotFound, "stored file not found")
)

// Already exists errors
var (
	ErrCompanyAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "company already exists")
	ErrAPIKeyAlreadyExists  = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Upload pipeline errors. Messages are stable: operators search logs for them.
var (
	ErrUnsupportedFileType = NewDomainError(ErrCodeValidation, "File type not allowed")
	ErrFileTooLarge        = NewDomainError(ErrCodeTooLarge, "File size exceeds limit")
	ErrExtractionFailed    = NewDomainError(ErrCodeValidation, "Error extracting text from file")
	ErrEmptyText           = NewDomainError(ErrCodeValidation, "Could not extract text from file or file is empty")
	ErrTextTooShort        = NewDomainError(ErrCodeValidation, "Extracted text is too short")
	ErrNoChunks            = NewDomainError(ErrCodeValidation, "Failed to create text chunks from document")
	ErrAllChunksEmpty      = NewDomainError(ErrCodeValidation, "All text chunks are empty")
	ErrNoEmbeddings        = NewDomainError(ErrCodeInternalError, "Failed to generate embeddings for document chunks")
	ErrNoValidChunks       = NewDomainError(ErrCodeValidation, "No valid chunks were created")
	// ErrEmbeddingCountMismatch is logged, never returned: the pipeline repairs the count.
	ErrEmbeddingCountMismatch = NewDomainError(ErrCodeInternalError, "Embedding count mismatch")
)

// AI errors
var (
	ErrAIDisabled = NewDomainError(ErrCodeAIUnavailable, "AI services are currently offline for maintenance")
)

// Storage errors
var (
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
	ErrInvalidStorageKey    = NewDomainError(ErrCodeValidation, "invalid storage key")
)
