package ingest

import "fmt"

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	KindUnsupportedExtension ErrorKind = "unsupported_extension"
	KindEmptyFile            ErrorKind = "empty_file"
	KindTooLarge             ErrorKind = "too_large"
	KindEncoding             ErrorKind = "encoding"
	KindEmptyBatch           ErrorKind = "empty_batch"
	KindDuplicateName        ErrorKind = "duplicate_name"
	KindInvalidName          ErrorKind = "invalid_name"
)

// ValidationError reports a file rejected at ingestion.
type ValidationError struct {
	Kind ErrorKind
	File string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("validation error (%s): %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("validation error (%s) in %s: %s", e.Kind, e.File, e.Msg)
}
