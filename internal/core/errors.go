package core

// errors.go defines the batch-fatal error taxonomy.
//
// Setup errors abort a batch before any row is processed. Per-row problems
// (validation, key resolution, persistence) never surface as errors from the
// engine; they are recorded on the BatchResult instead.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType is the machine-readable classification reported on a failed batch.
type ErrorType string

const (
	ErrTypeFileNotFound      ErrorType = "file_not_found"
	ErrTypeUnsupportedFormat ErrorType = "unsupported_format"
	ErrTypeFileRead          ErrorType = "file_read_error"
	ErrTypeMissingColumns    ErrorType = "missing_columns"
	ErrTypePeriodMismatch    ErrorType = "period_mismatch"
	ErrTypeDatabase          ErrorType = "database_connection"
	ErrTypeUnknownEntity     ErrorType = "unknown_entity"
	ErrTypeProcessing        ErrorType = "processing_error"
	ErrTypeImportInProgress  ErrorType = "import_in_progress"
	ErrTypeInvalidRequest    ErrorType = "invalid_request"
)

var (
	// ErrDuplicateKey is returned by stores when an insert violates the
	// natural-key uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnknownEntity is returned when no schema is registered under a key.
	ErrUnknownEntity = errors.New("unknown entity")
)

// SetupError wraps a failure that prevents a batch from starting.
type SetupError struct {
	Type ErrorType
	Err  error
}

func (e *SetupError) Error() string {
	return e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// FileReadError reports a file that could not be decoded into a table.
type FileReadError struct {
	Path  string
	Tried []string // Encodings attempted, in order
	Err   error
}

func (e *FileReadError) Error() string {
	if len(e.Tried) > 0 {
		return fmt.Sprintf("unable to read file %s (tried %s): %v", e.Path, strings.Join(e.Tried, ", "), e.Err)
	}
	return fmt.Sprintf("unable to read file %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

// MissingRequiredColumnsError reports required columns absent from the header.
type MissingRequiredColumnsError struct {
	Columns []string
	// AnyOf is set when the batch needs at least one of several columns.
	AnyOf bool
}

func (e *MissingRequiredColumnsError) Error() string {
	if e.AnyOf {
		return fmt.Sprintf("missing required column: file must contain at least one of %s", strings.Join(e.Columns, ", "))
	}
	return fmt.Sprintf("missing required column(s): %s", strings.Join(e.Columns, ", "))
}

// PeriodMismatch is one row whose period differs from the expected period.
type PeriodMismatch struct {
	Row         int    `json:"row"`
	NaturalKey  string `json:"naturalKey"`
	DisplayName string `json:"displayName,omitempty"`
	Period      string `json:"period"`
}

// PeriodMismatchError rejects a whole batch of a periodic entity.
type PeriodMismatchError struct {
	Expected string
	Rows     []PeriodMismatch
}

func (e *PeriodMismatchError) Error() string {
	periods := make([]string, 0, len(e.Rows))
	seen := make(map[string]bool)
	for _, r := range e.Rows {
		if !seen[r.Period] {
			seen[r.Period] = true
			periods = append(periods, r.Period)
		}
	}
	return fmt.Sprintf("period mismatch: expected %s, found %s in %d row(s)",
		e.Expected, strings.Join(periods, ", "), len(e.Rows))
}

// Classify returns the ErrorType for a batch-fatal error.
func Classify(err error) ErrorType {
	var (
		setupErr   *SetupError
		readErr    *FileReadError
		missingErr *MissingRequiredColumnsError
		periodErr  *PeriodMismatchError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &setupErr):
		return setupErr.Type
	case errors.As(err, &readErr):
		return ErrTypeFileRead
	case errors.As(err, &missingErr):
		return ErrTypeMissingColumns
	case errors.As(err, &periodErr):
		return ErrTypePeriodMismatch
	case errors.Is(err, ErrUnknownEntity):
		return ErrTypeUnknownEntity
	case errors.Is(err, ErrBatchInProgress), errors.Is(err, ErrTooManyImports):
		return ErrTypeImportInProgress
	default:
		return ErrTypeProcessing
	}
}
