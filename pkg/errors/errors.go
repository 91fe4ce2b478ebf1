// Package errors provides structured error handling for the ML core.
//
// Every user-visible failure carries a machine-readable Kind alongside a
// human-readable message. Stack traces are captured via cockroachdb/errors
// but are never rendered into the message itself.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Kind is the machine-readable category of an error.
type Kind string

const (
	KindInvalidInput          Kind = "invalid_input"
	KindInvalidShape          Kind = "invalid_shape"
	KindInvalidHyperparameter Kind = "invalid_hyperparameter"
	KindNotFitted             Kind = "not_fitted"
	KindNotFound              Kind = "not_found"
	KindNumerical             Kind = "numerical_error"
	KindCancelled             Kind = "cancelled"
	KindIncompatibleFormat    Kind = "incompatible_format"
	KindStorage               Kind = "storage_error"
	// KindUnknown is reported for errors that did not originate in this package.
	KindUnknown Kind = "unknown"
)

// Kinder is implemented by all error types in this package.
type Kinder interface {
	Kind() Kind
}

// KindOf extracts the Kind from an error chain. Errors that did not
// originate here report KindUnknown.
func KindOf(err error) Kind {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// NotFittedError is returned when Predict, Score or Export is called on a
// model that has not been fitted.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("mlcore: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

func (e *NotFittedError) Kind() Kind { return KindNotFitted }

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("kind", string(KindNotFitted))
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError is returned when input dimensions disagree with what the
// model learned at fit time.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("mlcore: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

func (e *DimensionError) Kind() Kind { return KindInvalidShape }

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("kind", string(KindInvalidShape))
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// InputError is returned for malformed features or targets: non-finite
// values, mismatched row counts, or an empty dataset.
type InputError struct {
	Op     string
	Reason string
	Row    int // offending row, -1 when not row-specific
}

func (e *InputError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("mlcore: %s: invalid input at row %d: %s", e.Op, e.Row, e.Reason)
	}
	return fmt.Sprintf("mlcore: %s: invalid input: %s", e.Op, e.Reason)
}

func (e *InputError) Kind() Kind { return KindInvalidInput }

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *InputError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Int("row", e.Row).
		Str("kind", string(KindInvalidInput))
}

// NewInputError creates an InputError with a stack trace attached.
func NewInputError(op, reason string) error {
	err := &InputError{Op: op, Reason: reason, Row: -1}
	return errors.WithStack(err)
}

// NewInputErrorAt creates an InputError pointing at the offending row.
func NewInputErrorAt(op, reason string, row int) error {
	err := &InputError{Op: op, Reason: reason, Row: row}
	return errors.WithStack(err)
}

// HyperparameterError is returned at fit time for an unknown key, an
// out-of-range value, or a combination invalid for the task.
type HyperparameterError struct {
	Algorithm string
	Param     string
	Reason    string
	Value     interface{}
}

func (e *HyperparameterError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("mlcore: %s: invalid hyperparameter %q: %s", e.Algorithm, e.Param, e.Reason)
	}
	return fmt.Sprintf("mlcore: %s: invalid hyperparameter %q: %s (got: %v)", e.Algorithm, e.Param, e.Reason, e.Value)
}

func (e *HyperparameterError) Kind() Kind { return KindInvalidHyperparameter }

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *HyperparameterError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("algorithm", e.Algorithm).
		Str("param", e.Param).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("kind", string(KindInvalidHyperparameter))
}

// NewHyperparameterError creates a HyperparameterError with a stack trace attached.
func NewHyperparameterError(algorithm, param, reason string, value interface{}) error {
	err := &HyperparameterError{Algorithm: algorithm, Param: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// NotFoundError is returned when a model id is unknown to the registry.
type NotFoundError struct {
	ModelID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mlcore: model %q not found", e.ModelID)
}

func (e *NotFoundError) Kind() Kind { return KindNotFound }

// NewNotFoundError creates a NotFoundError with a stack trace attached.
func NewNotFoundError(modelID string) error {
	err := &NotFoundError{ModelID: modelID}
	return errors.WithStack(err)
}

// NumericalError is returned for a singular matrix, divergence, non-finite
// loss, or a degenerate split.
type NumericalError struct {
	Op     string
	Reason string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("mlcore: %s: numerical error: %s", e.Op, e.Reason)
}

func (e *NumericalError) Kind() Kind { return KindNumerical }

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NumericalError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("kind", string(KindNumerical))
}

// NewNumericalError creates a NumericalError with a stack trace attached.
func NewNumericalError(op, reason string) error {
	err := &NumericalError{Op: op, Reason: reason}
	return errors.WithStack(err)
}

// CancelledError is returned when cooperative cancellation is observed
// between units of work. The model is left in its pre-call state.
type CancelledError struct {
	Op string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("mlcore: %s: cancelled", e.Op)
}

func (e *CancelledError) Kind() Kind { return KindCancelled }

// NewCancelledError creates a CancelledError with a stack trace attached.
func NewCancelledError(op string) error {
	err := &CancelledError{Op: op}
	return errors.WithStack(err)
}

// FormatError is returned when persisted bytes carry an unknown or
// unsupported format version.
type FormatError struct {
	Got       uint32
	Supported uint32
	Reason    string
}

func (e *FormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("mlcore: incompatible model format: %s", e.Reason)
	}
	return fmt.Sprintf("mlcore: incompatible model format version %d (supported: %d)", e.Got, e.Supported)
}

func (e *FormatError) Kind() Kind { return KindIncompatibleFormat }

// NewFormatError creates a FormatError for a version mismatch.
func NewFormatError(got, supported uint32) error {
	err := &FormatError{Got: got, Supported: supported}
	return errors.WithStack(err)
}

// NewFormatErrorf creates a FormatError with a free-form reason.
func NewFormatErrorf(format string, args ...interface{}) error {
	err := &FormatError{Reason: fmt.Sprintf(format, args...)}
	return errors.WithStack(err)
}

// StorageError wraps a failure of the underlying byte store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mlcore: storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mlcore: storage: %s failed", e.Op)
}

func (e *StorageError) Kind() Kind { return KindStorage }

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a StorageError with a stack trace attached.
func NewStorageError(op string, err error) error {
	storageErr := &StorageError{Op: op, Err: err}
	return errors.WithStack(storageErr)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common error values
//
// ===========================================================================

var (
	// ErrEmptyData is the cause for fits on empty datasets.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is the cause for singular Gram matrices.
	ErrSingularMatrix = New("singular matrix")
)
