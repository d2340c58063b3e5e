package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryInput    Category = "input"
	CategoryDecode   Category = "decode"
	CategoryEncode   Category = "encode"
	CategoryPipeline Category = "pipeline"
	CategoryStorage  Category = "storage"
	CategoryRemote   Category = "remote"
	CategoryRead     Category = "read"
	CategoryConfig   Category = "config"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category Category
	Op       string // operation name
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// Sentinel errors for common failure modes.
var (
	ErrMalformedInput      = errors.New("malformed input")
	ErrInvalidDimensions   = errors.New("invalid dimensions")
	ErrEncodingFailed      = errors.New("encoding failed: output is empty")
	ErrNormalizationFailed = errors.New("normalization failed")
	ErrRemote              = errors.New("remote error")
	ErrRead                = errors.New("read error")
	ErrEmptyInput          = errors.New("empty input")
	ErrUnsupportedFormat   = errors.New("unsupported image format")
	ErrUnknownReference    = errors.New("unknown object reference")
	ErrTainted             = errors.New("surface is tainted by cross-origin data")
	ErrImageTooLarge       = errors.New("image exceeds upload limit")
)

// ── Normalization ─────────────────────────────────────────────────────────────

// StrategyFailure records why one normalization strategy did not produce bytes.
type StrategyFailure struct {
	Strategy string
	Err      error
}

// NormalizationError is returned once every applicable strategy has failed.
// Failures are kept in the order the strategies were attempted.
type NormalizationError struct {
	Failures []StrategyFailure
}

func (e *NormalizationError) Error() string {
	if len(e.Failures) == 0 {
		return ErrNormalizationFailed.Error() + ": no applicable strategy"
	}
	parts := lo.Map(e.Failures, func(f StrategyFailure, _ int) string {
		return f.Strategy + ": " + f.Err.Error()
	})
	return ErrNormalizationFailed.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap exposes the sentinel and every per-strategy cause to errors.Is/As.
func (e *NormalizationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrNormalizationFailed)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Reasons returns the failure messages in attempt order.
func (e *NormalizationError) Reasons() []string {
	return lo.Map(e.Failures, func(f StrategyFailure, _ int) string { return f.Err.Error() })
}

// ── Remote ────────────────────────────────────────────────────────────────────

// RemoteError reports a non-success response from the inference backend.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string // raw response text
	Message    string // server-provided detail, when one could be extracted
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// AsRemote extracts a *RemoteError from err.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
