package ocr

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
)

var (
	// ErrEmptyDocument is returned when a provider detects no text at all.
	ErrEmptyDocument = errors.New("ocr: no text detected")
	// ErrImageTooLarge rejects images above the provider's byte limit.
	ErrImageTooLarge = fmt.Errorf("ocr: image too large: %w", common.ErrInvalidInput)
	// ErrProviderFailed marks failures of the remote detection call.
	ErrProviderFailed = errors.New("ocr: provider call failed")
)

// Error describes a failed detection step.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrProviderFailed unless Err is one of the local rejections
// above, which never reached the provider or came back empty.
func (e *Error) Is(target error) bool {
	if target != ErrProviderFailed {
		return false
	}
	return !errors.Is(e.Err, ErrEmptyDocument) && !errors.Is(e.Err, ErrImageTooLarge)
}

// NewError wraps err for op.
func NewError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
