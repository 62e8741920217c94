package outcome

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrSlotConflict is the calendar collaborator's explicit rejection of a
// requested slot. It is permanent: the caller is offered another slot
// instead of retrying the same one.
var ErrSlotConflict = errors.New("calendar slot conflict")

// TransientError marks a collaborator failure worth retrying with backoff
// (network errors, timeouts, 5xx answers)
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient collaborator failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether an error should be retried
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
