package campaign

import (
	"errors"
	"fmt"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid campaign transition")
)

// TransientError is a send failure worth retrying: temporary SMTP replies,
// timeouts, dropped connections.
type TransientError struct {
	Code int // SMTP reply code when known
	Err  error
}

func (e *TransientError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transient send failure (%d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("transient send failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a send failure that will not succeed on retry: unknown
// mailbox, rejected address, policy refusal.
type PermanentError struct {
	Code int
	Err  error
}

func (e *PermanentError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("permanent send failure (%d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("permanent send failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err must not be retried. Untyped errors count
// as transient.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func transition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
