package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies fetch failures.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindStatus    Kind = "status"
	KindRateLimit Kind = "rate_limit"
	KindParsing   Kind = "parsing"
)

// Error is a fetch failure for one URL.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.URL)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindStatus:
		return e.Status >= 500
	default:
		return false
	}
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindRateLimit
}

func isRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.IsRetryable()
	}
	return true
}
