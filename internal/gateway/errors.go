package gateway

import (
	"errors"
	"fmt"
)

const (
	KindStatus    = "status"
	KindTransport = "transport"
	KindTimeout   = "timeout"
	KindMalformed = "malformed"
)

// PollError describes a failed exchange with the printer or the plug.
// All kinds are transient; callers only log them differently.
type PollError struct {
	Op         string
	URL        string
	Kind       string
	StatusCode int
	Err        error
}

func (e *PollError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	default:
		if e.Err == nil {
			return fmt.Sprintf("%s %s: %s", e.Op, e.URL, e.Kind)
		}
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URL, e.Kind, e.Err)
	}
}

func (e *PollError) Unwrap() error { return e.Err }

// KindOf returns the PollError kind of err, or "" if err is not a PollError.
func KindOf(err error) string {
	var pe *PollError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
