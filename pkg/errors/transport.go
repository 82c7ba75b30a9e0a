package errors

import (
	"context"
	stdErrors "errors"
	"net"
)

// IsTransport reports whether err came from the network or a context deadline rather than
// from the remote side's answer.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return stdErrors.As(err, &netErr)
}

// FromTransport classifies a failed outbound round trip as a timeout or a network failure.
// The cause is kept, so context.Canceled stays reachable through errors.Is.
func FromTransport(err error, message string) error {
	if err == nil {
		return nil
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, err, message)
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(CodeTimeout, err, message)
	}
	return Wrap(CodeDependency, err, message)
}

// Classify keeps typed errors as they are and runs everything else through FromTransport.
func Classify(err error, message string) error {
	if err == nil || As(err) != nil {
		return err
	}
	return FromTransport(err, message)
}
