package power

import (
	"context"
	"io"
	"net"
	"os"
	"syscall"
)

// maxCauseDepth bounds the unwrap walk; chains deeper than this are
// pathological and treated as non-transient.
const maxCauseDepth = 32

// IsTransient reports whether err looks like a recoverable network failure:
// refused or reset connections, timeouts, cancellation, or a torn socket.
// The cause chain is walked link by link with a depth bound, so a transient
// error stays transient no matter how many times it has been wrapped, and a
// malicious or cyclic chain cannot hang classification.
func IsTransient(err error) bool {
	for depth := 0; err != nil && depth < maxCauseDepth; depth++ {
		if transientLeaf(err) {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				if IsTransient(e) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return false
}

// transientLeaf inspects a single link of the chain; unwrapping is the
// caller's job.
func transientLeaf(err error) bool {
	switch err {
	case context.Canceled, context.DeadlineExceeded, os.ErrDeadlineExceeded,
		io.EOF, io.ErrUnexpectedEOF, net.ErrClosed:
		return true
	}

	switch e := err.(type) {
	case syscall.Errno:
		switch e {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
			syscall.ETIMEDOUT, syscall.EPIPE, syscall.EHOSTUNREACH,
			syscall.ENETUNREACH, syscall.ENETDOWN:
			return true
		}
	case *net.OpError:
		return true
	case net.Error:
		return e.Timeout()
	}
	return false
}
