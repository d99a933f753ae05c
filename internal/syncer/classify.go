package syncer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"google.golang.org/api/googleapi"

	"github.com/dayplanhq/dayplan/internal/remote"
)

// Class categorizes a failed remote call for retry purposes.
type Class int

const (
	// ClassOther is any failure not otherwise classified. Treated as
	// retryable.
	ClassOther Class = iota

	// ClassFatal covers 4xx client errors (bad request, unauthorized,
	// forbidden, not found) and missing credentials. Never retried.
	ClassFatal

	// ClassRateLimited is an HTTP 429. Retried on the standard backoff
	// curve.
	ClassRateLimited

	// ClassNetwork covers timeouts, refused/reset connections, and DNS
	// failures. Retried.
	ClassNetwork
)

// String returns a human-readable representation of the class.
func (c Class) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassRateLimited:
		return "rate-limited"
	case ClassNetwork:
		return "network"
	default:
		return "other"
	}
}

// Retryable reports whether errors of this class are worth retrying.
func (c Class) Retryable() bool {
	return c != ClassFatal
}

// Classify categorizes an error from a remote call attempt.
//
// This is a pure, total function: any error value, including nil, produces
// a class and never a panic. Unknown errors classify as ClassOther and are
// retried, on the theory that a transient failure is more likely than a
// novel permanent one.
func Classify(err error) Class {
	if err == nil {
		return ClassOther
	}

	// Missing credentials cannot be fixed by retrying.
	if errors.Is(err, remote.ErrNoTokens) {
		return ClassFatal
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return ClassRateLimited
		case http.StatusBadRequest, http.StatusUnauthorized,
			http.StatusForbidden, http.StatusNotFound:
			return ClassFatal
		default:
			return ClassOther
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassNetwork
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return ClassNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassNetwork
	}

	return ClassOther
}

// queueable reports whether a failed export belongs in the retry queue.
// Fatal-class errors stay out whether or not they carry the retrier's
// ErrPermanent wrap: a missing-credential failure short-circuits before
// the retrier ever runs, so the classifier is the authority here.
func queueable(err error) bool {
	return !errors.Is(err, ErrPermanent) && Classify(err).Retryable()
}
