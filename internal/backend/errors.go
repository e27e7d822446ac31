package backend

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindConnectionRefused
	KindNameNotResolved
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectionRefused:
		return "connection_refused"
	case KindNameNotResolved:
		return "name_not_resolved"
	default:
		return "other"
	}
}

// StatusCode is the response code reported to the caller for this kind.
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindConnectionRefused:
		return http.StatusGatewayTimeout
	case KindNameNotResolved:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// TransportError is returned by Client.Do when no upstream response was
// received.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Classify wraps err into a TransportError. Errors that are already
// classified are returned unchanged.
func Classify(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	return &TransportError{Kind: kindOf(err), Err: err}
}

func kindOf(err error) ErrorKind {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return KindNameNotResolved
	}

	// Some resolvers and wrapped dial errors only surface the condition in text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return KindConnectionRefused
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "not found"):
		return KindNameNotResolved
	}

	return KindOther
}
