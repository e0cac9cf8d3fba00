package sender

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind groups send failures by what the operator should do about them.
type Kind string

const (
	KindTLS        Kind = "tls"
	KindConnection Kind = "connection"
	KindTimeout    Kind = "timeout"
	KindHTTP       Kind = "http"
	KindUnknown    Kind = "unknown"
)

// Error is a classified send failure.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("%s: server returned %d: %s", e.URL, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s error posting to %s: %v", e.Kind, e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Hint is a one-line remediation suggestion.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindTLS:
		return "the server's certificate was rejected; consoles cannot talk to this endpoint directly, put the relay (plain HTTP) in front of it or use --insecure for testing"
	case KindConnection:
		return "cannot reach the server; check the URL and that the relay is running and reachable from this network"
	case KindTimeout:
		return "the server did not answer in time; check it is not overloaded or raise --timeout"
	case KindHTTP:
		if e.StatusCode >= 500 {
			return "the relay failed while processing the event; check its logs"
		}
		return "the relay rejected the payload; check action is Launch or Exit and title_name is set"
	default:
		return ""
	}
}

func classify(url string, err error) *Error {
	e := &Error{Kind: KindUnknown, URL: url, Err: err}

	var (
		unknownAuth x509.UnknownAuthorityError
		hostname    x509.HostnameError
		invalid     x509.CertificateInvalidError
		verify      *tls.CertificateVerificationError
		record      tls.RecordHeaderError
		netErr      net.Error
		dnsErr      *net.DNSError
		opErr       *net.OpError
	)
	switch {
	case errors.As(err, &verify), errors.As(err, &unknownAuth), errors.As(err, &hostname),
		errors.As(err, &invalid), errors.As(err, &record), strings.Contains(err.Error(), "tls:"):
		e.Kind = KindTLS
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
	case errors.As(err, &dnsErr), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH), errors.As(err, &opErr):
		e.Kind = KindConnection
	}
	return e
}
