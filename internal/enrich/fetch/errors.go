package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/shpitdev/leadfinder/pkg/pipeline/core"
)

// TLSError is a certificate or handshake verification failure. It is fatal
// for the business being enriched.
type TLSError struct {
	URL string
	Err error
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("fetch %s: tls: %v", e.URL, e.Err)
}

func (e *TLSError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status())
}

// Status renders the error as "<code> <reason>", e.g. "404 Not Found".
func (e *HTTPError) Status() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		return strconv.Itoa(e.StatusCode)
	}
	return strconv.Itoa(e.StatusCode) + " " + reason
}

// NetworkError covers DNS, connect, timeout and read failures.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// classify maps a transport error to TLSError or NetworkError. Timeouts and
// resets are wrapped in core.LimitedTransientError and earn one extra attempt;
// DNS and refused connections are final.
func classify(rawURL string, err error) error {
	if isTLSFailure(err) {
		return &TLSError{URL: rawURL, Err: err}
	}
	ne := &NetworkError{URL: rawURL, Err: err}
	if isRetryable(err) {
		return &core.LimitedTransientError{Err: ne, ExtraRetries: 1}
	}
	return ne
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isTLSFailure(err error) bool {
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		return true
	}
	var verify *tls.CertificateVerificationError
	if errors.As(err, &verify) {
		return true
	}
	var record tls.RecordHeaderError
	if errors.As(err, &record) {
		return true
	}
	// uTLS keeps its own copies of the crypto/tls error types; they all share
	// the "tls: " prefix.
	return strings.Contains(err.Error(), "tls: ")
}
