package places

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/leadfinder/pkg/pipeline/core"
	"github.com/shpitdev/leadfinder/pkg/pipeline/redact"
)

// API status values returned in the Places JSON envelope.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusNotFound       = "NOT_FOUND"
	StatusUnknownError   = "UNKNOWN_ERROR"
)

// APIError is a non-OK status in an otherwise successful (2xx) response.
type APIError struct {
	Op      string
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return "places api error"
	}
	msg := fmt.Sprintf("places api error: op=%s status=%s", e.Op, e.Status)
	if m := strings.TrimSpace(e.Message); m != "" {
		msg += " message=" + m
	}
	return msg
}

// HTTPError is a sanitized summary of a non-2xx Places response.
//
// Important: do not include raw response bodies here (the key can be echoed back).
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string

	// Snippet is a redacted, truncated hint of the body.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "places http error"
	}
	msg := fmt.Sprintf("places http error: op=%s status=%s", e.Op, strings.TrimSpace(e.Status))
	if s := strings.TrimSpace(e.Snippet); s != "" {
		msg += " body=" + s
	}
	return msg
}

// requestError wraps transport failures. *url.Error strings carry the full
// request URL, key included.
type requestError struct {
	op  string
	err error
}

func (e *requestError) Error() string {
	return "places " + e.op + ": " + redact.Secrets(e.err.Error())
}

func (e *requestError) Unwrap() error { return e.err }

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}
	h.Snippet = redactAndTruncate(body)
	if h.StatusCode == http.StatusTooManyRequests || h.StatusCode >= 500 {
		return &core.TransientError{Err: h}
	}
	return h
}

func newAPIError(op, status, message string) error {
	e := &APIError{
		Op:      op,
		Status:  strings.TrimSpace(status),
		Message: redact.Secrets(message),
	}
	switch e.Status {
	case StatusOverQueryLimit, StatusUnknownError:
		return &core.TransientError{Err: e}
	}
	return e
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
