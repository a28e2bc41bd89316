package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNoResults reports that a marketplace answered but had zero matches.
// Adapters treat it as an empty, successful search.
var ErrNoResults = errors.New("no results")

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrBlocked indicates an anti-bot challenge or an explicit refusal.
type ErrBlocked struct {
	StatusCode int
	Reason     string
}

func (e ErrBlocked) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("blocked: %s (status %d)", e.Reason, e.StatusCode)
	}
	return "blocked: " + e.Reason
}

// ErrParseFailure indicates the page structure no longer matches the extractor.
type ErrParseFailure struct {
	Err error
}

func (e ErrParseFailure) Error() string {
	return fmt.Errorf("parse_failure: %w", e.Err).Error()
}

func (e ErrParseFailure) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus is a non-success response that is neither a block nor a miss.
type ErrHTTPStatus struct {
	StatusCode int
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// ParseFailure wraps a formatted message as ErrParseFailure.
func ParseFailure(format string, args ...any) error {
	return ErrParseFailure{Err: fmt.Errorf(format, args...)}
}

// ErrorKind returns a stable label for err used in metrics and job diagnostics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, ErrNoResults) {
		return "no_results"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var blocked ErrBlocked
	if errors.As(err, &blocked) {
		return "blocked"
	}
	var parse ErrParseFailure
	if errors.As(err, &parse) {
		return "parse_failure"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return "http_status"
	}
	return "other"
}

// Retryable reports whether another attempt could plausibly succeed.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return true
	}
	var blocked ErrBlocked
	if errors.As(err, &blocked) {
		return blocked.StatusCode == http.StatusTooManyRequests
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return status.StatusCode >= http.StatusInternalServerError
	}
	return false
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		switch {
		case statusCode == http.StatusForbidden:
			return ErrBlocked{StatusCode: statusCode, Reason: "forbidden"}
		case statusCode == http.StatusTooManyRequests:
			return ErrBlocked{StatusCode: statusCode, Reason: "rate limited"}
		case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
			return fmt.Errorf("%w: status %d", ErrNoResults, statusCode)
		case statusCode >= http.StatusBadRequest:
			return ErrHTTPStatus{StatusCode: statusCode}
		}
	}

	return err
}
