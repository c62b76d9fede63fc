package fetch

import (
	"errors"
	"fmt"
)

// Fetch errors.
//
// Design decision: Callers treat every fetch failure as recoverable (the page
// or image is dropped), but the sentinels let logs and tests distinguish the
// failure modes with errors.Is.
var (
	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not speak
	// SOCKS5 without authentication.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrIdleTimeout is returned when a streaming body receives no data for
	// longer than the idle timeout.
	ErrIdleTimeout = errors.New("no data received within idle timeout")

	// ErrHTTPStatus matches every *StatusError via errors.Is.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

// StatusError is returned when the server answers with a status code >= 400.
type StatusError struct {
	// URL is the requested address.
	URL string

	// StatusCode is the HTTP status code received.
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
}

// Is reports whether target is ErrHTTPStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}
