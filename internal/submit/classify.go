// Package submit classifies RPC submission errors and wraps the actual
// eth_sendRawTransaction/Tempo send call in jittered exponential backoff,
// mirroring the original retry.rs/error.rs pair.
package submit

import (
	"errors"
	"strings"
	"time"
)

// Kind categorizes a transaction submission failure so callers can branch
// without re-parsing error strings.
type Kind int

const (
	// Unknown covers anything not matched by a more specific pattern. It
	// gets exactly one retry before surfacing.
	Unknown Kind = iota
	// NonceTooLow indicates the reserved nonce has already been used.
	NonceTooLow
	// InsufficientFunds indicates the wallet cannot cover value+fees.
	InsufficientFunds
	// Reverted indicates the transaction was included but reverted, or the
	// node pre-flight-rejected it as certain to revert.
	Reverted
	// Timeout indicates the request or confirmation wait exceeded its
	// deadline.
	Timeout
	// RateLimited indicates the RPC endpoint or proxy throttled the
	// request.
	RateLimited
	// ProxyError indicates the failure originated in the proxy layer
	// rather than the RPC endpoint itself.
	ProxyError
)

func (k Kind) String() string {
	switch k {
	case NonceTooLow:
		return "nonce_too_low"
	case InsufficientFunds:
		return "insufficient_funds"
	case Reverted:
		return "reverted"
	case Timeout:
		return "timeout"
	case RateLimited:
		return "rate_limited"
	case ProxyError:
		return "proxy_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether a submission pipeline should retry after this
// kind of failure, rather than surface it immediately to the caller.
// Unknown is retryable too, but the pipeline caps it at a single retry.
func (k Kind) Retryable() bool {
	switch k {
	case Timeout, RateLimited, ProxyError, NonceTooLow, Unknown:
		return true
	default:
		return false
	}
}

var patterns = []struct {
	kind     Kind
	fragment string
}{
	{NonceTooLow, "nonce too low"},
	{NonceTooLow, "nonce is too low"},
	{NonceTooLow, "already known"},
	{NonceTooLow, "replacement transaction underpriced"},
	{InsufficientFunds, "insufficient funds"},
	{InsufficientFunds, "insufficient balance"},
	{Reverted, "execution reverted"},
	{Reverted, "always failing transaction"},
	{Timeout, "timeout"},
	{Timeout, "context deadline exceeded"},
	{RateLimited, "rate limited"},
	{RateLimited, "too many requests"},
	{RateLimited, "429"},
	{ProxyError, "proxy"},
	{ProxyError, "tunnel"},
	{ProxyError, "connection refused"},
	{ProxyError, "connection reset"},
	{ProxyError, "no such host"},
	{ProxyError, "tls"},
}

// Classify inspects an error (and, when known, the HTTP status of the
// response that produced it) and returns its Kind. httpStatus may be 0 if
// unknown.
func Classify(err error, httpStatus int) Kind {
	if err == nil {
		return Unknown
	}
	msg := strings.ToLower(err.Error())

	if httpStatus == 429 {
		return RateLimited
	}

	for _, p := range patterns {
		if strings.Contains(msg, p.fragment) {
			return p.kind
		}
	}
	return Unknown
}

// HTTPStatusOf returns the HTTP status a transport error carries, or 0
// when the error does not know it. rpcclient's rate-limited errors
// implement the probed interface.
func HTTPStatusOf(err error) int {
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// RetryAfterOf returns the Retry-After delay a throttled response asked
// for, or 0 when the error carries none.
func RetryAfterOf(err error) time.Duration {
	var ra interface{ RetryAfter() time.Duration }
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}
