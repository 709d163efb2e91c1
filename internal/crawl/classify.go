package crawl

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Classify maps a failure to exactly one ErrorKind. The mapping is total:
// anything unrecognized is a network error.
//
//   - limiter rejection or HTTP 429        -> rate_limit
//   - deadline exceeded / net timeouts     -> timeout
//   - selector or extraction failures      -> parsing
//   - DNS, TLS, refused, other 4xx/5xx     -> network
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNetwork
	}
	if errors.Is(err, ErrRateLimitExceeded) {
		return ErrorKindRateLimit
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code == http.StatusTooManyRequests {
			return ErrorKindRateLimit
		}
		return ErrorKindNetwork
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return ErrorKindParsing
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}
	return ErrorKindNetwork
}

// ClassifyError wraps err with its kind for a given URL. A pre-classified
// error passes through unchanged so the kind is assigned exactly once.
func ClassifyError(rawURL string, err error) *ClassifiedError {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}
	return &ClassifiedError{Kind: Classify(err), URL: rawURL, Err: err}
}
