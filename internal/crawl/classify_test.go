package crawl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNetwork},
		{"limiter rejection", ErrRateLimitExceeded, ErrorKindRateLimit},
		{"wrapped limiter rejection", fmt.Errorf("fetch: %w", ErrRateLimitExceeded), ErrorKindRateLimit},
		{"http 429", &StatusError{Code: 429, URL: "https://example.com"}, ErrorKindRateLimit},
		{"http 500", &StatusError{Code: 500, URL: "https://example.com"}, ErrorKindNetwork},
		{"http 404", &StatusError{Code: 404, URL: "https://example.com"}, ErrorKindNetwork},
		{"parse failure", &ParseError{Reason: "no title matched"}, ErrorKindParsing},
		{"wrapped parse failure", fmt.Errorf("extract: %w", &ParseError{Reason: "empty"}), ErrorKindParsing},
		{"deadline exceeded", context.DeadlineExceeded, ErrorKindTimeout},
		{"net timeout", timeoutNetError{}, ErrorKindTimeout},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "example.com"}, ErrorKindNetwork},
		{"plain error", errors.New("connection refused"), ErrorKindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyErrorAssignsKindOnce(t *testing.T) {
	orig := ClassifyError("https://example.com/a", &ParseError{Reason: "empty"})
	require.Equal(t, ErrorKindParsing, orig.Kind)

	// Re-classifying a wrapped classified error keeps the original verdict.
	rewrapped := ClassifyError("https://example.com/b", fmt.Errorf("retry: %w", orig))
	require.Same(t, orig, rewrapped)
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	inner := &StatusError{Code: 429, URL: "https://example.com"}
	cerr := ClassifyError("https://example.com", inner)
	require.Equal(t, ErrorKindRateLimit, cerr.Kind)

	var statusErr *StatusError
	require.True(t, errors.As(cerr, &statusErr))
	require.Equal(t, 429, statusErr.Code)
}
