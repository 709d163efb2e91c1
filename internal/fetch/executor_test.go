package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robowatch/crawler/internal/crawl"
	contenthash "github.com/robowatch/crawler/internal/hash/content"
	"github.com/robowatch/crawler/internal/policy/ratelimit"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	return New(
		ratelimit.New(ratelimit.Config{MaxWait: time.Second}),
		contenthash.New(),
		fakeClock{now: time.Unix(1700000000, 0).UTC()},
		Config{UserAgent: "robowatch-test/1.0", Timeout: 2 * time.Second},
		zap.NewNop(),
	)
}

func productTarget(t *testing.T, serverURL string) crawl.Target {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	return crawl.Target{
		ID:     "t1",
		Domain: u.Host,
		RateLimit: crawl.RateLimitConfig{
			RequestsPerMinute: 600,
			RequestsPerHour:   10000,
		},
		Patterns: []crawl.Pattern{{
			Type: crawl.PatternProductPage,
			Selectors: crawl.ContentSelectors{
				"title":   "h1.product-name",
				"content": "div.description",
				"price":   "span.price",
			},
		}},
	}
}

func TestFetchExtractsAndHashes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<h1 class="product-name">Atlas Gen 2</h1>
			<div class="description">An electric humanoid robot.</div>
			<span class="price">$74,500</span>
		</body></html>`))
	}))
	defer srv.Close()

	e := newExecutor(t)
	target := productTarget(t, srv.URL)

	item, err := e.Fetch(context.Background(), "job-1", target, srv.URL+"/products/atlas")
	require.NoError(t, err)
	require.Equal(t, "job-1", item.JobID)
	require.Equal(t, crawl.PatternProductPage, item.Type)
	require.Equal(t, "Atlas Gen 2", item.Title)
	require.Equal(t, "An electric humanoid robot.", item.Content)
	require.Equal(t, "$74,500", item.Price)
	require.Len(t, item.ContentHash, 64)
	require.Equal(t, contenthash.New().Digest(item.Title, item.Content), item.ContentHash)
}

func TestFetchSameURLRepeatedly(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(`<html><body>
			<h1 class="product-name">Atlas Gen 2</h1>
			<div class="description">An electric humanoid robot.</div>
		</body></html>`))
	}))
	defer srv.Close()

	e := newExecutor(t)
	target := productTarget(t, srv.URL)
	rawURL := srv.URL + "/products/atlas"

	// Scheduled runs re-fetch the same fixed URL list; the collector
	// must not remember the first visit.
	first, err := e.Fetch(context.Background(), "job-1", target, rawURL)
	require.NoError(t, err)

	second, err := e.Fetch(context.Background(), "job-2", target, rawURL)
	require.NoError(t, err)
	require.Equal(t, 2, hits)
	require.Equal(t, first.ContentHash, second.ContentHash)
}

func TestFetchStatusErrorClassifiedNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newExecutor(t)
	target := productTarget(t, srv.URL)

	_, err := e.Fetch(context.Background(), "job-1", target, srv.URL+"/products/atlas")
	require.Error(t, err)

	var cerr *crawl.ClassifiedError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, crawl.ErrorKindNetwork, cerr.Kind)

	var statusErr *crawl.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestFetch429ClassifiedRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := newExecutor(t)
	target := productTarget(t, srv.URL)

	_, err := e.Fetch(context.Background(), "job-1", target, srv.URL+"/products/atlas")
	var cerr *crawl.ClassifiedError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, crawl.ErrorKindRateLimit, cerr.Kind)
}

func TestFetchEmptyPageClassifiedParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing the selectors match</p></body></html>`))
	}))
	defer srv.Close()

	e := newExecutor(t)
	target := productTarget(t, srv.URL)

	_, err := e.Fetch(context.Background(), "job-1", target, srv.URL+"/products/atlas")
	var cerr *crawl.ClassifiedError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, crawl.ErrorKindParsing, cerr.Kind)
}

func TestFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	e := newExecutor(t)
	target := productTarget(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Fetch(ctx, "job-1", target, srv.URL+"/products/atlas")
	require.Error(t, err)
}
