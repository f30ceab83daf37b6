package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(cacheLookups.WithLabelValues(CacheHit))
	CacheLookup(CacheHit)
	assert.Equal(t, before+1, testutil.ToFloat64(cacheLookups.WithLabelValues(CacheHit)))

	before = testutil.ToFloat64(postsCreated)
	PostCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(postsCreated))

	before = testutil.ToFloat64(follows.WithLabelValues(OpFollow))
	FollowChanged(OpFollow)
	assert.Equal(t, before+1, testutil.ToFloat64(follows.WithLabelValues(OpFollow)))

	before = testutil.ToFloat64(httpRequests.WithLabelValues("/", "200"))
	ObserveRequest("/", http.StatusOK, 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("/", "200")))
}

func TestHTTPServerHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	healthy := true
	s := NewHTTPServer(":0", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("store down")
	}, logger)

	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	healthy = false
	rr = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	PostCreated()
	rr = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "blog_posts_created_total")
}
