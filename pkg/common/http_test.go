package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestHTTPClient(t *testing.T) {
	// Setup test server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify User-Agent header
		userAgent := r.Header.Get("User-Agent")
		assert.Equal(t, "PVLedger/"+strings.TrimSpace(version), userAgent, "User-Agent should match expected format")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Test client creation
	timeout := 5 * time.Second
	client := HTTPClient(timeout)

	// Verify client settings
	assert.Equal(t, timeout, client.Timeout, "Timeout should be set correctly")
	assert.NotNil(t, client.Transport, "Transport should not be nil")

	// Test actual request
	req, err := http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimited(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "PVLedger/"), "user agent transport should still run")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Run("Nil limiter returns same client", func(t *testing.T) {
		c := HTTPClient(time.Second)
		assert.Same(t, c, RateLimited(c, nil))
		assert.Nil(t, NewLimiter(0))
	})

	t.Run("Requests pass through limiter", func(t *testing.T) {
		base := HTTPClient(time.Second)
		c := RateLimited(base, rate.NewLimiter(rate.Inf, 1))
		assert.NotSame(t, base, c, "the original client must not be mutated")

		for i := 0; i < 3; i++ {
			resp, err := c.Get(server.URL)
			require.NoError(t, err)
			resp.Body.Close()
		}
		assert.Equal(t, 3, requests)
	})

	t.Run("Canceled context aborts wait", func(t *testing.T) {
		// a limiter that never refills so the second request has to wait
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		c := RateLimited(HTTPClient(time.Second), limiter)

		resp, err := c.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, "GET", server.URL, nil)
		require.NoError(t, err)
		_, err = c.Do(req)
		assert.Error(t, err)
	})
}
