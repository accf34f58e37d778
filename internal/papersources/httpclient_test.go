package papersources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/interaction-miner/internal/domain"
)

func fastClient(maxRetries int) *HTTPClient {
	return NewHTTPClient(HTTPClientConfig{
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	})
}

func TestNewHTTPClient_Defaults(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{})

	assert.Equal(t, 30*time.Second, client.client.Timeout)
	assert.Equal(t, DefaultUserAgent, client.config.UserAgent)
	assert.Equal(t, 3, client.config.MaxRetries)
	assert.Equal(t, time.Second, client.config.RetryDelay)
	assert.Equal(t, float64(10), client.rateLimiter.Limit())
}

func TestNewHTTPClient_NegativeRetriesDisable(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{MaxRetries: -1})
	assert.Equal(t, 0, client.config.MaxRetries)
}

func TestHTTPClient_Do(t *testing.T) {
	t.Run("sets default User-Agent", func(t *testing.T) {
		var ua string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua = r.Header.Get("User-Agent")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		resp, err := fastClient(0).Get(context.Background(), server.URL, "application/json")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, DefaultUserAgent, ua)
	})

	t.Run("retries 503 then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		resp, err := fastClient(3).Get(context.Background(), server.URL, "")
		require.NoError(t, err)
		body, err := ReadBody(resp, 100)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("returns last response when retries are exhausted", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		resp, err := fastClient(2).Get(context.Background(), server.URL, "")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry 404", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		resp, err := fastClient(3).Get(context.Background(), server.URL, "")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("resends body on retry", func(t *testing.T) {
		var bodies []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(b))
			if len(bodies) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader(`{"q":1}`))
		require.NoError(t, err)
		resp, err := fastClient(1).Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, []string{`{"q":1}`, `{"q":1}`}, bodies)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{RateLimit: 1000, MaxRetries: 5, RetryDelay: time.Hour})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := client.Get(ctx, server.URL, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestReadBody_Limit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 11)))
	}))
	defer server.Close()

	resp, err := fastClient(0).Get(context.Background(), server.URL, "")
	require.NoError(t, err)
	_, err = ReadBody(resp, 10)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
}

func TestCheckStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("denied"))
	}))
	defer server.Close()

	resp, err := fastClient(0).Get(context.Background(), server.URL, "")
	require.NoError(t, err)

	err = CheckStatus("Unpaywall", resp)
	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "denied", apiErr.Message)
}

func TestHTTPClient_retryDelay(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{RetryDelay: 2 * time.Second})

	tests := []struct {
		name       string
		retryAfter string
		expected   time.Duration
	}{
		{"missing header", "", 2 * time.Second},
		{"seconds", "5", 5 * time.Second},
		{"zero seconds", "0", 2 * time.Second},
		{"garbage", "soon", 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}
			assert.Equal(t, tt.expected, client.retryDelay(resp))
		})
	}
}

func TestShouldRetry(t *testing.T) {
	for code, want := range map[int]bool{200: false, 404: false, 429: true, 500: true, 503: true, 599: true} {
		assert.Equal(t, want, shouldRetry(code), "status %d", code)
	}
}
