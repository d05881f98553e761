package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type limitedRequest struct {
	remoteAddr string
	headers    map[string]string
	want       int
}

func TestRateLimit(t *testing.T) {
	for _, tt := range []struct {
		name     string
		cfg      RateLimitConfig
		requests []limitedRequest
	}{
		{
			name: "under limit",
			cfg:  RateLimitConfig{Max: 3, Window: time.Minute},
			requests: []limitedRequest{
				{remoteAddr: "192.168.1.1:1", want: http.StatusOK},
				{remoteAddr: "192.168.1.1:2", want: http.StatusOK},
				{remoteAddr: "192.168.1.1:3", want: http.StatusOK},
			},
		},
		{
			name: "independent per ip",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			requests: []limitedRequest{
				{remoteAddr: "10.0.0.1:1", want: http.StatusOK},
				{remoteAddr: "10.0.0.2:1", want: http.StatusOK},
				{remoteAddr: "10.0.0.1:2", want: http.StatusTooManyRequests},
			},
		},
		{
			name: "first forwarded address",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			requests: []limitedRequest{
				{remoteAddr: "192.168.1.1:1", headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, want: http.StatusOK},
				{remoteAddr: "192.168.1.2:1", headers: map[string]string{"X-Forwarded-For": "203.0.113.50"}, want: http.StatusTooManyRequests},
			},
		},
		{
			name: "admin key",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: KeyByHeader("api_key")},
			requests: []limitedRequest{
				{remoteAddr: "10.0.0.1:1", headers: map[string]string{"api_key": "a"}, want: http.StatusOK},
				{remoteAddr: "10.0.0.2:1", headers: map[string]string{"api_key": "a"}, want: http.StatusTooManyRequests},
				{remoteAddr: "10.0.0.1:2", headers: map[string]string{"api_key": "b"}, want: http.StatusOK},
				{remoteAddr: "10.0.0.1:3", want: http.StatusOK},
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			handler := RateLimit(tt.cfg)(okHandler())
			for i, lr := range tt.requests {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = lr.remoteAddr
				for k, v := range lr.headers {
					req.Header.Set(k, v)
				}
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				assert.Equal(t, lr.want, w.Code, "request %d", i+1)
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
			}
		})
	}
}

func TestRateLimit_Body(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	var w *httptest.ResponseRecorder
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:1"
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assertErrorBody(t, w, 429, "rate_limited")
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 2, Window: 2 * time.Second})
	now := time.Now()

	remaining, _, ok := rl.allow("k", now)
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	_, _, ok = rl.allow("k", now)
	require.True(t, ok)

	_, retryAfter, ok := rl.allow("k", now)
	require.False(t, ok)
	assert.InDelta(t, time.Second, retryAfter, float64(10*time.Millisecond))

	// One token per second.
	_, _, ok = rl.allow("k", now.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, rl.refillIn(0))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Second})
	now := time.Now()

	_, _, ok := rl.allow("k", now)
	require.True(t, ok)
	_, _, ok = rl.allow("idle", now.Add(-2*time.Second))
	require.True(t, ok)

	rl.cleanup(now.Add(500 * time.Millisecond))
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "k")

	rl.cleanup(now.Add(time.Second))
	assert.Empty(t, rl.visitors)
}

func assertErrorBody(t *testing.T, w *httptest.ResponseRecorder, code int, errCode string) {
	t.Helper()
	var (
		gotCode int
		gotErr  string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			gotCode, err = d.Int()
		case "error":
			gotErr, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	}))
	assert.Equal(t, code, gotCode)
	assert.Equal(t, errCode, gotErr)
}
