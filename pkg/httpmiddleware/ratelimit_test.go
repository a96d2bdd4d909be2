package httpmiddleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg RateLimitConfig) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 21, 9, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.now
	return l, clock
}

func serve(h http.Handler, remote, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLimiter_Allow(t *testing.T) {
	l, clock := newTestLimiter(RateLimitConfig{Max: 4, Window: time.Minute})

	for want := 3; want >= 0; want-- {
		d := l.Allow("ip:a", 1)
		require.True(t, d.Allowed)
		assert.Equal(t, want, d.Remaining)
	}

	d := l.Allow("ip:a", 1)
	assert.False(t, d.Allowed)
	assert.Equal(t, 15*time.Second, d.RetryAfter)

	// One emission interval later a single unit is available again.
	clock.advance(15 * time.Second)
	assert.True(t, l.Allow("ip:a", 1).Allowed)
	assert.False(t, l.Allow("ip:a", 1).Allowed)

	// A full window of idleness restores the whole budget.
	clock.advance(time.Minute)
	d = l.Allow("ip:a", 1)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}

func TestLimiter_Cost(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Max: 10, Window: time.Minute})

	d := l.Allow("ip:a", 8)
	require.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)

	d = l.Allow("ip:a", 3)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining, "a denied request spends nothing")

	assert.True(t, l.Allow("ip:a", 2).Allowed)
	assert.True(t, l.Allow("ip:b", 10).Allowed)
	assert.False(t, l.Allow("ip:b", 11).Allowed)
}

func TestRateLimit_OverLimit(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	h := l.Middleware()(okHandler())

	for range 2 {
		w := serve(h, "10.0.0.1:9999", "/api/marches")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, "10.0.0.1:9999", "/api/marches")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])

	// Other clients keep their own budget.
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:9999", "/api/marches").Code)
}

func TestRateLimit_CostFunc(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{
		Max:    10,
		Window: time.Minute,
		Cost: func(r *http.Request) int {
			switch {
			case r.URL.Path == "/livez":
				return 0
			case strings.HasPrefix(r.URL.Path, "/api/functions/eleven-tts"):
				return 10
			default:
				return 1
			}
		},
	})
	h := l.Middleware()(okHandler())

	w := serve(h, "10.0.0.1:1", "/livez")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"), "unmetered requests carry no headers")

	w = serve(h, "10.0.0.1:1", "/api/functions/eleven-tts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:1", "/api/marches").Code)
	for range 5 {
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1", "/livez").Code)
	}
}

func knownKeys(keys ...string) func(context.Context, string) bool {
	return func(_ context.Context, key string) bool {
		return slices.Contains(keys, key)
	}
}

func TestRateLimit_APIKeyBudget(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{
		Max:       1,
		Window:    time.Minute,
		VerifyKey: knownKeys("secret", "other"),
	})
	h := l.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1", "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:1", "/").Code)

	// Same address, but an administrator key gets a budget of its own.
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1", "/", "X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:1", "/", "X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1", "/", "X-API-Key", "other").Code)
}

func TestRateLimit_UnverifiedKeysShareIPBudget(t *testing.T) {
	tests := []struct {
		name   string
		verify func(context.Context, string) bool
	}{
		{name: "Rejected", verify: knownKeys("secret")},
		{name: "NoVerifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(RateLimitConfig{Max: 2, Window: time.Minute, VerifyKey: tt.verify})
			h := l.Middleware()(okHandler())

			var ok, limited int
			for i := range 50 {
				switch serve(h, "10.0.0.1:1", "/", "X-API-Key", fmt.Sprintf("junk-%d", i)).Code {
				case http.StatusOK:
					ok++
				case http.StatusTooManyRequests:
					limited++
				}
			}
			assert.Equal(t, 2, ok)
			assert.Equal(t, 48, limited)
		})
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		header []string
		want   string
	}{
		{name: "RemoteAddr", remote: "192.0.2.1:443", want: "ip:192.0.2.1"},
		{name: "NoPort", remote: "192.0.2.1", want: "ip:192.0.2.1"},
		{name: "XRealIP", remote: "10.0.0.1:1", header: []string{"X-Real-IP", "198.51.100.7"}, want: "ip:198.51.100.7"},
		{
			name:   "XForwardedForFirstHop",
			remote: "10.0.0.1:1",
			header: []string{"X-Forwarded-For", " 203.0.113.5 , 10.0.0.1", "X-Real-IP", "198.51.100.7"},
			want:   "ip:203.0.113.5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for i := 0; i+1 < len(tt.header); i += 2 {
				req.Header.Set(tt.header[i], tt.header[i+1])
			}
			assert.Equal(t, tt.want, ClientKey(req, "X-API-Key", nil))
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:443"
	req.Header.Set("X-API-Key", "secret")
	key := ClientKey(req, "X-API-Key", knownKeys("secret"))
	assert.True(t, strings.HasPrefix(key, "key:"))
	assert.NotContains(t, key, "secret")
	assert.Len(t, key, len("key:")+16)

	req.Header.Set("X-API-Key", "forged")
	assert.Equal(t, "ip:192.0.2.1", ClientKey(req, "X-API-Key", knownKeys("secret")))
}
