package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// RateLimitConfig configures the per-client limiter.
type RateLimitConfig struct {
	// Max is the request budget of a client per Window.
	Max int
	// Window is the period over which Max is spread.
	Window time.Duration
	// Key identifies the client. Defaults to ClientKey.
	Key func(*http.Request) string
	// Cost is how much of the budget a request spends. Defaults to 1.
	// Requests costing 0 are not metered.
	Cost func(*http.Request) int
	// APIKeyHeader is read by ClientKey. Defaults to X-API-Key.
	APIKeyHeader string
	// VerifyKey admits an API key as the client identity. Without it every
	// client is keyed by IP.
	VerifyKey func(ctx context.Context, key string) bool
}

// Limiter implements the generic cell rate algorithm: each client has a
// theoretical arrival time that advances by Window/Max per unit of cost and
// may run at most one Window ahead of the clock.
type Limiter struct {
	max      int
	window   time.Duration
	interval time.Duration
	key      func(*http.Request) string
	cost     func(*http.Request) int
	now      func() time.Time

	mu  sync.Mutex
	tat *cache.Cache
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// NewLimiter creates a Limiter. Idle clients are evicted by go-cache once
// their arrival time has passed.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.Max <= 0 {
		cfg.Max = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "X-API-Key"
	}
	if cfg.Key == nil {
		header, verify := cfg.APIKeyHeader, cfg.VerifyKey
		cfg.Key = func(r *http.Request) string { return ClientKey(r, header, verify) }
	}
	if cfg.Cost == nil {
		cfg.Cost = func(*http.Request) int { return 1 }
	}
	return &Limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		interval: cfg.Window / time.Duration(cfg.Max),
		key:      cfg.Key,
		cost:     cfg.Cost,
		now:      time.Now,
		tat:      cache.New(cfg.Window, cfg.Window),
	}
}

// Allow spends cost units of the budget of key.
func (l *Limiter) Allow(key string, cost int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tat := now
	if v, ok := l.tat.Get(key); ok {
		if t := v.(time.Time); t.After(now) {
			tat = t
		}
	}

	next := tat.Add(time.Duration(cost) * l.interval)
	if ahead := next.Sub(now); ahead > l.window {
		return Decision{
			Remaining:  l.remaining(tat.Sub(now)),
			ResetAt:    tat,
			RetryAfter: ahead - l.window,
		}
	}

	l.tat.Set(key, next, next.Sub(now))
	return Decision{
		Allowed:   true,
		Remaining: l.remaining(next.Sub(now)),
		ResetAt:   next,
	}
}

func (l *Limiter) remaining(ahead time.Duration) int {
	if l.interval <= 0 {
		return l.max
	}
	n := int((l.window - ahead) / l.interval)
	return max(0, min(n, l.max))
}

// Middleware meters every request and answers 429 once a client is over
// budget. Metered responses carry the X-RateLimit-* headers.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cost := l.cost(r)
			if cost <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			d := l.Allow(l.key(r), cost)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":    http.StatusTooManyRequests,
				"message": "rate limit exceeded",
			})
		})
	}
}

// RateLimit is shorthand for NewLimiter(cfg).Middleware().
func RateLimit(cfg RateLimitConfig) Middleware {
	return NewLimiter(cfg).Middleware()
}

// ClientKey identifies the caller by a digest of its API key when verify
// accepts the key, so an administrator behind a shared proxy keeps a budget
// of its own, and by client IP otherwise.
func ClientKey(r *http.Request, apiKeyHeader string, verify func(context.Context, string) bool) string {
	if k := r.Header.Get(apiKeyHeader); k != "" && verify != nil && verify(r.Context(), k) {
		sum := sha256.Sum256([]byte(k))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
