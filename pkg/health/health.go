// Package health serves the /livez and /readyz probes of the API server.
//
// Probes run in background goroutines. A probe flips to failing only after
// a number of consecutive failures and back to passing after a number of
// consecutive successes, so a single slow Postgres ping does not pull the
// instance out of the load balancer.
//
// Optional features that were disabled at startup (missing credentials for
// an upstream) are listed on /readyz without affecting readiness.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports the health of one component. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// Kind tells which endpoint a probe contributes to.
type Kind int

const (
	// Liveness probes restart the process when failing.
	Liveness Kind = iota
	// Readiness probes remove the instance from traffic when failing.
	Readiness
)

const (
	defaultFailures  = 3
	defaultSuccesses = 1
)

// Option customizes a probe.
type Option func(*probe)

// WithThresholds sets how many consecutive failures mark a probe failing
// and how many consecutive successes mark it passing again.
func WithThresholds(failures, successes int) Option {
	return func(p *probe) {
		if failures > 0 {
			p.failures = failures
		}
		if successes > 0 {
			p.successes = successes
		}
	}
}

// probe is one registered check. Only its runner goroutine touches the
// streak counters; passing and lastErr are read by HTTP handlers.
type probe struct {
	name      string
	kind      Kind
	timeout   time.Duration
	check     CheckFunc
	failures  int
	successes int

	passing atomic.Bool
	lastErr atomic.Pointer[error]

	failStreak int
	okStreak   int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err == nil {
		p.failStreak = 0
		if p.okStreak++; p.okStreak >= p.successes {
			p.passing.Store(true)
		}
		return
	}
	p.okStreak = 0
	if p.failStreak++; p.failStreak >= p.failures {
		p.passing.Store(false)
	}
}

func (p *probe) reason() string {
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is failing"
}

// Health holds the probes and the readiness flag of the server.
type Health struct {
	ready atomic.Bool

	mu       sync.RWMutex
	probes   []*probe
	features map[string]string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{features: map[string]string{}}
}

// Add registers a probe. Probes start passing.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	p := &probe{
		name:      name,
		kind:      kind,
		timeout:   timeout,
		check:     check,
		failures:  defaultFailures,
		successes: defaultSuccesses,
	}
	for _, o := range opts {
		o(p)
	}
	p.passing.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a liveness probe.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	h.Add(Liveness, name, timeout, check, opts...)
}

// AddReadinessCheck registers a readiness probe.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	h.Add(Readiness, name, timeout, check, opts...)
}

// Disable records an optional feature that is turned off, with the reason.
func (h *Health) Disable(feature, reason string) {
	h.mu.Lock()
	h.features[feature] = reason
	h.mu.Unlock()
}

// Start runs every probe immediately, then every interval until Stop or
// until ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)
	for _, p := range h.probes {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			loop(ctx, p, interval)
		}()
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// Stop cancels the probes and waits for their goroutines. It may be called
// more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

// SetReady marks the server ready, or draining when false.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the server is marked ready and every readiness
// probe passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failing(Readiness)) == 0
}

func (h *Health) failing(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := map[string]string{}
	for _, p := range h.probes {
		if p.kind == kind && !p.passing.Load() {
			out[p.name] = p.reason()
		}
	}
	return out
}

// statusResponse is the body of both probe endpoints.
type statusResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Features map[string]string `json:"disabled_features,omitempty"`
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, statusResponse{Checks: h.failing(Liveness)})
}

// ReadyEndpoint serves /readyz. Disabled features are listed but do not
// make the server unready.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failing(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}

	h.mu.RLock()
	features := maps.Clone(h.features)
	h.mu.RUnlock()

	write(w, statusResponse{Checks: failures, Features: features})
}

func write(w http.ResponseWriter, resp statusResponse) {
	code := http.StatusOK
	resp.Status = "ok"
	if len(resp.Checks) > 0 {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
