package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(h http.Handler, method, origin string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/marches", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCORS_AllowOrigin(t *testing.T) {
	tests := []struct {
		name   string
		cfg    CORSConfig
		origin string
		want   string
	}{
		{name: "AnyOrigin", cfg: CORSConfig{}, origin: "https://a.example", want: "*"},
		{name: "Star", cfg: CORSConfig{AllowOrigins: []string{"*"}}, origin: "https://a.example", want: "*"},
		{
			name:   "StarWithCredentialsEchoes",
			cfg:    CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true},
			origin: "https://a.example",
			want:   "https://a.example",
		},
		{
			name:   "ExactCaseInsensitive",
			cfg:    CORSConfig{AllowOrigins: []string{"https://Frequence.example/"}},
			origin: "https://frequence.EXAMPLE",
			want:   "https://frequence.EXAMPLE",
		},
		{
			name:   "ExactRefused",
			cfg:    CORSConfig{AllowOrigins: []string{"https://frequence.example"}},
			origin: "https://evil.example",
		},
		{
			name:   "Subdomain",
			cfg:    CORSConfig{AllowOrigins: []string{"https://*.frequence.example"}},
			origin: "https://preview-12.frequence.example",
			want:   "https://preview-12.frequence.example",
		},
		{
			name:   "SubdomainNeedsLabel",
			cfg:    CORSConfig{AllowOrigins: []string{"https://*.frequence.example"}},
			origin: "https://.frequence.example",
		},
		{
			name:   "SubdomainWrongScheme",
			cfg:    CORSConfig{AllowOrigins: []string{"https://*.frequence.example"}},
			origin: "http://app.frequence.example",
		},
		{
			name:   "SubdomainApexRefused",
			cfg:    CORSConfig{AllowOrigins: []string{"https://*.frequence.example"}},
			origin: "https://frequence.example",
		},
		{
			name:   "SubdomainLookalikeRefused",
			cfg:    CORSConfig{AllowOrigins: []string{"https://*.frequence.example"}},
			origin: "https://evilfrequence.example",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newCORSPolicy(tt.cfg).allowOrigin(tt.origin))
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(CORSConfig{
		AllowOrigins: []string{"https://frequence.example"},
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-API-Key"},
		MaxAge:       600,
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight reached the handler")
	}))

	w := corsRequest(h, http.MethodOptions, "https://frequence.example",
		"Access-Control-Request-Method", "PATCH")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://frequence.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PATCH, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, X-API-Key", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, []string{"Origin", "Access-Control-Request-Method", "Access-Control-Request-Headers"},
		w.Header().Values("Vary"))

	w = corsRequest(h, http.MethodOptions, "https://evil.example",
		"Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_PreflightMirrorsHeaders(t *testing.T) {
	h := CORS(CORSConfig{})(okHandler())

	w := corsRequest(h, http.MethodOptions, "https://a.example",
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "X-Custom",
	)
	assert.Equal(t, "X-Custom", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_ActualRequest(t *testing.T) {
	h := CORS(CORSConfig{
		AllowOrigins:     []string{"https://*.frequence.example"},
		AllowCredentials: true,
	})(okHandler())

	w := corsRequest(h, http.MethodGet, "https://app.frequence.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.frequence.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining")
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	// Refused origins still reach the handler; the browser enforces CORS.
	w = corsRequest(h, http.MethodGet, "https://evil.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(h, http.MethodGet, "")
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORS_ExposeOverride(t *testing.T) {
	h := CORS(CORSConfig{ExposeHeaders: []string{"X-Only"}})(okHandler())

	w := corsRequest(h, http.MethodGet, "https://a.example")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Only", w.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, w.Header().Values("Vary"))
}
