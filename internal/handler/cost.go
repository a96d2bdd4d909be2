package handler

import (
	"net/http"
	"strings"
)

// aiFunctions are the function routes that call a paid generation or
// speech upstream.
var aiFunctions = map[string]bool{
	"eleven-tts":                  true,
	"generate-story-visuals":      true,
	"realtime-transcription-http": true,
	"marche-editorial-summary":    true,
	"suggest-keywords":            true,
	"translate-species":           true,
	"dordonia-chat":               true,
}

// RequestCost returns the rate limit cost of a request: nothing for probes,
// aiCost for AI-backed functions and 1 for everything else.
func RequestCost(aiCost int) func(*http.Request) int {
	return func(r *http.Request) int {
		switch p := r.URL.Path; {
		case p == "/livez" || p == "/readyz":
			return 0
		case strings.HasPrefix(p, "/api/functions/"):
			if aiFunctions[strings.TrimPrefix(p, "/api/functions/")] {
				return aiCost
			}
		}
		return 1
	}
}
