// Package xenocanto searches bird and wildlife recordings on xeno-canto.
package xenocanto

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/patrickmn/go-cache"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

const (
	// DefaultURL is the API v3 recordings endpoint.
	DefaultURL = "https://xeno-canto.org/api/3/recordings"

	DefaultLimit = 10
	MaxLimit     = 50

	// The API refuses pages smaller than this.
	minPerPage = 50
)

// ErrMissingKey is returned when no API key is configured.
var ErrMissingKey = errors.New("xeno-canto api key is not configured")

// Recording is a sound recording.
type Recording struct {
	ID         string `json:"id"`
	Species    string `json:"species"`
	CommonName string `json:"common_name,omitempty"`
	URL        string `json:"url"`
	File       string `json:"file"`
	Type       string `json:"type,omitempty"`
	Quality    string `json:"quality,omitempty"`
	Length     string `json:"length,omitempty"`
	Recordist  string `json:"recordist,omitempty"`
	Country    string `json:"country,omitempty"`
	License    string `json:"license,omitempty"`
}

// Result is the outcome of a search.
type Result struct {
	Recordings   []Recording `json:"recordings"`
	FallbackUsed bool        `json:"fallback_used"`
}

type apiResponse struct {
	NumRecordings string `json:"numRecordings"`
	Recordings    []struct {
		ID     string `json:"id"`
		Gen    string `json:"gen"`
		Sp     string `json:"sp"`
		En     string `json:"en"`
		Rec    string `json:"rec"`
		Cnt    string `json:"cnt"`
		Type   string `json:"type"`
		URL    string `json:"url"`
		File   string `json:"file"`
		Lic    string `json:"lic"`
		Q      string `json:"q"`
		Length string `json:"length"`
	} `json:"recordings"`
}

// Client queries xeno-canto.
type Client struct {
	http    *upstream.Client
	baseURL string
	apiKey  string
	cache   *cache.Cache
}

// New creates a Client.
func New(hc *upstream.Client, baseURL, apiKey string, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Client{http: hc, baseURL: baseURL, apiKey: apiKey, cache: cache.New(ttl, ttl*2)}
}

// Query builds the search query for a species: genus and epithet tags for
// a scientific name, the English name otherwise.
func Query(species string) string {
	parts := strings.Fields(species)
	if len(parts) >= 2 && isLatinGenus(parts[0]) {
		return fmt.Sprintf("gen:%s sp:%s", parts[0], strings.ToLower(parts[1]))
	}
	return fmt.Sprintf(`en:"%s"`, strings.Join(parts, " "))
}

func isLatinGenus(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s[1:] {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Search returns up to limit recordings of species, preferring quality A.
// When no quality A recording exists the search is repeated without the
// quality filter.
func (c *Client) Search(ctx context.Context, species string, limit int) (*Result, error) {
	species = strings.TrimSpace(species)
	if species == "" {
		return nil, errors.New("species is required")
	}
	if c.apiKey == "" {
		return nil, ErrMissingKey
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	key := fmt.Sprintf("%s|%d", strings.ToLower(species), limit)
	if v, ok := c.cache.Get(key); ok {
		r := v.(Result)
		return &r, nil
	}

	q := Query(species)
	recs, err := c.search(ctx, q+" q:A", limit)
	if err != nil {
		return nil, err
	}
	res := Result{Recordings: recs}
	if len(recs) == 0 {
		if res.Recordings, err = c.search(ctx, q, limit); err != nil {
			return nil, err
		}
		res.FallbackUsed = true
	}

	c.cache.SetDefault(key, res)
	return &res, nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]Recording, error) {
	v := url.Values{}
	v.Set("query", query)
	v.Set("key", c.apiKey)
	v.Set("per_page", fmt.Sprint(minPerPage))

	var resp apiResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"?"+v.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Recording, 0, min(limit, len(resp.Recordings)))
	for _, r := range resp.Recordings {
		if len(out) == limit {
			break
		}
		out = append(out, Recording{
			ID:         r.ID,
			Species:    strings.TrimSpace(r.Gen + " " + r.Sp),
			CommonName: r.En,
			URL:        absolute(r.URL),
			File:       absolute(r.File),
			Type:       r.Type,
			Quality:    r.Q,
			Length:     r.Length,
			Recordist:  r.Rec,
			Country:    r.Cnt,
			License:    absolute(r.Lic),
		})
	}
	return out, nil
}

// absolute turns protocol-relative URLs into https ones.
func absolute(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}
