// Package inaturalist reads species counts around a point from iNaturalist.
package inaturalist

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/snapshot"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

// DefaultURL is the species counts endpoint.
const DefaultURL = "https://api.inaturalist.org/v1/observations/species_counts"

const perPage = 200

type speciesCounts struct {
	TotalResults int `json:"total_results"`
	Results      []struct {
		Count int `json:"count"`
		Taxon struct {
			Name                string `json:"name"`
			PreferredCommonName string `json:"preferred_common_name"`
			IconicTaxonName     string `json:"iconic_taxon_name"`
			DefaultPhoto        *struct {
				SquareURL string `json:"square_url"`
				MediumURL string `json:"medium_url"`
			} `json:"default_photo"`
		} `json:"taxon"`
	} `json:"results"`
}

// Client implements snapshot.BiodiversitySource.
type Client struct {
	http    *upstream.Client
	baseURL string
	locale  string
	cache   *cache.Cache
}

var _ snapshot.BiodiversitySource = (*Client)(nil)

// New creates a Client returning French common names.
func New(hc *upstream.Client, baseURL string, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Client{http: hc, baseURL: baseURL, locale: "fr", cache: cache.New(ttl, ttl*2)}
}

// Species returns research-grade species observed within radiusKM.
func (c *Client) Species(ctx context.Context, lat, lng, radiusKM float64) ([]snapshot.Species, error) {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(lat, 'f', 5, 64))
	v.Set("lng", strconv.FormatFloat(lng, 'f', 5, 64))
	v.Set("radius", strconv.FormatFloat(radiusKM, 'f', -1, 64))
	v.Set("quality_grade", "research")
	v.Set("per_page", strconv.Itoa(perPage))
	v.Set("locale", c.locale)
	u := c.baseURL + "?" + v.Encode()

	if cached, ok := c.cache.Get(u); ok {
		return cached.([]snapshot.Species), nil
	}

	var resp speciesCounts
	if err := c.http.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]snapshot.Species, 0, len(resp.Results))
	for _, r := range resp.Results {
		s := snapshot.Species{
			ScientificName: r.Taxon.Name,
			CommonName:     r.Taxon.PreferredCommonName,
			Group:          snapshot.GroupOf(r.Taxon.IconicTaxonName),
			Count:          r.Count,
		}
		if p := r.Taxon.DefaultPhoto; p != nil {
			s.PhotoURL = p.MediumURL
			if s.PhotoURL == "" {
				s.PhotoURL = p.SquareURL
			}
		}
		out = append(out, s)
	}

	c.cache.SetDefault(u, out)
	return out, nil
}
