// Package cadastre looks up French cadastral parcels.
//
// Three sources are tried in order: the Etalab bundler, the Etalab
// per-commune archive and the IGN apicarto API. The first one returning a
// matching parcel wins.
package cadastre

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

const (
	DefaultBundlerURL  = "https://cadastre.data.gouv.fr/bundler/cadastre-etalab/communes/%s/geojson/parcelles"
	DefaultArchiveURL  = "https://cadastre.data.gouv.fr/data/etalab-cadastre/latest/geojson/communes/%s/%s/cadastre-%s-parcelles.json.gz"
	DefaultApicartoURL = "https://apicarto.ign.fr/api/cadastre/parcelle"

	DefaultCacheTTL = time.Hour
)

// ErrNoCandidate is returned when no source knows the parcel.
var ErrNoCandidate = errors.New("parcel not found")

var errNoMatch = errors.New("no matching feature")

var inseeRe = regexp.MustCompile(`^(?:\d{5}|2[AB]\d{3})$`)

// InvalidQueryError reports a malformed lookup.
type InvalidQueryError struct {
	Field  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Query identifies a parcel.
type Query struct {
	INSEE   string
	Section string
	Numero  string
}

// Normalize validates q and returns it in canonical form: upper-case
// INSEE code, two-character section and four-digit number.
func (q Query) Normalize() (Query, error) {
	q.INSEE = strings.ToUpper(strings.TrimSpace(q.INSEE))
	if !inseeRe.MatchString(q.INSEE) {
		return q, &InvalidQueryError{Field: "insee", Reason: "expected 5 characters"}
	}
	q.Section = strings.ToUpper(strings.TrimSpace(q.Section))
	if q.Section == "" || len(q.Section) > 2 {
		return q, &InvalidQueryError{Field: "section", Reason: "expected 1 or 2 characters"}
	}
	q.Section = leftPad(q.Section, 2, '0')

	q.Numero = strings.TrimLeft(strings.TrimSpace(q.Numero), "0")
	if q.Numero == "" || len(q.Numero) > 4 || strings.Trim(q.Numero, "0123456789") != "" {
		return q, &InvalidQueryError{Field: "numero", Reason: "expected up to 4 digits"}
	}
	q.Numero = leftPad(q.Numero, 4, '0')
	return q, nil
}

func leftPad(s string, n int, c byte) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat(string(c), n-len(s)) + s
}

// Department returns the directory of a commune in the Etalab archive.
func (q Query) Department() string {
	if strings.HasPrefix(q.INSEE, "97") {
		return q.INSEE[:3]
	}
	return q.INSEE[:2]
}

// Parcel is a cadastral parcel.
type Parcel struct {
	ID         string          `json:"id"`
	Commune    string          `json:"commune"`
	Section    string          `json:"section"`
	Numero     string          `json:"numero"`
	Contenance *float64        `json:"contenance,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Source     string          `json:"source"`
}

type featureCollection struct {
	Features []struct {
		ID         any             `json:"id"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties struct {
			ID         string   `json:"id"`
			IDU        string   `json:"idu"`
			Commune    string   `json:"commune"`
			NomCom     string   `json:"nom_com"`
			CodeInsee  string   `json:"code_insee"`
			Section    string   `json:"section"`
			Numero     string   `json:"numero"`
			Contenance *float64 `json:"contenance"`
		} `json:"properties"`
	} `json:"features"`
}

// Config configures a Client. Empty URLs use the public defaults.
type Config struct {
	BundlerURL  string
	ArchiveURL  string
	ApicartoURL string
	CacheTTL    time.Duration
}

// Client resolves parcels.
type Client struct {
	http       *upstream.Client
	candidates []candidate
	cache      *cache.Cache
}

type candidate struct {
	name string
	url  func(q Query) string
	read func(body []byte) ([]byte, error)
}

// New creates a Client.
func New(hc *upstream.Client, cfg Config) *Client {
	if cfg.BundlerURL == "" {
		cfg.BundlerURL = DefaultBundlerURL
	}
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = DefaultArchiveURL
	}
	if cfg.ApicartoURL == "" {
		cfg.ApicartoURL = DefaultApicartoURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	return &Client{
		http:  hc,
		cache: cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		candidates: []candidate{
			{
				name: "etalab-bundler",
				url:  func(q Query) string { return fmt.Sprintf(cfg.BundlerURL, q.INSEE) },
				read: identity,
			},
			{
				name: "etalab-archive",
				url: func(q Query) string {
					return fmt.Sprintf(cfg.ArchiveURL, q.Department(), q.INSEE, q.INSEE)
				},
				read: gunzip,
			},
			{
				name: "ign-apicarto",
				url: func(q Query) string {
					v := url.Values{}
					v.Set("code_insee", q.INSEE)
					v.Set("section", q.Section)
					v.Set("numero", q.Numero)
					return cfg.ApicartoURL + "?" + v.Encode()
				},
				read: identity,
			},
		},
	}
}

func identity(body []byte) ([]byte, error) { return body, nil }

func gunzip(body []byte) ([]byte, error) {
	zr, err := pgzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "gzip header")
	}
	defer func() { _ = zr.Close() }()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "gunzip")
	}
	return data, nil
}

// Lookup returns the parcel identified by q.
func (c *Client) Lookup(ctx context.Context, q Query) (*Parcel, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	key := q.INSEE + "|" + q.Section + "|" + q.Numero
	if v, ok := c.cache.Get(key); ok {
		p := v.(Parcel)
		return &p, nil
	}

	lg := zctx.From(ctx)
	for _, cand := range c.candidates {
		p, err := c.try(ctx, cand, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lg.Debug("Cadastre candidate missed", zap.String("candidate", cand.name), zap.Error(err))
			continue
		}
		c.cache.SetDefault(key, *p)
		return p, nil
	}
	return nil, ErrNoCandidate
}

func (c *Client) try(ctx context.Context, cand candidate, q Query) (*Parcel, error) {
	resp, err := c.http.Do(ctx, upstream.Request{Method: http.MethodGet, URL: cand.url(q)})
	if err != nil {
		return nil, err
	}
	data, err := cand.read(resp.Body)
	if err != nil {
		return nil, err
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrap(err, "decode geojson")
	}
	for _, f := range fc.Features {
		props := f.Properties
		if leftPad(strings.ToUpper(props.Section), 2, '0') != q.Section {
			continue
		}
		if leftPad(strings.TrimLeft(props.Numero, "0"), 4, '0') != q.Numero {
			continue
		}
		p := &Parcel{
			ID:         firstNonEmpty(props.ID, props.IDU, fmt.Sprint(f.ID)),
			Commune:    firstNonEmpty(props.Commune, props.NomCom, props.CodeInsee, q.INSEE),
			Section:    q.Section,
			Numero:     q.Numero,
			Contenance: props.Contenance,
			Geometry:   f.Geometry,
			Source:     cand.name,
		}
		return p, nil
	}
	return nil, errNoMatch
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" && v != "<nil>" {
			return v
		}
	}
	return ""
}
