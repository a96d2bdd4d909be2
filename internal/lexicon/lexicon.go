// Package lexicon queries the LEXICON parcel identifier.
package lexicon

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/go-faster/errors"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

// DefaultURL is the public parcel identifier endpoint.
const DefaultURL = "https://lexicon.osfarm.org/tools/parcel-identifier.json"

// Parcel is an agricultural parcel containing the queried point.
type Parcel struct {
	ID      string   `json:"id"`
	Area    *float64 `json:"area,omitempty"`
	Commune string   `json:"commune,omitempty"`
	Culture string   `json:"culture,omitempty"`
}

// Client queries LEXICON.
type Client struct {
	http    *upstream.Client
	baseURL string
}

// New creates a Client. An empty baseURL uses DefaultURL.
func New(hc *upstream.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{http: hc, baseURL: baseURL}
}

// Parcels returns the parcels at a point.
func (c *Client) Parcels(ctx context.Context, lat, lng float64) ([]Parcel, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, errors.Errorf("coordinates out of range: %v,%v", lat, lng)
	}
	v := url.Values{}
	v.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	v.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))

	resp, err := c.http.Do(ctx, upstream.Request{URL: c.baseURL + "?" + v.Encode()})
	if err != nil {
		return nil, err
	}
	return Parse(resp.Body)
}

// Parse reads a LEXICON answer. The list of parcels may be the document
// itself or sit under parcels, data, results or features; feature
// properties are read when present.
func Parse(body []byte) ([]Parcel, error) {
	root, err := jason.NewValueFromBytes(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode lexicon response")
	}

	var items []*jason.Object
	if vals, err := root.Array(); err == nil {
		for _, v := range vals {
			if obj, err := v.Object(); err == nil {
				items = append(items, obj)
			}
		}
	} else {
		obj, err := root.Object()
		if err != nil {
			return nil, errors.New("lexicon response is neither an object nor an array")
		}
		items = listIn(obj)
	}

	out := make([]Parcel, 0, len(items))
	for _, item := range items {
		if props, err := item.GetObject("properties"); err == nil {
			item = props
		}
		p := Parcel{
			ID:      str(item, "id", "parcel_id", "identifier", "code"),
			Area:    num(item, "area", "surface", "superficie"),
			Commune: str(item, "commune", "municipality", "city", "town"),
			Culture: str(item, "culture", "crop", "culture_name", "label"),
		}
		if p.ID == "" && p.Area == nil && p.Commune == "" && p.Culture == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func listIn(obj *jason.Object) []*jason.Object {
	for _, k := range []string{"parcels", "data", "results", "features"} {
		if items, err := obj.GetObjectArray(k); err == nil {
			return items
		}
	}
	for _, k := range []string{"parcel", "data", "result"} {
		if item, err := obj.GetObject(k); err == nil {
			return []*jason.Object{item}
		}
	}
	return []*jason.Object{obj}
}

func str(obj *jason.Object, keys ...string) string {
	for _, k := range keys {
		v, err := obj.GetValue(k)
		if err != nil {
			continue
		}
		if s, err := v.String(); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if n, err := v.Number(); err == nil {
			return n.String()
		}
		if o, err := v.Object(); err == nil {
			if s := str(o, "name", "label", "nom"); s != "" {
				return s
			}
		}
	}
	return ""
}

func num(obj *jason.Object, keys ...string) *float64 {
	for _, k := range keys {
		v, err := obj.GetValue(k)
		if err != nil {
			continue
		}
		if f, err := v.Float64(); err == nil {
			return &f
		}
		if s, err := v.String(); err == nil {
			s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}
