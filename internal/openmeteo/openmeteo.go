// Package openmeteo reads daily weather archives from Open-Meteo.
package openmeteo

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/snapshot"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

// DefaultURL is the historical weather endpoint.
const DefaultURL = "https://archive-api.open-meteo.com/v1/archive"

const dailyVars = "temperature_2m_max,temperature_2m_min,precipitation_sum,wind_speed_10m_max"

type archive struct {
	Daily struct {
		Time          []string   `json:"time"`
		TempMax       []*float64 `json:"temperature_2m_max"`
		TempMin       []*float64 `json:"temperature_2m_min"`
		Precipitation []*float64 `json:"precipitation_sum"`
		WindMax       []*float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

// Client implements snapshot.WeatherSource.
type Client struct {
	http    *upstream.Client
	baseURL string
}

var _ snapshot.WeatherSource = (*Client)(nil)

// New creates a Client.
func New(hc *upstream.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{http: hc, baseURL: baseURL}
}

// Daily returns one Day per date between start and end inclusive, in
// Europe/Paris days, wind in km/h.
func (c *Client) Daily(ctx context.Context, lat, lng float64, start, end time.Time) ([]snapshot.Day, error) {
	if end.Before(start) {
		return nil, errors.Errorf("end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	v := url.Values{}
	v.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	v.Set("longitude", strconv.FormatFloat(lng, 'f', 4, 64))
	v.Set("start_date", start.Format(time.DateOnly))
	v.Set("end_date", end.Format(time.DateOnly))
	v.Set("daily", dailyVars)
	v.Set("timezone", "Europe/Paris")
	v.Set("wind_speed_unit", "kmh")

	var resp archive
	if err := c.http.GetJSON(ctx, c.baseURL+"?"+v.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	d := resp.Daily
	days := make([]snapshot.Day, 0, len(d.Time))
	for i, ts := range d.Time {
		date, err := time.Parse(time.DateOnly, ts)
		if err != nil {
			return nil, errors.Wrapf(err, "parse date %q", ts)
		}
		days = append(days, snapshot.Day{
			Date:          date,
			TempMax:       at(d.TempMax, i),
			TempMin:       at(d.TempMin, i),
			Precipitation: at(d.Precipitation, i),
			WindMax:       at(d.WindMax, i),
		})
	}
	return days, nil
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}
