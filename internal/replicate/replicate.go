// Package replicate runs image predictions on Replicate.
package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

const (
	// DefaultURL is the API root.
	DefaultURL = "https://api.replicate.com"
	// DefaultModel generates the story visuals.
	DefaultModel = "black-forest-labs/flux-schnell"
	// DefaultPollInterval separates two status checks.
	DefaultPollInterval = time.Second
)

// Prediction states.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// ErrMissingToken is returned when no API token is configured.
var ErrMissingToken = errors.New("replicate: api token not configured")

// PredictionError is returned when a prediction ends failed or canceled.
type PredictionError struct {
	ID     string
	Status string
	Reason string
}

func (e *PredictionError) Error() string {
	if e.Reason == "" {
		return "prediction " + e.ID + " " + e.Status
	}
	return "prediction " + e.ID + " " + e.Status + ": " + e.Reason
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIToken     string
	Model        string
	PollInterval time.Duration
}

// Client creates predictions and waits for their output.
type Client struct {
	http *upstream.Client
	cfg  Config
}

// New creates a Client.
func New(hc *upstream.Client, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Client{http: hc, cfg: cfg}
}

// Visual is a finished prediction.
type Visual struct {
	PredictionID string   `json:"prediction_id"`
	Images       []string `json:"images"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *prediction) done() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Generate runs the configured model on prompt and polls until the
// prediction ends or ctx is done.
func (c *Client) Generate(ctx context.Context, prompt, aspectRatio string) (*Visual, error) {
	if c.cfg.APIToken == "" {
		return nil, ErrMissingToken
	}
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}

	header := c.header()
	header.Set("Prefer", "wait")
	in := map[string]any{
		"input": map[string]any{
			"prompt":        prompt,
			"aspect_ratio":  aspectRatio,
			"output_format": "webp",
		},
	}

	var p prediction
	if err := c.http.PostJSON(ctx, c.cfg.BaseURL+"/v1/models/"+c.cfg.Model+"/predictions", header, in, &p); err != nil {
		return nil, errors.Wrap(err, "create prediction")
	}

	lg := zctx.From(ctx)
	if !p.done() {
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for !p.done() {
			select {
			case <-ctx.Done():
				return nil, errors.Wrapf(ctx.Err(), "wait prediction %s", p.ID)
			case <-ticker.C:
			}
			get := p.URLs.Get
			if get == "" {
				get = c.cfg.BaseURL + "/v1/predictions/" + p.ID
			}
			if err := c.http.GetJSON(ctx, get, c.header(), &p); err != nil {
				return nil, errors.Wrapf(err, "poll prediction %s", p.ID)
			}
			lg.Debug("Prediction polled", zap.String("id", p.ID), zap.String("status", p.Status))
		}
	}

	if p.Status != StatusSucceeded {
		return nil, &PredictionError{ID: p.ID, Status: p.Status, Reason: reason(p.Error)}
	}

	images, err := Outputs(p.Output)
	if err != nil {
		return nil, errors.Wrapf(err, "prediction %s output", p.ID)
	}
	return &Visual{PredictionID: p.ID, Images: images}, nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.cfg.APIToken)
	return h
}

// Outputs normalizes a prediction output, which models return either as a
// single URL or as an array of URLs.
func Outputs(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	d := jx.DecodeBytes(raw)
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		if s != "" {
			out = append(out, s)
		}
	case jx.Array:
		if err := d.Arr(func(d *jx.Decoder) error {
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			if s != "" {
				out = append(out, s)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	case jx.Null:
	default:
		return nil, errors.Errorf("unexpected output type %s", d.Next())
	}
	return out, nil
}

func reason(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	d := jx.DecodeBytes(raw)
	if d.Next() == jx.String {
		s, _ := d.Str()
		return s
	}
	if d.Next() == jx.Null {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
