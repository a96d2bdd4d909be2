// Package elevenlabs synthesizes speech with the ElevenLabs API.
package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

const (
	// DefaultURL is the API root.
	DefaultURL = "https://api.elevenlabs.io"
	// DefaultModel is used when no model is configured.
	DefaultModel = "eleven_multilingual_v2"
	// MaxTextLength is the longest accepted text, in characters.
	MaxTextLength = 5000
)

var (
	// ErrMissingKey is returned when no API key is configured.
	ErrMissingKey = errors.New("elevenlabs: api key not configured")
	// ErrMissingVoice is returned when neither the request nor the config names a voice.
	ErrMissingVoice = errors.New("elevenlabs: voice not configured")
)

// InvalidTextError reports a text outside the accepted length.
type InvalidTextError struct {
	Length int
}

func (e *InvalidTextError) Error() string {
	return "text must be between 1 and 5000 characters"
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	VoiceID string
	ModelID string
}

// Speech is synthesized audio.
type Speech struct {
	Audio       []byte
	ContentType string
}

// Client calls the text-to-speech endpoint.
type Client struct {
	http *upstream.Client
	cfg  Config
}

// New creates a Client.
func New(hc *upstream.Client, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModel
	}
	return &Client{http: hc, cfg: cfg}
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to mp3 audio with voiceID, or the configured
// voice when voiceID is empty.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (*Speech, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingKey
	}
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > MaxTextLength {
		return nil, &InvalidTextError{Length: n}
	}
	if voiceID == "" {
		voiceID = c.cfg.VoiceID
	}
	if voiceID == "" {
		return nil, ErrMissingVoice
	}

	body, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       c.cfg.ModelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	header := http.Header{}
	header.Set("xi-api-key", c.cfg.APIKey)
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "audio/mpeg")

	resp, err := c.http.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID),
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	return &Speech{Audio: resp.Body, ContentType: ct}, nil
}
