// Package whisper transcribes audio with the OpenAI transcription API.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/go-faster/errors"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

const (
	// DefaultURL is the API root.
	DefaultURL = "https://api.openai.com"
	// Model is the transcription model.
	Model = "whisper-1"
	// Language is the expected spoken language.
	Language = "fr"
	// MaxAudioSize is the largest accepted upload.
	MaxAudioSize = 25 << 20
)

var (
	// ErrMissingKey is returned when no API key is configured.
	ErrMissingKey = errors.New("whisper: api key not configured")
	// ErrEmptyAudio is returned for an empty upload.
	ErrEmptyAudio = errors.New("audio is empty")
	// ErrAudioTooLarge is returned for uploads above MaxAudioSize.
	ErrAudioTooLarge = errors.New("audio exceeds 25 MB")
)

// Client sends audio for transcription.
type Client struct {
	http    *upstream.Client
	baseURL string
	apiKey  string
}

// New creates a Client.
func New(hc *upstream.Client, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Transcribe returns the French transcription of audio.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingKey
	}
	switch {
	case len(audio) == 0:
		return "", ErrEmptyAudio
	case len(audio) > MaxAudioSize:
		return "", ErrAudioTooLarge
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", path.Base(filename))
	if err != nil {
		return "", errors.Wrap(err, "create file part")
	}
	if _, err := fw.Write(audio); err != nil {
		return "", errors.Wrap(err, "write audio")
	}
	for k, v := range map[string]string{"model": Model, "language": Language, "response_format": "json"} {
		if err := w.WriteField(k, v); err != nil {
			return "", errors.Wrapf(err, "write %s", k)
		}
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "close multipart")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/v1/audio/transcriptions",
		Header: header,
		Body:   buf.Bytes(),
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", errors.Wrap(err, "decode transcription")
	}
	return strings.TrimSpace(out.Text), nil
}
