// Package gemini is the AI gateway: vernacular species names, editorial
// summaries and keyword suggestions are generated with Gemini.
package gemini

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"google.golang.org/genai"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/editorial"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/species"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrMissingKey is returned when no API key is configured.
var ErrMissingKey = errors.New("gemini: api key not configured")

// Config configures a Client.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// Client wraps a genai client bound to one model.
type Client struct {
	models *genai.Models
	model  string
}

var (
	_ species.Namer       = (*Client)(nil)
	_ editorial.Generator = (*Client)(nil)
)

// New creates a Client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL, APIVersion: "v1beta"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}
	return &Client{models: client.Models, model: cfg.Model}, nil
}

const editorialInstruction = "Tu es l'assistant éditorial de Gaspard Boréal, poète et marcheur. " +
	"Tu écris en français, avec sobriété, sans emphase ni hashtags."

// Generate answers prompt in the editorial voice.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(editorialInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.7),
		MaxOutputTokens:   1024,
	})
}

var unknownAnswers = map[string]bool{
	"":               true,
	"inconnu":        true,
	"unknown":        true,
	"aucun":          true,
	"n/a":            true,
	"none":           true,
	"je ne sais pas": true,
}

// CommonName asks for the vernacular name of scientificName in lang. An
// empty result means the model did not know it.
func (c *Client) CommonName(ctx context.Context, scientificName, lang string) (string, error) {
	prompt := "Donne uniquement le nom vernaculaire le plus courant en langue « " + lang +
		" » de l'espèce « " + scientificName + " ». Réponds par le nom seul, sans ponctuation ni explication. " +
		"Si tu ne le connais pas, réponds « inconnu »."
	answer, err := c.generate(ctx, prompt, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: 64,
	})
	if err != nil {
		return "", err
	}
	name := strings.Trim(firstLine(answer), " \t\"'«».")
	if unknownAnswers[strings.ToLower(name)] || strings.EqualFold(name, scientificName) {
		return "", nil
	}
	return name, nil
}

func (c *Client) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", errors.Wrap(err, "generate content")
	}
	return strings.TrimSpace(resp.Text()), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
