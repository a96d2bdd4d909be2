package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (FREQ_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (FREQ_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing (FREQ_API_KEY_PEPPER)" flag:"api-key-pepper"`
	DBMaxConns   int32  `default:"10" usage:"Maximum Postgres connections" flag:"db-max-conns"`
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Upstream     UpstreamConfig
	XenoCanto    XenoCantoConfig
	ElevenLabs   ElevenLabsConfig
	Replicate    ReplicateConfig
	OpenAI       OpenAIConfig `env:"OPENAI"`
	Gemini       GeminiConfig
	N8N          N8NConfig `env:"N8N"`
	Storage      StorageConfig
	Sheets       SheetsConfig
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	AICost int           `default:"10"  usage:"Budget spent by one AI-backed function call" flag:"rate-limit-ai-cost"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// UpstreamConfig applies to every third-party API client.
type UpstreamConfig struct {
	Timeout   time.Duration `default:"20s" usage:"Timeout of upstream requests without a deadline"`
	UserAgent string        `default:"frequence-du-vivant/1.0" usage:"User agent sent upstream"`
	CacheTTL  time.Duration `default:"30m" usage:"Lifetime of cached upstream answers"`
}

// XenoCantoConfig enables the bird recordings proxy.
type XenoCantoConfig struct {
	APIKey string `usage:"Xeno-Canto API v3 key"`
}

// ElevenLabsConfig enables text to speech.
type ElevenLabsConfig struct {
	APIKey  string `usage:"ElevenLabs API key"`
	VoiceID string `usage:"Default ElevenLabs voice"`
	ModelID string `default:"eleven_multilingual_v2" usage:"ElevenLabs model"`
}

// ReplicateConfig enables story visuals.
type ReplicateConfig struct {
	APIToken string `usage:"Replicate API token"`
	Model    string `default:"black-forest-labs/flux-schnell" usage:"Replicate image model"`
}

// OpenAIConfig enables speech transcription.
type OpenAIConfig struct {
	APIKey string `usage:"OpenAI API key"`
}

// GeminiConfig enables AI translation and editorial generation.
type GeminiConfig struct {
	APIKey string `usage:"Gemini API key"`
	Model  string `default:"gemini-2.5-flash" usage:"Gemini model"`
}

// N8NConfig points to the n8n workflows.
type N8NConfig struct {
	CalendarWebhookURL string `usage:"Webhook returning Gaspard's calendar"`
	ChatWebhookURL     string `usage:"Webhook of the Dordonia chat agent"`
}

// StorageConfig enables media uploads to Supabase Storage.
type StorageConfig struct {
	SupabaseURL string `usage:"Supabase project URL"`
	ServiceKey  string `usage:"Supabase service role key"`
	AudioBucket string `default:"marche-audio" usage:"Bucket receiving synthesized speech"`
	ImageBucket string `default:"marche-photos" usage:"Bucket receiving photos"`
	Prefix      string `default:"uploads" usage:"Object path prefix"`
}

// SheetsConfig enables the Google Sheets migration.
type SheetsConfig struct {
	APIKey        string `usage:"Google API key with Sheets read access"`
	SpreadsheetID string `usage:"Spreadsheet holding the marches"`
	Range         string `default:"Marches!A1:Z" usage:"A1 range to import"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return load(false)
}

// LoadToolConfig is LoadConfig for command line tools that parse their own
// flags.
func LoadToolConfig() (*Config, error) {
	return load(true)
}

func load(skipFlags bool) (*Config, error) {
	cfg, err := loadConfig(skipFlags)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set FREQ_DATABASE_URL or DATABASE_URL")
	}
	return cfg, nil
}

func loadConfig(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FREQ",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/frequence/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's FREQ_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
