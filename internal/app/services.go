package app

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/cadastre"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/calendar"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/crm"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/editorial"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/exploration"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/media"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/snapshot"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/species"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/elevenlabs"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/gemini"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/handler"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/inaturalist"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/lexicon"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/n8n"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/openmeteo"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/replicate"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/sheets"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/storage/postgres"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/storage/supabase"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/whisper"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/xenocanto"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

// Telemetry provides the OpenTelemetry providers used by upstream clients.
type Telemetry interface {
	MeterProvider() metric.MeterProvider
	TracerProvider() trace.TracerProvider
}

// Services holds every repository, client and domain service of the
// application. Optional services are nil when their credentials are
// missing.
type Services struct {
	APIKeys *postgres.APIKeyRepository

	Marches      *marche.Service
	Explorations *exploration.Service
	Snapshots    *snapshot.Service
	CRM          *crm.Service
	Calendar     *calendar.Service
	Translator   *species.Translator

	Editorial *editorial.Service // optional
	Uploader  *media.Uploader    // optional
	Sheets    *sheets.Migrator   // optional

	Cadastre   *cadastre.Client
	Lexicon    *lexicon.Client
	Recordings *xenocanto.Client
	Speech     *elevenlabs.Client
	Visuals    *replicate.Client
	Whisper    *whisper.Client
	N8N        *n8n.Client

	// Disabled maps optional features turned off at startup to the reason.
	Disabled map[string]string
}

func (s *Services) disable(lg *zap.Logger, feature, reason string) {
	lg.Warn("Feature disabled", zap.String("feature", feature), zap.String("reason", reason))
	s.Disabled[feature] = reason
}

// missingCredentials lists the optional upstream features cfg leaves
// without credentials. Their routes answer 503.
func missingCredentials(cfg *Config) map[string]string {
	out := map[string]string{}
	for feature, key := range map[string]string{
		"elevenlabs": cfg.ElevenLabs.APIKey,
		"replicate":  cfg.Replicate.APIToken,
		"whisper":    cfg.OpenAI.APIKey,
		"xeno-canto": cfg.XenoCanto.APIKey,
	} {
		if key == "" {
			out[feature] = "missing api key"
		}
	}
	if cfg.N8N.CalendarWebhookURL == "" {
		out["n8n_calendar"] = "missing calendar webhook url"
	}
	if cfg.N8N.ChatWebhookURL == "" {
		out["n8n_chat"] = "missing chat webhook url"
	}
	return out
}

// NewServices wires the application on top of pool.
func NewServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, tel Telemetry) (*Services, error) {
	lg := zctx.From(ctx)

	hc := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(tel.TracerProvider()),
			otelhttp.WithMeterProvider(tel.MeterProvider()),
		),
	}
	client := func(service string) *upstream.Client {
		return upstream.New(upstream.Config{
			Service:        service,
			HTTPClient:     hc,
			Timeout:        cfg.Upstream.Timeout,
			UserAgent:      cfg.Upstream.UserAgent,
			MeterProvider:  tel.MeterProvider(),
			TracerProvider: tel.TracerProvider(),
		})
	}

	// Repositories.
	marcheRepo := postgres.NewMarcheRepository(pool)
	explorationRepo := postgres.NewExplorationRepository(pool)
	snapshotRepo := postgres.NewSnapshotRepository(pool)
	crmRepo := postgres.NewOpportunityRepository(pool)
	speciesRepo := postgres.NewSpeciesRepository(pool)
	calendarRepo := postgres.NewCalendarRepository(pool)

	s := &Services{
		APIKeys:    postgres.NewAPIKeyRepository(pool),
		Cadastre:   cadastre.New(client("cadastre"), cadastre.Config{CacheTTL: cfg.Upstream.CacheTTL}),
		Lexicon:    lexicon.New(client("lexicon"), ""),
		Recordings: xenocanto.New(client("xeno-canto"), "", cfg.XenoCanto.APIKey, cfg.Upstream.CacheTTL),
		Speech: elevenlabs.New(client("elevenlabs"), elevenlabs.Config{
			APIKey:  cfg.ElevenLabs.APIKey,
			VoiceID: cfg.ElevenLabs.VoiceID,
			ModelID: cfg.ElevenLabs.ModelID,
		}),
		Visuals: replicate.New(client("replicate"), replicate.Config{
			APIToken: cfg.Replicate.APIToken,
			Model:    cfg.Replicate.Model,
		}),
		Whisper: whisper.New(client("openai"), "", cfg.OpenAI.APIKey),
		N8N: n8n.New(client("n8n"), n8n.Config{
			CalendarWebhookURL: cfg.N8N.CalendarWebhookURL,
			ChatWebhookURL:     cfg.N8N.ChatWebhookURL,
		}),
		Disabled: map[string]string{},
	}
	for feature, reason := range missingCredentials(cfg) {
		s.disable(lg, feature, reason)
	}

	// Domain services.
	s.Marches = marche.NewService(marcheRepo)
	s.Explorations = exploration.NewService(explorationRepo, marcheRepo)
	s.Snapshots = snapshot.NewService(snapshotRepo, s.Marches,
		inaturalist.New(client("inaturalist"), "", cfg.Upstream.CacheTTL),
		openmeteo.New(client("open-meteo"), ""),
	)
	s.CRM = crm.NewService(crmRepo)
	s.Calendar = calendar.NewService(calendarRepo, s.N8N)

	model, err := gemini.New(ctx, gemini.Config{
		APIKey:     cfg.Gemini.APIKey,
		Model:      cfg.Gemini.Model,
		HTTPClient: hc,
	})
	switch {
	case errors.Is(err, gemini.ErrMissingKey):
		s.disable(lg, "gemini", "missing api key")
		s.Translator = species.NewTranslator(speciesRepo, nil, 0)
	case err != nil:
		return nil, errors.Wrap(err, "create gemini client")
	default:
		s.Translator = species.NewTranslator(speciesRepo, model, 0)
		s.Editorial = editorial.NewService(model, s.Marches)
	}

	if cfg.Storage.SupabaseURL != "" && cfg.Storage.ServiceKey != "" {
		store, err := supabase.New(cfg.Storage.SupabaseURL, cfg.Storage.ServiceKey)
		if err != nil {
			return nil, errors.Wrap(err, "create storage client")
		}
		s.Uploader = media.NewUploader(store, cfg.Storage.Prefix, 0)
	} else {
		s.disable(lg, "storage", "missing supabase url or service key")
	}

	source, err := sheets.NewSource(ctx, sheets.Config{
		APIKey:        cfg.Sheets.APIKey,
		SpreadsheetID: cfg.Sheets.SpreadsheetID,
		Range:         cfg.Sheets.Range,
	})
	switch {
	case errors.Is(err, sheets.ErrNotConfigured):
		s.disable(lg, "sheets", "missing api key or spreadsheet id")
	case err != nil:
		return nil, errors.Wrap(err, "create sheets source")
	default:
		s.Sheets = sheets.NewMigrator(source, s.Marches)
	}

	return s, nil
}

// Deps returns the handler dependencies. Nil optional services stay nil
// interfaces so their routes answer 503.
func (s *Services) Deps(cfg *Config) handler.Deps {
	deps := handler.Deps{
		Marches:      s.Marches,
		Explorations: s.Explorations,
		Snapshots:    s.Snapshots,
		CRM:          s.CRM,
		Calendar:     s.Calendar,
		Translator:   s.Translator,
		Cadastre:     s.Cadastre,
		Lexicon:      s.Lexicon,
		Recordings:   s.Recordings,
		Speech:       s.Speech,
		Visuals:      s.Visuals,
		Transcriber:  s.Whisper,
		Chat:         s.N8N,
		AudioBucket:  cfg.Storage.AudioBucket,
	}
	if s.Editorial != nil {
		deps.Editorial = s.Editorial
	}
	if s.Uploader != nil {
		deps.Uploader = s.Uploader
	}
	if s.Sheets != nil {
		deps.Sheets = s.Sheets
	}
	return deps
}
