// Package handler exposes the domain services over HTTP with echo.
package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/cadastre"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/auth"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/calendar"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/crm"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/editorial"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/exploration"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/snapshot"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/species"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/elevenlabs"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/lexicon"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/n8n"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/replicate"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/sheets"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/xenocanto"
)

// Marches serves marche reads and admin writes.
type Marches interface {
	List(ctx context.Context, f marche.Filter) ([]marche.Marche, error)
	Get(ctx context.Context, idOrSlug string) (*marche.Detail, error)
	Create(ctx context.Context, in marche.Input) (*marche.Marche, error)
	Update(ctx context.Context, idOrSlug string, in marche.Input) (*marche.Marche, error)
	AddTexte(ctx context.Context, idOrSlug string, t marche.Texte) (*marche.Texte, error)
	AddAudio(ctx context.Context, idOrSlug string, a marche.Audio) (*marche.Audio, error)
}

// Explorations serves curated narratives.
type Explorations interface {
	List(ctx context.Context, publishedOnly bool) ([]exploration.Exploration, error)
	Get(ctx context.Context, slug string) (*exploration.Exploration, error)
	Marches(ctx context.Context, slug string) (*exploration.Exploration, []marche.Marche, error)
	Welcome(ctx context.Context, slug string, at time.Time) (*exploration.Composition, error)
	ExportEPUB(ctx context.Context, slug string) ([]byte, error)
}

// Snapshots serves biodiversity and weather captures.
type Snapshots interface {
	Refresh(ctx context.Context, idOrSlug string) (*snapshot.Snapshots, error)
	Latest(ctx context.Context, idOrSlug string) (*snapshot.Snapshots, error)
	Story(ctx context.Context, idOrSlug string) ([]snapshot.Event, error)
}

// CRM serves opportunities.
type CRM interface {
	Create(ctx context.Context, in crm.Input) (*crm.Opportunity, error)
	Get(ctx context.Context, id string) (*crm.Opportunity, error)
	List(ctx context.Context, stage crm.Stage) ([]crm.Opportunity, error)
	Update(ctx context.Context, id string, in crm.Input, expectedVersion int) (*crm.Opportunity, error)
	MoveStage(ctx context.Context, id string, to crm.Stage, expectedVersion int) (*crm.Opportunity, error)
	Pipeline(ctx context.Context) ([]crm.StageTotal, error)
}

// Translator resolves vernacular species names.
type Translator interface {
	Translate(ctx context.Context, names []string, lang string) ([]species.Translation, error)
}

// Calendar syncs and lists events.
type Calendar interface {
	Sync(ctx context.Context) (*calendar.SyncResult, error)
	Upcoming(ctx context.Context, from time.Time, limit int) ([]calendar.Event, error)
}

// Editorial generates summaries and keywords.
type Editorial interface {
	Summarize(ctx context.Context, idOrSlug string) (*editorial.Summary, error)
	SuggestKeywords(ctx context.Context, text string, limit int) ([]string, error)
}

// Uploader stores media and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, name, contentType string, data []byte) (string, error)
}

// Cadastre looks parcels up.
type Cadastre interface {
	Lookup(ctx context.Context, q cadastre.Query) (*cadastre.Parcel, error)
}

// Lexicon identifies agricultural parcels at a point.
type Lexicon interface {
	Parcels(ctx context.Context, lat, lng float64) ([]lexicon.Parcel, error)
}

// Recordings searches bird sound recordings.
type Recordings interface {
	Search(ctx context.Context, species string, limit int) (*xenocanto.Result, error)
}

// Speech synthesizes text to audio.
type Speech interface {
	Synthesize(ctx context.Context, text, voiceID string) (*elevenlabs.Speech, error)
}

// Visuals generates images from a prompt.
type Visuals interface {
	Generate(ctx context.Context, prompt, aspectRatio string) (*replicate.Visual, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// Chat forwards Dordonia conversations.
type Chat interface {
	Chat(ctx context.Context, req n8n.ChatRequest) (string, error)
}

// SheetsMigrator imports the marche spreadsheet.
type SheetsMigrator interface {
	Migrate(ctx context.Context) (*sheets.Report, error)
}

// Deps holds the services behind the routes. Nil optional services make
// their routes answer 503.
type Deps struct {
	Marches      Marches
	Explorations Explorations
	Snapshots    Snapshots
	CRM          CRM
	Calendar     Calendar
	Translator   Translator
	Editorial    Editorial
	Uploader     Uploader
	Cadastre     Cadastre
	Lexicon      Lexicon
	Recordings   Recordings
	Speech       Speech
	Visuals      Visuals
	Transcriber  Transcriber
	Chat         Chat
	Sheets       SheetsMigrator

	// AudioBucket receives synthesized speech attached to marches.
	AudioBucket string
}

// Handler implements the HTTP routes.
type Handler struct {
	Deps
	auth *Authenticator
	now  func() time.Time
}

// New creates a Handler. Admin routes authenticate keys from apikeys with
// pepper.
func New(deps Deps, apikeys auth.Repository, pepper []byte) *Handler {
	return &Handler{
		Deps: deps,
		auth: NewAuthenticator(apikeys, pepper),
		now:  time.Now,
	}
}

// VerifyKey reports whether raw is an active API key.
func (h *Handler) VerifyKey(ctx context.Context, raw string) bool {
	return h.auth.VerifyKey(ctx, raw)
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler

	api := e.Group("/api")
	api.GET("/marches", h.listMarches)
	api.GET("/marches/:id", h.getMarche)
	api.GET("/marches/:id/snapshots", h.latestSnapshots)
	api.GET("/marches/:id/weather-story", h.weatherStory)
	api.GET("/explorations", h.listExplorations)
	api.GET("/explorations/:slug", h.getExploration)
	api.GET("/explorations/:slug/marches", h.explorationMarches)
	api.GET("/explorations/:slug/welcome", h.welcome)
	api.GET("/explorations/:slug/epub", h.exportEPUB)
	api.GET("/calendar/events", h.upcomingEvents)

	fn := api.Group("/functions")
	fn.GET("/test-function", h.testFunction)
	fn.GET("/cadastre-proxy", h.cadastreProxy)
	fn.GET("/lexicon-proxy", h.lexiconProxy)
	fn.GET("/xeno-canto", h.xenoCanto)
	fn.POST("/translate-species", h.translateSpecies)
	fn.POST("/eleven-tts", h.elevenTTS)
	fn.POST("/generate-story-visuals", h.storyVisuals)
	fn.POST("/realtime-transcription-http", h.transcribe)
	fn.POST("/marche-editorial-summary", h.editorialSummary)
	fn.POST("/suggest-keywords", h.suggestKeywords)
	fn.POST("/dordonia-chat", h.dordoniaChat)
	fn.POST("/gaspard-calendar-sync", h.calendarSync, h.auth.Require(auth.ScopeOps))
	fn.POST("/migrate-google-sheets", h.migrateSheets, h.auth.Require(auth.ScopeOps))

	admin := api.Group("/admin")
	cms := admin.Group("", h.auth.Require(auth.ScopeCMS))
	cms.POST("/marches", h.createMarche)
	cms.PATCH("/marches/:id", h.updateMarche)
	cms.POST("/marches/:id/textes", h.addTexte)
	cms.POST("/marches/:id/snapshots", h.refreshSnapshots)

	sales := admin.Group("/crm", h.auth.Require(auth.ScopeCRM))
	sales.GET("/opportunities", h.listOpportunities)
	sales.POST("/opportunities", h.createOpportunity)
	sales.GET("/opportunities/:id", h.getOpportunity)
	sales.PATCH("/opportunities/:id", h.updateOpportunity)
	sales.POST("/opportunities/:id/stage", h.moveStage)
	sales.GET("/pipeline", h.pipeline)
}
