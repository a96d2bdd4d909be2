package handler

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/cadastre"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/auth"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/calendar"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/species"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/lexicon"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/n8n"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/whisper"
)

// maxTitleRunes bounds the title derived from synthesized text.
const maxTitleRunes = 80

func required(field string) error {
	return echo.NewHTTPError(http.StatusBadRequest, field+" is required")
}

func (h *Handler) testFunction(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"ok":   true,
		"time": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) cadastreProxy(c echo.Context) error {
	if h.Cadastre == nil {
		return ErrNotConfigured
	}
	p, err := h.Cadastre.Lookup(c.Request().Context(), cadastre.Query{
		INSEE:   c.QueryParam("insee"),
		Section: c.QueryParam("section"),
		Numero:  c.QueryParam("numero"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// LexiconResponse lists the parcels at a point.
type LexiconResponse struct {
	Parcels []lexicon.Parcel `json:"parcels"`
}

func (h *Handler) lexiconProxy(c echo.Context) error {
	if h.Lexicon == nil {
		return ErrNotConfigured
	}
	var lat, lng float64
	err := echo.QueryParamsBinder(c).
		MustFloat64("lat", &lat).
		MustFloat64("lng", &lng).
		BindError()
	if err != nil {
		return err
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return echo.NewHTTPError(http.StatusBadRequest, "coordinates out of range")
	}

	parcels, err := h.Lexicon.Parcels(c.Request().Context(), lat, lng)
	if err != nil {
		return err
	}
	if parcels == nil {
		parcels = []lexicon.Parcel{}
	}
	return c.JSON(http.StatusOK, LexiconResponse{Parcels: parcels})
}

func (h *Handler) xenoCanto(c echo.Context) error {
	if h.Recordings == nil {
		return ErrNotConfigured
	}
	var (
		name  string
		limit int
	)
	err := echo.QueryParamsBinder(c).
		String("species", &name).
		Int("limit", &limit).
		BindError()
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return required("species")
	}

	res, err := h.Recordings.Search(c.Request().Context(), name, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// TranslateRequest is the body of translate-species.
type TranslateRequest struct {
	Names []string `json:"names"`
	Lang  string   `json:"lang"`
}

// TranslateResponse lists one translation per requested name.
type TranslateResponse struct {
	Translations []species.Translation `json:"translations"`
}

func (h *Handler) translateSpecies(c echo.Context) error {
	if h.Translator == nil {
		return ErrNotConfigured
	}
	var req TranslateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	out, err := h.Translator.Translate(c.Request().Context(), req.Names, req.Lang)
	if err != nil {
		return err
	}
	if out == nil {
		out = []species.Translation{}
	}
	return c.JSON(http.StatusOK, TranslateResponse{Translations: out})
}

// SpeechRequest is the body of eleven-tts.
type SpeechRequest struct {
	Text     string `json:"text"`
	VoiceID  string `json:"voice_id"`
	MarcheID string `json:"marche_id"`
}

// SpeechResponse carries synthesized audio. AudioURL is set when the audio
// was attached to a marche.
type SpeechResponse struct {
	AudioBase64 string `json:"audio_base64"`
	ContentType string `json:"content_type"`
	AudioURL    string `json:"audio_url,omitempty"`
}

func (h *Handler) elevenTTS(c echo.Context) error {
	if h.Speech == nil {
		return ErrNotConfigured
	}
	var req SpeechRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	// Attaching audio writes CMS content; the marche is resolved before
	// anything is synthesized or uploaded.
	var target *marche.Marche
	if req.MarcheID != "" {
		info, err := h.auth.Authenticate(ctx, c.Request().Header.Get(APIKeyHeader))
		if err != nil {
			return err
		}
		if !info.HasScope(auth.ScopeCMS) {
			return errForbidden
		}
		if h.Marches == nil || h.Uploader == nil {
			return ErrNotConfigured
		}
		d, err := h.Marches.Get(ctx, req.MarcheID)
		if err != nil {
			return err
		}
		target = &d.Marche
	}

	speech, err := h.Speech.Synthesize(ctx, req.Text, req.VoiceID)
	if err != nil {
		return err
	}
	out := SpeechResponse{
		AudioBase64: base64.StdEncoding.EncodeToString(speech.Audio),
		ContentType: speech.ContentType,
	}
	if target == nil {
		return c.JSON(http.StatusOK, out)
	}

	url, err := h.Uploader.Upload(ctx, h.AudioBucket, "tts.mp3", speech.ContentType, speech.Audio)
	if err != nil {
		return errors.Wrap(err, "upload speech")
	}
	if _, err := h.Marches.AddAudio(ctx, target.ID, marche.Audio{
		URL:   url,
		Titre: titleOf(req.Text),
	}); err != nil {
		return errors.Wrap(err, "attach speech")
	}
	zctx.From(ctx).Info("Speech attached",
		zap.String("marche", target.ID),
		zap.String("url", url),
	)
	out.AudioURL = url
	return c.JSON(http.StatusOK, out)
}

func titleOf(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxTitleRunes {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:maxTitleRunes])) + "…"
}

// VisualsRequest is the body of generate-story-visuals.
type VisualsRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

func (h *Handler) storyVisuals(c echo.Context) error {
	if h.Visuals == nil {
		return ErrNotConfigured
	}
	var req VisualsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return required("prompt")
	}

	v, err := h.Visuals.Generate(c.Request().Context(), req.Prompt, req.AspectRatio)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// TranscriptionResponse is the text heard in an audio upload.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

func (h *Handler) transcribe(c echo.Context) error {
	if h.Transcriber == nil {
		return ErrNotConfigured
	}
	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, whisper.MaxAudioSize+1<<20)

	fh, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return whisper.ErrAudioTooLarge
		}
		return required("audio")
	}
	if fh.Size > whisper.MaxAudioSize {
		return whisper.ErrAudioTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "open audio")
	}
	defer func() { _ = f.Close() }()
	audio, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "read audio")
	}

	text, err := h.Transcriber.Transcribe(r.Context(), fh.Filename, audio)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TranscriptionResponse{Text: text})
}

// SummaryRequest is the body of marche-editorial-summary.
type SummaryRequest struct {
	MarcheID string `json:"marche_id"`
}

func (h *Handler) editorialSummary(c echo.Context) error {
	if h.Editorial == nil {
		return ErrNotConfigured
	}
	var req SummaryRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.MarcheID == "" {
		return required("marche_id")
	}

	s, err := h.Editorial.Summarize(c.Request().Context(), req.MarcheID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

// KeywordsRequest is the body of suggest-keywords.
type KeywordsRequest struct {
	Text string `json:"text"`
	Max  int    `json:"max"`
}

// KeywordsResponse lists suggested keywords.
type KeywordsResponse struct {
	Keywords []string `json:"keywords"`
}

func (h *Handler) suggestKeywords(c echo.Context) error {
	if h.Editorial == nil {
		return ErrNotConfigured
	}
	var req KeywordsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	kw, err := h.Editorial.SuggestKeywords(c.Request().Context(), req.Text, req.Max)
	if err != nil {
		return err
	}
	if kw == nil {
		kw = []string{}
	}
	return c.JSON(http.StatusOK, KeywordsResponse{Keywords: kw})
}

// ChatRequest is the body of dordonia-chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Persona   string `json:"persona"`
}

// ChatResponse is the reply of the conversational agent.
type ChatResponse struct {
	Reply string `json:"reply"`
}

func (h *Handler) dordoniaChat(c echo.Context) error {
	if h.Chat == nil {
		return ErrNotConfigured
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Message) == "" {
		return required("message")
	}

	reply, err := h.Chat.Chat(c.Request().Context(), n8n.ChatRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		Persona:   req.Persona,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ChatResponse{Reply: reply})
}

func (h *Handler) calendarSync(c echo.Context) error {
	if h.Calendar == nil {
		return ErrNotConfigured
	}
	res, err := h.Calendar.Sync(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) upcomingEvents(c echo.Context) error {
	if h.Calendar == nil {
		return ErrNotConfigured
	}
	var (
		from  = h.now()
		limit int
	)
	err := echo.QueryParamsBinder(c).
		Time("from", &from, time.RFC3339).
		Int("limit", &limit).
		BindError()
	if err != nil {
		return err
	}

	events, err := h.Calendar.Upcoming(c.Request().Context(), from, limit)
	if err != nil {
		return err
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) migrateSheets(c echo.Context) error {
	if h.Sheets == nil {
		return ErrNotConfigured
	}
	report, err := h.Sheets.Migrate(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
