package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/auth"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/crm"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/exploration"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/species"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/elevenlabs"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/lexicon"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/whisper"
)

// --- Mock implementations ---

type mockMarches struct {
	list     []marche.Marche
	detail   *marche.Detail
	filter   marche.Filter
	input    marche.Input
	audio    *marche.Audio
	err      error
	audioErr error
}

func (m *mockMarches) List(_ context.Context, f marche.Filter) ([]marche.Marche, error) {
	m.filter = f
	return m.list, m.err
}

func (m *mockMarches) Get(_ context.Context, _ string) (*marche.Detail, error) {
	return m.detail, m.err
}

func (m *mockMarches) Create(_ context.Context, in marche.Input) (*marche.Marche, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &marche.Marche{ID: "m1", Slug: "ville-nom", Ville: *in.Ville}, nil
}

func (m *mockMarches) Update(_ context.Context, id string, in marche.Input) (*marche.Marche, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &marche.Marche{ID: id}, nil
}

func (m *mockMarches) AddTexte(_ context.Context, _ string, t marche.Texte) (*marche.Texte, error) {
	t.ID = "t1"
	return &t, m.err
}

func (m *mockMarches) AddAudio(_ context.Context, id string, a marche.Audio) (*marche.Audio, error) {
	a.MarcheID = id
	m.audio = &a
	return &a, m.audioErr
}

type mockCRM struct {
	opp     *crm.Opportunity
	version int
	stage   crm.Stage
	totals  []crm.StageTotal
	err     error
	listed  crm.Stage
}

func (m *mockCRM) Create(_ context.Context, in crm.Input) (*crm.Opportunity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &crm.Opportunity{ID: "o1", Title: *in.Title, Stage: crm.StageProspect, Version: 1}, nil
}

func (m *mockCRM) Get(_ context.Context, _ string) (*crm.Opportunity, error) {
	return m.opp, m.err
}

func (m *mockCRM) List(_ context.Context, stage crm.Stage) ([]crm.Opportunity, error) {
	m.listed = stage
	if m.opp == nil {
		return nil, m.err
	}
	return []crm.Opportunity{*m.opp}, m.err
}

func (m *mockCRM) Update(_ context.Context, _ string, _ crm.Input, expectedVersion int) (*crm.Opportunity, error) {
	m.version = expectedVersion
	return m.opp, m.err
}

func (m *mockCRM) MoveStage(_ context.Context, _ string, to crm.Stage, expectedVersion int) (*crm.Opportunity, error) {
	m.stage, m.version = to, expectedVersion
	return m.opp, m.err
}

func (m *mockCRM) Pipeline(_ context.Context) ([]crm.StageTotal, error) {
	return m.totals, m.err
}

type mockExplorations struct {
	at   time.Time
	book []byte
	err  error
}

func (m *mockExplorations) List(_ context.Context, _ bool) ([]exploration.Exploration, error) {
	return []exploration.Exploration{{ID: "e1", Slug: "dordogne", Name: "Dordogne", Theme: exploration.ThemeDordonia}}, m.err
}

func (m *mockExplorations) Get(_ context.Context, slug string) (*exploration.Exploration, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &exploration.Exploration{Slug: slug}, nil
}

func (m *mockExplorations) Marches(_ context.Context, slug string) (*exploration.Exploration, []marche.Marche, error) {
	return &exploration.Exploration{Slug: slug}, nil, m.err
}

func (m *mockExplorations) Welcome(_ context.Context, slug string, at time.Time) (*exploration.Composition, error) {
	m.at = at
	return &exploration.Composition{ExplorationSlug: slug, Moment: exploration.MomentJour}, m.err
}

func (m *mockExplorations) ExportEPUB(_ context.Context, _ string) ([]byte, error) {
	return m.book, m.err
}

type mockSpeech struct{}

func (mockSpeech) Synthesize(_ context.Context, text, _ string) (*elevenlabs.Speech, error) {
	if text == "" {
		return nil, &elevenlabs.InvalidTextError{Length: 0}
	}
	return &elevenlabs.Speech{Audio: []byte("mp3"), ContentType: "audio/mpeg"}, nil
}

type mockUploader struct {
	bucket  string
	uploads int
}

func (m *mockUploader) Upload(_ context.Context, bucket, _, _ string, _ []byte) (string, error) {
	m.uploads++
	m.bucket = bucket
	return "https://cdn.test/" + bucket + "/a.mp3", nil
}

type mockTranscriber struct {
	filename string
	size     int
}

func (m *mockTranscriber) Transcribe(_ context.Context, filename string, audio []byte) (string, error) {
	m.filename, m.size = filename, len(audio)
	return "bonjour", nil
}

type mockAPIKeyRepo struct {
	keys  map[string]*auth.APIKeyInfo
	err   error
	calls int
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

func (m *mockAPIKeyRepo) Upsert(_ context.Context, _ auth.APIKeyInfo) error { return nil }

// --- Helpers ---

var testPepper = []byte("pepper")

func newKeys(scopes ...string) *mockAPIKeyRepo {
	hash := auth.HashKeyHex(testPepper, "secret")
	return &mockAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{
		hash: {ID: "k1", KeyHash: hash, Name: "admin", Scopes: scopes, Active: true},
	}}
}

func newServer(deps Deps, keys *mockAPIKeyRepo) *echo.Echo {
	if keys == nil {
		keys = newKeys()
	}
	h := New(deps, keys, testPepper)
	h.now = func() time.Time { return time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC) }
	e := echo.New()
	h.Register(e)
	return e
}

func do(e *echo.Echo, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, target, nil)
	} else {
		b, _ := json.Marshal(body)
		r = httptest.NewRequest(method, target, bytes.NewReader(b))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// --- Tests ---

func TestListMarches(t *testing.T) {
	date := time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC)
	m := &mockMarches{list: []marche.Marche{{ID: "m1", Slug: "bergerac", Ville: "Bergerac", Date: &date}}}
	e := newServer(Deps{Marches: m}, nil)

	w := do(e, http.MethodGet, "/api/marches?region=Nouvelle-Aquitaine&tag=riviere&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decode[[]MarcheResponse](t, w)
	require.Len(t, out, 1)
	assert.Equal(t, "2024-05-12", out[0].Date)
	assert.Equal(t, []string{}, out[0].Tags)
	assert.Equal(t, marche.Filter{Region: "Nouvelle-Aquitaine", Tag: "riviere", Limit: 5}, m.filter)
}

func TestListMarches_BadLimit(t *testing.T) {
	e := newServer(Deps{Marches: &mockMarches{}}, nil)

	w := do(e, http.MethodGet, "/api/marches?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid limit", decode[ErrorResponse](t, w).Message)
}

func TestGetMarche_NotFound(t *testing.T) {
	e := newServer(Deps{Marches: &mockMarches{err: errors.Wrap(marche.ErrNotFound, "get")}}, nil)

	w := do(e, http.MethodGet, "/api/marches/unknown", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrorResponse{Code: 404, Message: "marche not found"}, decode[ErrorResponse](t, w))
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name   string
		keys   *mockAPIKeyRepo
		header []string
		want   int
	}{
		{"missing key", newKeys(auth.ScopeCMS), nil, http.StatusUnauthorized},
		{"unknown key", newKeys(auth.ScopeCMS), []string{APIKeyHeader, "other"}, http.StatusUnauthorized},
		{"wrong scope", newKeys(auth.ScopeCRM), []string{APIKeyHeader, "secret"}, http.StatusForbidden},
		{"granted", newKeys(auth.ScopeCMS), []string{APIKeyHeader, "secret"}, http.StatusCreated},
		{
			"lookup failure",
			&mockAPIKeyRepo{err: errors.New("connection reset")},
			[]string{APIKeyHeader, "secret"},
			http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(Deps{Marches: &mockMarches{}}, tt.keys)
			body := map[string]any{"ville": "Sarlat", "date": "2024-05-12"}

			w := do(e, http.MethodPost, "/api/admin/marches", body, tt.header...)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAdminAuth_InactiveKey(t *testing.T) {
	keys := newKeys(auth.ScopeCMS)
	for _, info := range keys.keys {
		info.Active = false
	}
	e := newServer(Deps{Marches: &mockMarches{}}, keys)

	w := do(e, http.MethodPost, "/api/admin/marches", map[string]any{"ville": "Sarlat"}, APIKeyHeader, "secret")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyKey(t *testing.T) {
	keys := newKeys(auth.ScopeCMS)
	h := New(Deps{}, keys, testPepper)
	ctx := context.Background()

	assert.False(t, h.VerifyKey(ctx, ""))
	assert.False(t, h.VerifyKey(ctx, "forged"))
	assert.True(t, h.VerifyKey(ctx, "secret"))

	calls := keys.calls
	assert.True(t, h.VerifyKey(ctx, "secret"))
	assert.Equal(t, calls, keys.calls, "verified keys are cached")

	failing := New(Deps{}, &mockAPIKeyRepo{err: errors.New("connection reset")}, testPepper)
	assert.False(t, failing.VerifyKey(ctx, "secret"))
}

func TestCreateMarche(t *testing.T) {
	m := &mockMarches{}
	e := newServer(Deps{Marches: m}, newKeys(auth.ScopeCMS))

	t.Run("ok", func(t *testing.T) {
		w := do(e, http.MethodPost, "/api/admin/marches",
			map[string]any{"ville": "Sarlat", "date": "2024-05-12", "tags": []string{"eau"}},
			APIKeyHeader, "secret")
		require.Equal(t, http.StatusCreated, w.Code)
		require.NotNil(t, m.input.Date)
		assert.Equal(t, "2024-05-12", m.input.Date.Format(time.DateOnly))
		assert.Equal(t, []string{"eau"}, m.input.Tags)
	})

	t.Run("bad date", func(t *testing.T) {
		w := do(e, http.MethodPost, "/api/admin/marches",
			map[string]any{"ville": "Sarlat", "date": "12/05/2024"},
			APIKeyHeader, "secret")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[ErrorResponse](t, w).Message, "date")
	})
}

func TestUpdateOpportunity(t *testing.T) {
	opp := &crm.Opportunity{ID: "o1", Title: "Résidence", Amount: decimal.RequireFromString("1500.50"), Stage: crm.StageQualified, Version: 3}

	t.Run("requires version", func(t *testing.T) {
		e := newServer(Deps{CRM: &mockCRM{opp: opp}}, newKeys(auth.ScopeCRM))
		w := do(e, http.MethodPatch, "/api/admin/crm/opportunities/o1", map[string]any{"title": "x"}, APIKeyHeader, "secret")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("conflict", func(t *testing.T) {
		c := &mockCRM{err: crm.ErrVersionConflict}
		e := newServer(Deps{CRM: c}, newKeys(auth.ScopeCRM))
		w := do(e, http.MethodPatch, "/api/admin/crm/opportunities/o1", map[string]any{"title": "x", "version": 2}, APIKeyHeader, "secret")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, 2, c.version)
	})

	t.Run("ok", func(t *testing.T) {
		e := newServer(Deps{CRM: &mockCRM{opp: opp}}, newKeys(auth.ScopeCRM))
		w := do(e, http.MethodPatch, "/api/admin/crm/opportunities/o1", map[string]any{"notes": "rdv", "version": 3}, APIKeyHeader, "secret")
		require.Equal(t, http.StatusOK, w.Code)
		out := decode[OpportunityResponse](t, w)
		assert.Equal(t, 3, out.Version)
		assert.True(t, out.Amount.Equal(decimal.RequireFromString("1500.5")))
	})
}

func TestListOpportunities(t *testing.T) {
	c := &mockCRM{opp: &crm.Opportunity{ID: "o1", Title: "Festival", Stage: crm.StageProposal, Version: 1}}
	e := newServer(Deps{CRM: c}, newKeys(auth.ScopeCRM))

	w := do(e, http.MethodGet, "/api/admin/crm/opportunities?stage=proposal", nil, APIKeyHeader, "secret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, crm.StageProposal, c.listed)
	out := decode[[]OpportunityResponse](t, w)
	require.Len(t, out, 1)
	assert.Equal(t, "Festival", out[0].Title)
}

func TestMoveStage_Invalid(t *testing.T) {
	c := &mockCRM{err: crm.ErrInvalidStage}
	e := newServer(Deps{CRM: c}, newKeys(auth.ScopeCRM))

	w := do(e, http.MethodPost, "/api/admin/crm/opportunities/o1/stage", map[string]any{"stage": "won", "version": 1}, APIKeyHeader, "secret")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, crm.StageWon, c.stage)
}

func TestWelcome(t *testing.T) {
	x := &mockExplorations{}
	e := newServer(Deps{Explorations: x}, nil)

	w := do(e, http.MethodGet, "/api/explorations/dordogne/welcome?at=2025-01-10T07:30:00%2B01:00", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jour", decode[WelcomeResponse](t, w).Moment)
	assert.True(t, x.at.Equal(time.Date(2025, 1, 10, 6, 30, 0, 0, time.UTC)))

	w = do(e, http.MethodGet, "/api/explorations/dordogne/welcome", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, x.at.Equal(time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)))
}

func TestExportEPUB(t *testing.T) {
	e := newServer(Deps{Explorations: &mockExplorations{book: []byte("PK")}}, nil)

	w := do(e, http.MethodGet, "/api/explorations/dordogne/epub", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/epub+zip", w.Header().Get(echo.HeaderContentType))
	assert.Contains(t, w.Header().Get(echo.HeaderContentDisposition), "dordogne.epub")
	assert.Equal(t, "PK", w.Body.String())
}

func TestFunctions_NotConfigured(t *testing.T) {
	e := newServer(Deps{}, nil)

	for _, target := range []string{
		"/api/functions/cadastre-proxy?insee=24520&section=AB&numero=12",
		"/api/functions/lexicon-proxy?lat=45&lng=0.5",
		"/api/functions/xeno-canto?species=Turdus",
	} {
		w := do(e, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
		assert.Equal(t, "service not configured", decode[ErrorResponse](t, w).Message)
	}
}

func TestTestFunction(t *testing.T) {
	e := newServer(Deps{}, nil)

	w := do(e, http.MethodGet, "/api/functions/test-function", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"time":"2025-06-21T12:00:00Z"}`, w.Body.String())
}

func TestElevenTTS(t *testing.T) {
	t.Run("inline audio", func(t *testing.T) {
		e := newServer(Deps{Speech: mockSpeech{}}, nil)
		w := do(e, http.MethodPost, "/api/functions/eleven-tts", map[string]any{"text": "Bonjour"})
		require.Equal(t, http.StatusOK, w.Code)
		out := decode[SpeechResponse](t, w)
		assert.Equal(t, "bXAz", out.AudioBase64)
		assert.Empty(t, out.AudioURL)
	})

	t.Run("attached to marche", func(t *testing.T) {
		body := map[string]any{"text": "Bonjour la rivière", "marche_id": "bergerac"}
		tests := []struct {
			name    string
			keys    *mockAPIKeyRepo
			header  []string
			detail  *marche.Detail
			err     error
			want    int
			uploads int
		}{
			{name: "anonymous", keys: newKeys(auth.ScopeCMS), want: http.StatusUnauthorized},
			{name: "wrong scope", keys: newKeys(auth.ScopeCRM), header: []string{APIKeyHeader, "secret"}, want: http.StatusForbidden},
			{
				name: "unknown marche", keys: newKeys(auth.ScopeCMS), header: []string{APIKeyHeader, "secret"},
				err: marche.ErrNotFound, want: http.StatusNotFound,
			},
			{
				name: "granted", keys: newKeys(auth.ScopeCMS), header: []string{APIKeyHeader, "secret"},
				detail: &marche.Detail{Marche: marche.Marche{ID: "m1", Slug: "bergerac"}}, want: http.StatusOK, uploads: 1,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				m := &mockMarches{detail: tt.detail, err: tt.err}
				up := &mockUploader{}
				e := newServer(Deps{Speech: mockSpeech{}, Marches: m, Uploader: up, AudioBucket: "audio"}, tt.keys)

				w := do(e, http.MethodPost, "/api/functions/eleven-tts", body, tt.header...)
				require.Equal(t, tt.want, w.Code, w.Body.String())
				assert.Equal(t, tt.uploads, up.uploads)
				if tt.want != http.StatusOK {
					assert.Nil(t, m.audio)
					return
				}
				out := decode[SpeechResponse](t, w)
				assert.Equal(t, "https://cdn.test/audio/a.mp3", out.AudioURL)
				require.NotNil(t, m.audio)
				assert.Equal(t, "m1", m.audio.MarcheID)
				assert.Equal(t, "Bonjour la rivière", m.audio.Titre)
				assert.Equal(t, "audio", up.bucket)
			})
		}
	})

	t.Run("empty text", func(t *testing.T) {
		e := newServer(Deps{Speech: mockSpeech{}}, nil)
		w := do(e, http.MethodPost, "/api/functions/eleven-tts", map[string]any{"text": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTranscribe(t *testing.T) {
	tr := &mockTranscriber{}
	e := newServer(Deps{Transcriber: tr}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "note.webm")
	require.NoError(t, err)
	_, err = fw.Write([]byte("webm-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/functions/realtime-transcription-http", &buf)
	r.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"text":"bonjour"}`, w.Body.String())
	assert.Equal(t, "note.webm", tr.filename)
	assert.Equal(t, 10, tr.size)
}

func TestTranscribe_MissingAudio(t *testing.T) {
	e := newServer(Deps{Transcriber: &mockTranscriber{}}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/functions/realtime-transcription-http", strings.NewReader(""))
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", errors.Wrap(exploration.ErrNotFound, "get"), http.StatusNotFound},
		{"validation", &marche.ValidationError{Field: "ville", Reason: "required"}, http.StatusBadRequest},
		{"slug taken", errors.Wrap(marche.ErrSlugTaken, "create marche"), http.StatusConflict},
		{"too large", whisper.ErrAudioTooLarge, http.StatusRequestEntityTooLarge},
		{"not configured", elevenlabs.ErrMissingKey, http.StatusServiceUnavailable},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "poll"), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := StatusOf(tt.err)
			assert.Equal(t, tt.code, code)
		})
	}
}

type mockTranslator struct {
	names []string
	lang  string
}

func (m *mockTranslator) Translate(_ context.Context, names []string, lang string) ([]species.Translation, error) {
	m.names, m.lang = names, lang
	return []species.Translation{{ScientificName: "Alcedo atthis", CommonName: "Martin-pêcheur d'Europe", Source: species.SourceLocal}}, nil
}

func TestTranslateSpecies(t *testing.T) {
	tr := &mockTranslator{}
	e := newServer(Deps{Translator: tr}, nil)

	w := do(e, http.MethodPost, "/api/functions/translate-species",
		map[string]any{"names": []string{"Alcedo atthis"}, "lang": "fr"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"Alcedo atthis"}, tr.names)
	assert.Equal(t, "fr", tr.lang)

	resp := decode[TranslateResponse](t, w)
	require.Len(t, resp.Translations, 1)
	assert.Equal(t, "Martin-pêcheur d'Europe", resp.Translations[0].CommonName)
	assert.Equal(t, species.SourceLocal, resp.Translations[0].Source)
}

type mockLexicon struct{ called bool }

func (m *mockLexicon) Parcels(context.Context, float64, float64) ([]lexicon.Parcel, error) {
	m.called = true
	return nil, nil
}

func TestLexiconProxy(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"ok", "lat=44.85&lng=0.78", http.StatusOK},
		{"missing lng", "lat=44.85", http.StatusBadRequest},
		{"not a number", "lat=north&lng=0.78", http.StatusBadRequest},
		{"lat out of range", "lat=91&lng=0.78", http.StatusBadRequest},
		{"lng out of range", "lat=44.85&lng=-181", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lx := &mockLexicon{}
			e := newServer(Deps{Lexicon: lx}, nil)

			w := do(e, http.MethodGet, "/api/functions/lexicon-proxy?"+tt.query, nil)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Equal(t, tt.code == http.StatusOK, lx.called)
			if tt.code == http.StatusOK {
				assert.Equal(t, `{"parcels":[]}`, strings.TrimSpace(w.Body.String()))
			}
		})
	}
}
