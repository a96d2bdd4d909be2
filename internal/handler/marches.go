package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
)

// MarcheResponse is the public form of a marche.
type MarcheResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Ville       string    `json:"ville"`
	Region      string    `json:"region,omitempty"`
	Departement string    `json:"departement,omitempty"`
	NomMarche   string    `json:"nom_marche,omitempty"`
	Descriptif  string    `json:"descriptif,omitempty"`
	Date        string    `json:"date,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TexteResponse is a texte of a marche.
type TexteResponse struct {
	ID        string `json:"id"`
	Titre     string `json:"titre"`
	Contenu   string `json:"contenu"`
	TypeTexte string `json:"type_texte"`
	Ordre     int    `json:"ordre"`
}

// PhotoResponse is a photo of a marche.
type PhotoResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Titre string `json:"titre,omitempty"`
	Ordre int    `json:"ordre"`
}

// AudioResponse is a recording of a marche.
type AudioResponse struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	Titre           string `json:"titre,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Ordre           int    `json:"ordre"`
}

// MarcheDetailResponse is a marche with its media.
type MarcheDetailResponse struct {
	MarcheResponse
	Textes []TexteResponse `json:"textes"`
	Photos []PhotoResponse `json:"photos"`
	Audios []AudioResponse `json:"audios"`
}

// MarcheRequest creates or patches a marche. Absent fields are left
// unchanged on patch.
type MarcheRequest struct {
	Ville       *string  `json:"ville"`
	Region      *string  `json:"region"`
	Departement *string  `json:"departement"`
	NomMarche   *string  `json:"nom_marche"`
	Descriptif  *string  `json:"descriptif"`
	Date        *string  `json:"date"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Tags        []string `json:"tags"`
}

// TexteRequest adds a texte to a marche.
type TexteRequest struct {
	Titre     string `json:"titre"`
	Contenu   string `json:"contenu"`
	TypeTexte string `json:"type_texte"`
	Ordre     int    `json:"ordre"`
}

func toMarche(m marche.Marche) MarcheResponse {
	out := MarcheResponse{
		ID:          m.ID,
		Slug:        m.Slug,
		Ville:       m.Ville,
		Region:      m.Region,
		Departement: m.Departement,
		NomMarche:   m.NomMarche,
		Descriptif:  m.Descriptif,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		Tags:        m.Tags,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Date != nil {
		out.Date = m.Date.Format(time.DateOnly)
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out
}

func toMarches(ms []marche.Marche) []MarcheResponse {
	out := make([]MarcheResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMarche(m))
	}
	return out
}

func toDetail(d *marche.Detail) MarcheDetailResponse {
	out := MarcheDetailResponse{
		MarcheResponse: toMarche(d.Marche),
		Textes:         make([]TexteResponse, 0, len(d.Textes)),
		Photos:         make([]PhotoResponse, 0, len(d.Photos)),
		Audios:         make([]AudioResponse, 0, len(d.Audios)),
	}
	for _, t := range d.Textes {
		out.Textes = append(out.Textes, toTexte(t))
	}
	for _, p := range d.Photos {
		out.Photos = append(out.Photos, PhotoResponse{ID: p.ID, URL: p.URL, Titre: p.Titre, Ordre: p.Ordre})
	}
	for _, a := range d.Audios {
		out.Audios = append(out.Audios, toAudio(a))
	}
	return out
}

func toTexte(t marche.Texte) TexteResponse {
	return TexteResponse{ID: t.ID, Titre: t.Titre, Contenu: t.Contenu, TypeTexte: t.TypeTexte, Ordre: t.Ordre}
}

func toAudio(a marche.Audio) AudioResponse {
	return AudioResponse{ID: a.ID, URL: a.URL, Titre: a.Titre, DurationSeconds: a.DurationSeconds, Ordre: a.Ordre}
}

func (r MarcheRequest) input() (marche.Input, error) {
	in := marche.Input{
		Ville:       r.Ville,
		Region:      r.Region,
		Departement: r.Departement,
		NomMarche:   r.NomMarche,
		Descriptif:  r.Descriptif,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Tags:        r.Tags,
	}
	if r.Date != nil && *r.Date != "" {
		d, err := time.Parse(time.DateOnly, *r.Date)
		if err != nil {
			return in, &marche.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
		}
		in.Date = &d
	}
	return in, nil
}

func (h *Handler) listMarches(c echo.Context) error {
	var f marche.Filter
	err := echo.QueryParamsBinder(c).
		String("region", &f.Region).
		String("tag", &f.Tag).
		Int("limit", &f.Limit).
		Int("offset", &f.Offset).
		BindError()
	if err != nil {
		return err
	}

	marches, err := h.Marches.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMarches(marches))
}

func (h *Handler) getMarche(c echo.Context) error {
	d, err := h.Marches.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDetail(d))
}

func (h *Handler) createMarche(c echo.Context) error {
	var req MarcheRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	in, err := req.input()
	if err != nil {
		return err
	}

	m, err := h.Marches.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toMarche(*m))
}

func (h *Handler) updateMarche(c echo.Context) error {
	var req MarcheRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	in, err := req.input()
	if err != nil {
		return err
	}

	m, err := h.Marches.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMarche(*m))
}

func (h *Handler) addTexte(c echo.Context) error {
	var req TexteRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	t, err := h.Marches.AddTexte(c.Request().Context(), c.Param("id"), marche.Texte{
		Titre:     req.Titre,
		Contenu:   req.Contenu,
		TypeTexte: req.TypeTexte,
		Ordre:     req.Ordre,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toTexte(*t))
}
