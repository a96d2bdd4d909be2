package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/exploration"
)

// ExplorationResponse is the public form of an exploration.
type ExplorationResponse struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Theme       string   `json:"theme"`
	MarcheIDs   []string `json:"marche_ids"`
}

// ExplorationMarchesResponse is an exploration with its ordered marches.
type ExplorationMarchesResponse struct {
	Exploration ExplorationResponse `json:"exploration"`
	Marches     []MarcheResponse    `json:"marches"`
}

// WelcomeResponse stages the welcome screen of an exploration.
type WelcomeResponse struct {
	ExplorationSlug  string   `json:"exploration_slug"`
	Theme            string   `json:"theme"`
	Moment           string   `json:"moment"`
	Season           string   `json:"season"`
	Greeting         string   `json:"greeting"`
	Palette          []string `json:"palette"`
	FeaturedMarcheID string   `json:"featured_marche_id,omitempty"`
}

func toExploration(e exploration.Exploration) ExplorationResponse {
	ids := e.MarcheIDs
	if ids == nil {
		ids = []string{}
	}
	return ExplorationResponse{
		ID:          e.ID,
		Slug:        e.Slug,
		Name:        e.Name,
		Description: e.Description,
		Theme:       string(e.Theme),
		MarcheIDs:   ids,
	}
}

func (h *Handler) listExplorations(c echo.Context) error {
	list, err := h.Explorations.List(c.Request().Context(), true)
	if err != nil {
		return err
	}
	out := make([]ExplorationResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toExploration(e))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) getExploration(c echo.Context) error {
	e, err := h.Explorations.Get(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toExploration(*e))
}

func (h *Handler) explorationMarches(c echo.Context) error {
	e, marches, err := h.Explorations.Marches(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ExplorationMarchesResponse{
		Exploration: toExploration(*e),
		Marches:     toMarches(marches),
	})
}

func (h *Handler) welcome(c echo.Context) error {
	at := h.now()
	if err := echo.QueryParamsBinder(c).Time("at", &at, time.RFC3339).BindError(); err != nil {
		return err
	}

	comp, err := h.Explorations.Welcome(c.Request().Context(), c.Param("slug"), at)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, WelcomeResponse{
		ExplorationSlug:  comp.ExplorationSlug,
		Theme:            string(comp.Theme),
		Moment:           string(comp.Moment),
		Season:           string(comp.Season),
		Greeting:         comp.Greeting,
		Palette:          comp.Palette,
		FeaturedMarcheID: comp.FeaturedMarcheID,
	})
}

func (h *Handler) exportEPUB(c echo.Context) error {
	slug := c.Param("slug")
	book, err := h.Explorations.ExportEPUB(c.Request().Context(), slug)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", slug+".epub"))
	return c.Blob(http.StatusOK, "application/epub+zip", book)
}
