package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/snapshot"
)

// BiodiversityResponse is a biodiversity capture.
type BiodiversityResponse struct {
	ID           string             `json:"id"`
	Latitude     float64            `json:"latitude"`
	Longitude    float64            `json:"longitude"`
	RadiusKM     float64            `json:"radius_km"`
	TotalSpecies int                `json:"total_species"`
	Birds        int                `json:"birds"`
	Plants       int                `json:"plants"`
	Fungi        int                `json:"fungi"`
	Insects      int                `json:"insects"`
	Others       int                `json:"others"`
	Species      []snapshot.Species `json:"species"`
	CapturedAt   time.Time          `json:"captured_at"`
}

// WeatherResponse is a daily weather capture.
type WeatherResponse struct {
	ID         string         `json:"id"`
	StartDate  string         `json:"start_date"`
	EndDate    string         `json:"end_date"`
	Days       []snapshot.Day `json:"days"`
	CapturedAt time.Time      `json:"captured_at"`
}

// SnapshotsResponse holds the latest captures of a marche.
type SnapshotsResponse struct {
	Biodiversity *BiodiversityResponse `json:"biodiversity"`
	Weather      *WeatherResponse      `json:"weather"`
}

// StoryResponse is the weather story of a marche.
type StoryResponse struct {
	Events []snapshot.Event `json:"events"`
}

func toSnapshots(s *snapshot.Snapshots) SnapshotsResponse {
	var out SnapshotsResponse
	if b := s.Biodiversity; b != nil {
		out.Biodiversity = &BiodiversityResponse{
			ID:           b.ID,
			Latitude:     b.Latitude,
			Longitude:    b.Longitude,
			RadiusKM:     b.RadiusKM,
			TotalSpecies: b.TotalSpecies,
			Birds:        b.Birds,
			Plants:       b.Plants,
			Fungi:        b.Fungi,
			Insects:      b.Insects,
			Others:       b.Others,
			Species:      b.Species,
			CapturedAt:   b.CapturedAt,
		}
	}
	if w := s.Weather; w != nil {
		out.Weather = &WeatherResponse{
			ID:         w.ID,
			StartDate:  w.StartDate.Format(time.DateOnly),
			EndDate:    w.EndDate.Format(time.DateOnly),
			Days:       w.Days,
			CapturedAt: w.CapturedAt,
		}
	}
	return out
}

func (h *Handler) latestSnapshots(c echo.Context) error {
	s, err := h.Snapshots.Latest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSnapshots(s))
}

func (h *Handler) refreshSnapshots(c echo.Context) error {
	s, err := h.Snapshots.Refresh(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSnapshots(s))
}

func (h *Handler) weatherStory(c echo.Context) error {
	events, err := h.Snapshots.Story(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if events == nil {
		events = []snapshot.Event{}
	}
	return c.JSON(http.StatusOK, StoryResponse{Events: events})
}
