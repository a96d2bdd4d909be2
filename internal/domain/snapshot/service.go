package snapshot

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
)

const (
	// DefaultRadiusKM is the search radius around a marche.
	DefaultRadiusKM = 5.0
	// WeatherWindowDays is the number of days of weather captured.
	WeatherWindowDays = 30
)

// MarcheResolver loads a marche by id or slug.
type MarcheResolver interface {
	Resolve(ctx context.Context, idOrSlug string) (*marche.Marche, error)
}

// Service captures and serves snapshots.
type Service struct {
	repo     Repository
	marches  MarcheResolver
	biodiv   BiodiversitySource
	weather  WeatherSource
	radiusKM float64
	now      func() time.Time
}

// NewService creates a snapshot Service.
func NewService(repo Repository, marches MarcheResolver, biodiv BiodiversitySource, weather WeatherSource) *Service {
	return &Service{
		repo:     repo,
		marches:  marches,
		biodiv:   biodiv,
		weather:  weather,
		radiusKM: DefaultRadiusKM,
		now:      time.Now,
	}
}

// Snapshots is the latest captures of a marche. Either may be nil.
type Snapshots struct {
	Biodiversity *BiodiversitySnapshot
	Weather      *WeatherSnapshot
}

// WeatherWindow returns the inclusive date range captured for a marche
// dated at: the WeatherWindowDays days ending on the marche date, clamped
// to yesterday. A nil date means today.
func WeatherWindow(at *time.Time, now time.Time) (start, end time.Time) {
	yesterday := truncateDay(now).AddDate(0, 0, -1)
	end = yesterday
	if at != nil {
		if d := truncateDay(*at); d.Before(yesterday) {
			end = d
		}
	}
	return end.AddDate(0, 0, -(WeatherWindowDays - 1)), end
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Refresh fetches biodiversity and weather for a marche concurrently and
// stores both. Nothing is stored when either source fails.
func (s *Service) Refresh(ctx context.Context, idOrSlug string) (*Snapshots, error) {
	m, err := s.marches.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if !m.HasCoordinates() {
		return nil, ErrNoCoordinates
	}
	lat, lng := *m.Latitude, *m.Longitude
	now := s.now()
	start, end := WeatherWindow(m.Date, now)

	var (
		species []Species
		days    []Day
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if species, err = s.biodiv.Species(gctx, lat, lng, s.radiusKM); err != nil {
			return errors.Wrap(err, "fetch biodiversity")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if days, err = s.weather.Daily(gctx, lat, lng, start, end); err != nil {
			return errors.Wrap(err, "fetch weather")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bio := &BiodiversitySnapshot{
		ID:         uuid.NewString(),
		MarcheID:   m.ID,
		Latitude:   lat,
		Longitude:  lng,
		RadiusKM:   s.radiusKM,
		Species:    species,
		CapturedAt: now,
	}
	bio.Tally()

	weather := &WeatherSnapshot{
		ID:         uuid.NewString(),
		MarcheID:   m.ID,
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		CapturedAt: now,
	}

	out := &Snapshots{Biodiversity: bio, Weather: weather}
	if err := s.repo.Save(ctx, out); err != nil {
		return nil, errors.Wrap(err, "save snapshots")
	}
	return out, nil
}

// Latest returns the most recent snapshots of a marche.
func (s *Service) Latest(ctx context.Context, idOrSlug string) (*Snapshots, error) {
	m, err := s.marches.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	var out Snapshots
	out.Biodiversity, err = s.repo.LatestBiodiversity(ctx, m.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "latest biodiversity")
	}
	out.Weather, err = s.repo.LatestWeather(ctx, m.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "latest weather")
	}
	if out.Biodiversity == nil && out.Weather == nil {
		return nil, ErrNotFound
	}
	return &out, nil
}

// Story extracts the weather story of the latest weather snapshot.
func (s *Service) Story(ctx context.Context, idOrSlug string) ([]Event, error) {
	m, err := s.marches.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	w, err := s.repo.LatestWeather(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return ExtractStory(w.Days), nil
}
