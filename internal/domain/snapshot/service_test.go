package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
)

// --- Mock implementations ---

type mockRepo struct {
	bio     []*BiodiversitySnapshot
	weather []*WeatherSnapshot
	saveErr error
}

func (m *mockRepo) Save(_ context.Context, s *Snapshots) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.bio = append(m.bio, s.Biodiversity)
	m.weather = append(m.weather, s.Weather)
	return nil
}

func (m *mockRepo) LatestBiodiversity(_ context.Context, id string) (*BiodiversitySnapshot, error) {
	for i := len(m.bio) - 1; i >= 0; i-- {
		if m.bio[i].MarcheID == id {
			return m.bio[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) LatestWeather(_ context.Context, id string) (*WeatherSnapshot, error) {
	for i := len(m.weather) - 1; i >= 0; i-- {
		if m.weather[i].MarcheID == id {
			return m.weather[i], nil
		}
	}
	return nil, ErrNotFound
}

type mockResolver map[string]marche.Marche

func (m mockResolver) Resolve(_ context.Context, id string) (*marche.Marche, error) {
	v, ok := m[id]
	if !ok {
		return nil, marche.ErrNotFound
	}
	return &v, nil
}

type mockBiodiv struct {
	species []Species
	err     error
}

func (m *mockBiodiv) Species(_ context.Context, _, _, _ float64) ([]Species, error) {
	return m.species, m.err
}

type mockWeather struct {
	days       []Day
	err        error
	start, end time.Time
}

func (m *mockWeather) Daily(_ context.Context, _, _ float64, start, end time.Time) ([]Day, error) {
	m.start, m.end = start, end
	return m.days, m.err
}

func ptr[T any](v T) *T { return &v }

var testNow = time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)

func newTestService(bio *mockBiodiv, w *mockWeather) (*Service, *mockRepo) {
	repo := &mockRepo{}
	marches := mockResolver{
		"m1": {ID: "m1", Ville: "Brantôme", Latitude: ptr(45.36), Longitude: ptr(0.65),
			Date: ptr(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))},
		"m2": {ID: "m2", Ville: "Nulle part"},
	}
	svc := NewService(repo, marches, bio, w)
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

// --- Tests ---

func TestWeatherWindow(t *testing.T) {
	past := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	start, end := WeatherWindow(&past, testNow)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC), start)

	future := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, end = WeatherWindow(&future, testNow)
	assert.Equal(t, time.Date(2026, 5, 19, 0, 0, 0, 0, time.UTC), end)

	_, end = WeatherWindow(nil, testNow)
	assert.Equal(t, time.Date(2026, 5, 19, 0, 0, 0, 0, time.UTC), end)
}

func TestRefresh(t *testing.T) {
	bio := &mockBiodiv{species: []Species{
		{ScientificName: "Erithacus rubecula", Group: GroupBirds, Count: 4},
		{ScientificName: "Quercus robur", Group: GroupPlants, Count: 2},
		{ScientificName: "Amanita muscaria", Group: GroupFungi, Count: 1},
		{ScientificName: "Lucanus cervus", Group: GroupInsects, Count: 1},
		{ScientificName: "Lutra lutra", Group: GroupOthers, Count: 1},
		{ScientificName: "Parus major", Group: GroupBirds, Count: 3},
	}}
	w := &mockWeather{days: []Day{{Date: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), TempMax: ptr(31.0)}}}
	svc, repo := newTestService(bio, w)

	got, err := svc.Refresh(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, 6, got.Biodiversity.TotalSpecies)
	assert.Equal(t, 2, got.Biodiversity.Birds)
	assert.Equal(t, 1, got.Biodiversity.Plants)
	assert.Equal(t, 1, got.Biodiversity.Fungi)
	assert.Equal(t, 1, got.Biodiversity.Insects)
	assert.Equal(t, 1, got.Biodiversity.Others)
	assert.Equal(t, DefaultRadiusKM, got.Biodiversity.RadiusKM)
	assert.Equal(t, testNow, got.Biodiversity.CapturedAt)

	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), w.end)
	assert.Len(t, repo.bio, 1)
	assert.Len(t, repo.weather, 1)
}

func TestRefresh_SourceFailureStoresNothing(t *testing.T) {
	bio := &mockBiodiv{}
	w := &mockWeather{err: errors.New("open-meteo down")}
	svc, repo := newTestService(bio, w)

	_, err := svc.Refresh(context.Background(), "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch weather")
	assert.Empty(t, repo.bio)
	assert.Empty(t, repo.weather)
}

func TestRefresh_SaveFailure(t *testing.T) {
	svc, repo := newTestService(&mockBiodiv{}, &mockWeather{})
	repo.saveErr = errors.New("tx aborted")

	_, err := svc.Refresh(context.Background(), "m1")
	require.ErrorContains(t, err, "save snapshots: tx aborted")
	assert.Empty(t, repo.bio)
}

func TestRefresh_NoCoordinates(t *testing.T) {
	svc, _ := newTestService(&mockBiodiv{}, &mockWeather{})

	_, err := svc.Refresh(context.Background(), "m2")
	require.ErrorIs(t, err, ErrNoCoordinates)

	_, err = svc.Refresh(context.Background(), "absent")
	require.ErrorIs(t, err, marche.ErrNotFound)
}

func TestLatestAndStory(t *testing.T) {
	svc, repo := newTestService(&mockBiodiv{}, &mockWeather{})

	_, err := svc.Latest(context.Background(), "m1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Story(context.Background(), "m1")
	require.ErrorIs(t, err, ErrNotFound)

	repo.weather = append(repo.weather, &WeatherSnapshot{
		MarcheID: "m1",
		Days:     []Day{{Date: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), TempMin: ptr(-2.0)}},
	})

	latest, err := svc.Latest(context.Background(), "m1")
	require.NoError(t, err)
	assert.Nil(t, latest.Biodiversity)
	require.NotNil(t, latest.Weather)

	story, err := svc.Story(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, story, 1)
	assert.Equal(t, EventGel, story[0].Kind)
}

func TestGroupOf(t *testing.T) {
	assert.Equal(t, GroupBirds, GroupOf("Aves"))
	assert.Equal(t, GroupPlants, GroupOf("Plantae"))
	assert.Equal(t, GroupFungi, GroupOf("Fungi"))
	assert.Equal(t, GroupInsects, GroupOf("Insecta"))
	assert.Equal(t, GroupOthers, GroupOf("Mammalia"))
	assert.Equal(t, GroupOthers, GroupOf(""))
}
