package snapshot

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a marche has no snapshot yet.
var ErrNotFound = errors.New("snapshot not found")

// ErrNoCoordinates is returned when refreshing a marche without coordinates.
var ErrNoCoordinates = errors.New("marche has no coordinates")

// Species groups.
const (
	GroupBirds   = "birds"
	GroupPlants  = "plants"
	GroupFungi   = "fungi"
	GroupInsects = "insects"
	GroupOthers  = "others"
)

// GroupOf maps an iNaturalist iconic taxon name to a species group.
func GroupOf(iconicTaxon string) string {
	switch iconicTaxon {
	case "Aves":
		return GroupBirds
	case "Plantae":
		return GroupPlants
	case "Fungi":
		return GroupFungi
	case "Insecta":
		return GroupInsects
	default:
		return GroupOthers
	}
}

// Species is one taxon observed around a marche.
type Species struct {
	ScientificName string `json:"scientific_name"`
	CommonName     string `json:"common_name,omitempty"`
	Group          string `json:"group"`
	Count          int    `json:"count"`
	PhotoURL       string `json:"photo_url,omitempty"`
}

// BiodiversitySnapshot is a capture of the species observed around a marche.
type BiodiversitySnapshot struct {
	ID           string
	MarcheID     string
	Latitude     float64
	Longitude    float64
	RadiusKM     float64
	TotalSpecies int
	Birds        int
	Plants       int
	Fungi        int
	Insects      int
	Others       int
	Species      []Species
	CapturedAt   time.Time
}

// Tally fills the per-group counters from Species.
func (b *BiodiversitySnapshot) Tally() {
	b.TotalSpecies = len(b.Species)
	b.Birds, b.Plants, b.Fungi, b.Insects, b.Others = 0, 0, 0, 0, 0
	for _, s := range b.Species {
		switch s.Group {
		case GroupBirds:
			b.Birds++
		case GroupPlants:
			b.Plants++
		case GroupFungi:
			b.Fungi++
		case GroupInsects:
			b.Insects++
		default:
			b.Others++
		}
	}
}

// Day is one day of weather. Nil values were not reported.
type Day struct {
	Date          time.Time `json:"date"`
	TempMax       *float64  `json:"temp_max"`
	TempMin       *float64  `json:"temp_min"`
	Precipitation *float64  `json:"precipitation"`
	WindMax       *float64  `json:"wind_max"`
}

// WeatherSnapshot is a daily weather archive for the days before a marche.
type WeatherSnapshot struct {
	ID         string
	MarcheID   string
	StartDate  time.Time
	EndDate    time.Time
	Days       []Day
	CapturedAt time.Time
}

// Repository defines persistence operations for snapshots.
type Repository interface {
	// Save stores both snapshots of a refresh, or neither.
	Save(ctx context.Context, s *Snapshots) error
	LatestBiodiversity(ctx context.Context, marcheID string) (*BiodiversitySnapshot, error)
	LatestWeather(ctx context.Context, marcheID string) (*WeatherSnapshot, error)
}

// BiodiversitySource lists species observed within radiusKM of a point.
type BiodiversitySource interface {
	Species(ctx context.Context, lat, lng, radiusKM float64) ([]Species, error)
}

// WeatherSource returns daily weather between two dates, inclusive.
type WeatherSource interface {
	Daily(ctx context.Context, lat, lng float64, start, end time.Time) ([]Day, error)
}
