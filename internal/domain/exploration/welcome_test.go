package exploration

import (
	"testing"
	"time"

	"github.com/sj14/astral/pkg/astral"
	"github.com/stretchr/testify/assert"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
)

func TestMomentOf_SunEvents(t *testing.T) {
	perigueux := &astral.Observer{Latitude: 45.18, Longitude: 0.72}

	tests := []struct {
		name string
		at   time.Time
		want Moment
	}{
		{"before civil dawn", time.Date(2026, 6, 21, 2, 0, 0, 0, time.UTC), MomentNuit},
		{"just after sunrise", time.Date(2026, 6, 21, 4, 45, 0, 0, time.UTC), MomentAube},
		{"midday", time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC), MomentJour},
		{"after sunset minus one hour", time.Date(2026, 6, 21, 19, 30, 0, 0, time.UTC), MomentCrepuscule},
		{"after civil dusk", time.Date(2026, 6, 21, 21, 30, 0, 0, time.UTC), MomentNuit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MomentOf(tt.at, perigueux))
		})
	}
}

func TestMomentOf_HourFallback(t *testing.T) {
	assert.Equal(t, MomentJour, MomentOf(time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC), nil))
	assert.Equal(t, MomentJour, MomentOf(time.Date(2026, 1, 5, 19, 59, 0, 0, time.UTC), nil))
	assert.Equal(t, MomentNuit, MomentOf(time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC), nil))
	assert.Equal(t, MomentNuit, MomentOf(time.Date(2026, 1, 5, 5, 59, 0, 0, time.UTC), nil))
}

func TestSeasonOf(t *testing.T) {
	tests := map[time.Month]Season{
		time.December:  SeasonHiver,
		time.February:  SeasonHiver,
		time.March:     SeasonPrintemps,
		time.May:       SeasonPrintemps,
		time.June:      SeasonEte,
		time.August:    SeasonEte,
		time.September: SeasonAutomne,
		time.November:  SeasonAutomne,
	}
	for month, want := range tests {
		assert.Equal(t, want, SeasonOf(time.Date(2026, month, 10, 0, 0, 0, 0, time.UTC)), month.String())
	}
}

func TestCompose_Featured(t *testing.T) {
	at := time.Date(2026, 1, 5, 22, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		marches []marche.Marche
		photos  map[string]int
		want    string
	}{
		{"empty", nil, nil, ""},
		{
			"no photos picks most recent",
			[]marche.Marche{{ID: "a", Date: date(2024, 1, 1)}, {ID: "b", Date: date(2025, 1, 1)}, {ID: "c"}},
			nil,
			"b",
		},
		{
			"photo wins over recency",
			[]marche.Marche{{ID: "a", Date: date(2024, 1, 1)}, {ID: "b", Date: date(2025, 1, 1)}},
			map[string]int{"a": 3},
			"a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compose(at, tt.marches, tt.photos)
			assert.Equal(t, tt.want, c.FeaturedMarcheID)
			assert.Equal(t, MomentNuit, c.Moment)
			assert.Equal(t, SeasonHiver, c.Season)
			assert.Equal(t, greetings[MomentNuit], c.Greeting)
		})
	}
}
