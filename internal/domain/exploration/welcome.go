package exploration

import (
	"time"

	"github.com/sj14/astral/pkg/astral"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
)

// Moment is the part of the day used to stage the welcome screen.
type Moment string

const (
	MomentAube       Moment = "aube"
	MomentJour       Moment = "jour"
	MomentCrepuscule Moment = "crepuscule"
	MomentNuit       Moment = "nuit"
)

// Season of the northern hemisphere.
type Season string

const (
	SeasonHiver     Season = "hiver"
	SeasonPrintemps Season = "printemps"
	SeasonEte       Season = "ete"
	SeasonAutomne   Season = "automne"
)

var greetings = map[Moment]string{
	MomentAube:       "Le jour se lève sur les marches du vivant",
	MomentJour:       "Bienvenue sur les marches du vivant",
	MomentCrepuscule: "La lumière décline, les voix du soir s'élèvent",
	MomentNuit:       "La nuit écoute, entrez doucement",
}

var palettes = map[Season][]string{
	SeasonHiver:     {"#1f2a44", "#8da9c4", "#eef4ed"},
	SeasonPrintemps: {"#2d6a4f", "#95d5b2", "#fefae0"},
	SeasonEte:       {"#bc6c25", "#dda15e", "#fefae0"},
	SeasonAutomne:   {"#6f1d1b", "#bb9457", "#ffe6a7"},
}

// Composition describes how the welcome screen of an exploration is staged.
type Composition struct {
	ExplorationSlug  string
	Theme            Theme
	Moment           Moment
	Season           Season
	Greeting         string
	Palette          []string
	FeaturedMarcheID string
}

// Compose builds a welcome composition. The moment of the day comes from
// the sun events at the first marche having coordinates; the featured
// marche is the most recent one with at least one photo, else the most
// recent one.
func Compose(at time.Time, marches []marche.Marche, photoCounts map[string]int) Composition {
	var observer *astral.Observer
	for _, m := range marches {
		if m.HasCoordinates() {
			observer = &astral.Observer{Latitude: *m.Latitude, Longitude: *m.Longitude}
			break
		}
	}

	season := SeasonOf(at)
	moment := MomentOf(at, observer)

	return Composition{
		Moment:           moment,
		Season:           season,
		Greeting:         greetings[moment],
		Palette:          palettes[season],
		FeaturedMarcheID: featured(marches, photoCounts),
	}
}

// SeasonOf returns the meteorological season of t.
func SeasonOf(t time.Time) Season {
	switch t.Month() {
	case time.December, time.January, time.February:
		return SeasonHiver
	case time.March, time.April, time.May:
		return SeasonPrintemps
	case time.June, time.July, time.August:
		return SeasonEte
	default:
		return SeasonAutomne
	}
}

// MomentOf classifies t using sun events at observer. Without an observer,
// or when the sun never rises or sets that day, fixed hours are used.
func MomentOf(t time.Time, observer *astral.Observer) Moment {
	if observer != nil {
		if m, ok := sunMoment(t, *observer); ok {
			return m
		}
	}
	if h := t.Hour(); h >= 6 && h < 20 {
		return MomentJour
	}
	return MomentNuit
}

func sunMoment(t time.Time, obs astral.Observer) (Moment, bool) {
	day := t.UTC()
	dawn, err := astral.Dawn(obs, day, astral.DepressionCivil)
	if err != nil {
		return "", false
	}
	sunrise, err := astral.Sunrise(obs, day)
	if err != nil {
		return "", false
	}
	sunset, err := astral.Sunset(obs, day)
	if err != nil {
		return "", false
	}
	dusk, err := astral.Dusk(obs, day, astral.DepressionCivil)
	if err != nil {
		return "", false
	}

	switch {
	case t.Before(dawn):
		return MomentNuit, true
	case t.Before(sunrise.Add(time.Hour)):
		return MomentAube, true
	case t.Before(sunset.Add(-time.Hour)):
		return MomentJour, true
	case t.Before(dusk):
		return MomentCrepuscule, true
	default:
		return MomentNuit, true
	}
}

func featured(marches []marche.Marche, photoCounts map[string]int) string {
	var best, bestWithPhoto *marche.Marche
	for i := range marches {
		m := &marches[i]
		if newer(m, best) {
			best = m
		}
		if photoCounts[m.ID] > 0 && newer(m, bestWithPhoto) {
			bestWithPhoto = m
		}
	}
	switch {
	case bestWithPhoto != nil:
		return bestWithPhoto.ID
	case best != nil:
		return best.ID
	default:
		return ""
	}
}

// newer reports whether a is more recent than b. Undated marches are
// older than dated ones; ties keep the first seen.
func newer(a, b *marche.Marche) bool {
	if b == nil {
		return true
	}
	if a.Date == nil {
		return false
	}
	if b.Date == nil {
		return true
	}
	return a.Date.After(*b.Date)
}
