package snapshot

import (
	"math"
	"sort"
	"time"
)

// EventKind names a notable weather event.
type EventKind string

const (
	EventCanicule    EventKind = "canicule"
	EventGel         EventKind = "gel"
	EventFortePluie  EventKind = "forte_pluie"
	EventTempete     EventKind = "tempete"
	EventSecheresse  EventKind = "secheresse"
	EventRecordChaud EventKind = "record_chaud"
	EventRecordFroid EventKind = "record_froid"
)

// Thresholds of the weather story.
const (
	HeatTempMax    = 30.0 // °C
	FrostTempMin   = 0.0  // °C
	HeavyRainMM    = 10.0
	StormWindKMH   = 60.0
	DryDayMM       = 1.0
	DroughtMinDays = 7
	RecordMinDays  = 3
	MaxStoryEvents = 12
)

// Event is one notable moment of a weather story.
type Event struct {
	Date      time.Time `json:"date"`
	Kind      EventKind `json:"kind"`
	Value     float64   `json:"value"`
	Days      int       `json:"days,omitempty"`
	Intensity float64   `json:"intensity"`
}

// ExtractStory turns daily weather into a short list of notable events,
// sorted by date then kind. When more than MaxStoryEvents are found the
// most intense are kept.
func ExtractStory(days []Day) []Event {
	events := []Event{}
	if len(days) == 0 {
		return events
	}

	sorted := make([]Day, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	for _, d := range sorted {
		if v, ok := value(d.TempMax); ok && v >= HeatTempMax {
			events = append(events, Event{Date: d.Date, Kind: EventCanicule, Value: v, Intensity: v / HeatTempMax})
		}
		if v, ok := value(d.TempMin); ok && v <= FrostTempMin {
			events = append(events, Event{Date: d.Date, Kind: EventGel, Value: v, Intensity: 1 + math.Abs(v)/5})
		}
		if v, ok := value(d.Precipitation); ok && v >= HeavyRainMM {
			events = append(events, Event{Date: d.Date, Kind: EventFortePluie, Value: v, Intensity: v / HeavyRainMM})
		}
		if v, ok := value(d.WindMax); ok && v >= StormWindKMH {
			events = append(events, Event{Date: d.Date, Kind: EventTempete, Value: v, Intensity: v / StormWindKMH})
		}
	}

	events = append(events, droughts(sorted)...)
	if len(sorted) >= RecordMinDays {
		events = append(events, records(sorted)...)
	}

	if len(events) > MaxStoryEvents {
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].Intensity != events[j].Intensity {
				return events[i].Intensity > events[j].Intensity
			}
			return less(events[i], events[j])
		})
		events = events[:MaxStoryEvents]
	}

	sort.SliceStable(events, func(i, j int) bool { return less(events[i], events[j]) })
	return events
}

func less(a, b Event) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.Kind < b.Kind
}

func value(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// droughts reports runs of dry days. A day without precipitation data
// ends the run.
func droughts(days []Day) []Event {
	var (
		out   []Event
		start int
		run   int
	)
	flush := func() {
		if run >= DroughtMinDays {
			out = append(out, Event{
				Date:      days[start].Date,
				Kind:      EventSecheresse,
				Value:     float64(run),
				Days:      run,
				Intensity: float64(run) / DroughtMinDays,
			})
		}
		run = 0
	}
	for i, d := range days {
		v, ok := value(d.Precipitation)
		if ok && v < DryDayMM {
			if run == 0 {
				start = i
			}
			run++
			continue
		}
		flush()
	}
	flush()
	return out
}

func records(days []Day) []Event {
	var (
		out         []Event
		hot, cold   *Day
		hotV, coldV float64
	)
	for i := range days {
		d := &days[i]
		if v, ok := value(d.TempMax); ok && (hot == nil || v > hotV) {
			hot, hotV = d, v
		}
		if v, ok := value(d.TempMin); ok && (cold == nil || v < coldV) {
			cold, coldV = d, v
		}
	}
	if hot != nil {
		out = append(out, Event{Date: hot.Date, Kind: EventRecordChaud, Value: hotV, Intensity: 1})
	}
	if cold != nil {
		out = append(out, Event{Date: cold.Date, Kind: EventRecordFroid, Value: coldV, Intensity: 1})
	}
	return out
}
