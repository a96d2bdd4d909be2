package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func day(n int, tmax, tmin, precip, wind float64) Day {
	return Day{
		Date:          time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n),
		TempMax:       f(tmax),
		TempMin:       f(tmin),
		Precipitation: f(precip),
		WindMax:       f(wind),
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestExtractStory_Empty(t *testing.T) {
	got := ExtractStory(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtractStory_Thresholds(t *testing.T) {
	tests := []struct {
		name string
		d    Day
		want []EventKind
	}{
		{"mild", day(0, 25, 12, 2, 20), []EventKind{}},
		{"heat at threshold", day(0, 30, 18, 2, 20), []EventKind{EventCanicule}},
		{"frost at threshold", day(0, 8, 0, 2, 20), []EventKind{EventGel}},
		{"heavy rain", day(0, 20, 10, 10, 20), []EventKind{EventFortePluie}},
		{"storm", day(0, 20, 10, 5, 60), []EventKind{EventTempete}},
		{"storm and rain", day(0, 20, 10, 25, 90), []EventKind{EventFortePluie, EventTempete}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kinds(ExtractStory([]Day{tt.d})))
		})
	}
}

func TestExtractStory_MissingValuesIgnored(t *testing.T) {
	d := Day{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.Empty(t, ExtractStory([]Day{d}))
}

func TestExtractStory_Drought(t *testing.T) {
	var days []Day
	for i := 0; i < 9; i++ {
		days = append(days, day(i, 25, 12, 0, 10))
	}
	days = append(days, day(9, 22, 12, 4, 10))
	for i := 10; i < 16; i++ {
		days = append(days, day(i, 25, 12, 0.5, 10))
	}

	got := ExtractStory(days)

	var drought []Event
	for _, e := range got {
		if e.Kind == EventSecheresse {
			drought = append(drought, e)
		}
	}
	// The second run has only six days.
	require.Len(t, drought, 1)
	assert.Equal(t, 9, drought[0].Days)
	assert.Equal(t, days[0].Date, drought[0].Date)
}

func TestExtractStory_Records(t *testing.T) {
	two := []Day{day(0, 25, 10, 2, 10), day(1, 27, 8, 2, 10)}
	assert.Empty(t, ExtractStory(two))

	three := append(two, day(2, 26, 12, 2, 10))
	got := ExtractStory(three)
	require.Len(t, got, 2)
	assert.Equal(t, EventRecordChaud, got[0].Kind)
	assert.Equal(t, 27.0, got[0].Value)
	assert.Equal(t, EventRecordFroid, got[1].Kind)
	assert.Equal(t, three[1].Date, got[1].Date)
}

func TestExtractStory_SortedByDateThenKind(t *testing.T) {
	days := []Day{day(2, 31, 12, 12, 10), day(0, 20, -1, 2, 10), day(1, 20, 5, 2, 70)}

	got := ExtractStory(days)
	// Record froid falls on day 0, after gel.
	want := []EventKind{EventGel, EventRecordFroid, EventTempete, EventCanicule, EventFortePluie, EventRecordChaud}
	assert.Equal(t, want, kinds(got))
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Date.Before(got[i-1].Date))
	}
}

func TestExtractStory_TruncatesKeepingMostIntense(t *testing.T) {
	var days []Day
	for i := 0; i < 20; i++ {
		days = append(days, day(i, 30+float64(i), 15, 2, 10))
	}

	got := ExtractStory(days)
	require.Len(t, got, MaxStoryEvents)

	// The hottest canicule days survive; records (intensity 1) are dropped.
	for _, e := range got {
		assert.Equal(t, EventCanicule, e.Kind)
		assert.GreaterOrEqual(t, e.Value, 38.0)
	}
	assert.Equal(t, days[8].Date, got[0].Date)
}
