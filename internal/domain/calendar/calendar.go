package calendar

import (
	"context"
	"time"
)

// DefaultSource is the source recorded for events synced from the n8n
// calendar workflow.
const DefaultSource = "gaspard"

// Event is an agenda entry of Gaspard Boréal.
type Event struct {
	ID          string     `json:"id,omitempty"`
	Source      string     `json:"source"`
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
	AllDay      bool       `json:"all_day"`
}

// Repository stores calendar events.
type Repository interface {
	// Upsert inserts or updates events keyed by (source, external id) and
	// returns how many rows were written.
	Upsert(ctx context.Context, events []Event) (int, error)
	Upcoming(ctx context.Context, from time.Time, limit int) ([]Event, error)
}

// Fetcher returns the raw payload of the calendar webhook.
type Fetcher interface {
	FetchCalendar(ctx context.Context) ([]byte, error)
}
