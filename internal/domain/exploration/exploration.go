package exploration

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an exploration does not exist or is not
// published on a public route.
var ErrNotFound = errors.New("exploration not found")

// Theme selects the narrative experience used to present an exploration.
type Theme string

const (
	ThemeDefault  Theme = "default"
	ThemeDordonia Theme = "dordonia"
	ThemeChoir    Theme = "choir"
	ThemeCarnets  Theme = "carnets"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	switch t {
	case ThemeDefault, ThemeDordonia, ThemeChoir, ThemeCarnets:
		return true
	default:
		return false
	}
}

// Exploration is a curated, ordered collection of marches.
type Exploration struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Theme       Theme
	Published   bool
	MarcheIDs   []string
}

// Repository defines persistence operations for explorations.
type Repository interface {
	List(ctx context.Context, publishedOnly bool) ([]Exploration, error)
	GetBySlug(ctx context.Context, slug string) (*Exploration, error)
	Upsert(ctx context.Context, e *Exploration) error
}
