package marche

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested marche does not exist.
var ErrNotFound = errors.New("marche not found")

// ErrSlugTaken is returned by Repository.Create when the slug already exists.
var ErrSlugTaken = errors.New("marche slug already taken")

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Marche is a recorded walk at a given place and date.
type Marche struct {
	ID          string
	Slug        string
	Ville       string
	Region      string
	Departement string
	NomMarche   string
	Descriptif  string
	Date        *time.Time
	Latitude    *float64
	Longitude   *float64
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasCoordinates reports whether both latitude and longitude are set.
func (m *Marche) HasCoordinates() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// Title returns the display title: the marche name, else the town.
func (m *Marche) Title() string {
	if m.NomMarche != "" {
		return m.NomMarche
	}
	return m.Ville
}

// Texte is a piece of writing attached to a marche. Contenu holds HTML.
type Texte struct {
	ID        string
	MarcheID  string
	Titre     string
	Contenu   string
	TypeTexte string
	Ordre     int
}

// Photo is an image attached to a marche.
type Photo struct {
	ID       string
	MarcheID string
	URL      string
	Titre    string
	Ordre    int
}

// Audio is a sound recording attached to a marche.
type Audio struct {
	ID              string
	MarcheID        string
	URL             string
	Titre           string
	DurationSeconds int
	Ordre           int
}

// Detail is a marche with all its media.
type Detail struct {
	Marche Marche
	Textes []Texte
	Photos []Photo
	Audios []Audio
}

// Filter restricts List results.
type Filter struct {
	Region string
	Tag    string
	Limit  int
	Offset int
}

// Repository defines persistence operations for marches and their media.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Marche, error)
	GetByID(ctx context.Context, id string) (*Marche, error)
	GetBySlug(ctx context.Context, slug string) (*Marche, error)
	GetByIDs(ctx context.Context, ids []string) ([]Marche, error)
	Create(ctx context.Context, m *Marche) error
	Update(ctx context.Context, m *Marche) error
	SlugExists(ctx context.Context, slug string) (bool, error)

	ListTextes(ctx context.Context, marcheID string) ([]Texte, error)
	ListPhotos(ctx context.Context, marcheID string) ([]Photo, error)
	ListAudios(ctx context.Context, marcheID string) ([]Audio, error)
	CountPhotos(ctx context.Context, marcheIDs []string) (map[string]int, error)
	AddTexte(ctx context.Context, t *Texte) error
	AddPhoto(ctx context.Context, p *Photo) error
	AddAudio(ctx context.Context, a *Audio) error
}
