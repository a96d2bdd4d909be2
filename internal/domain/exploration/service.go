package exploration

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/epub"
)

// MarcheSource provides the marches referenced by explorations.
type MarcheSource interface {
	GetByIDs(ctx context.Context, ids []string) ([]marche.Marche, error)
	CountPhotos(ctx context.Context, marcheIDs []string) (map[string]int, error)
	ListTextes(ctx context.Context, marcheID string) ([]marche.Texte, error)
}

// Service exposes explorations to public and admin callers.
type Service struct {
	repo    Repository
	marches MarcheSource
	now     func() time.Time
}

// NewService creates an exploration Service.
func NewService(repo Repository, marches MarcheSource) *Service {
	return &Service{repo: repo, marches: marches, now: time.Now}
}

// List returns explorations, optionally restricted to published ones.
func (s *Service) List(ctx context.Context, publishedOnly bool) ([]Exploration, error) {
	list, err := s.repo.List(ctx, publishedOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list explorations")
	}
	return list, nil
}

// Get returns a published exploration by slug.
func (s *Service) Get(ctx context.Context, slug string) (*Exploration, error) {
	e, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !e.Published {
		return nil, ErrNotFound
	}
	return e, nil
}

// Marches returns the marches of a published exploration in curated order.
// Marches referenced but missing from storage are skipped.
func (s *Service) Marches(ctx context.Context, slug string) (*Exploration, []marche.Marche, error) {
	e, err := s.Get(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.orderedMarches(ctx, e)
	if err != nil {
		return nil, nil, err
	}
	return e, list, nil
}

func (s *Service) orderedMarches(ctx context.Context, e *Exploration) ([]marche.Marche, error) {
	if len(e.MarcheIDs) == 0 {
		return []marche.Marche{}, nil
	}

	fetched, err := s.marches.GetByIDs(ctx, e.MarcheIDs)
	if err != nil {
		return nil, errors.Wrap(err, "get marches")
	}

	byID := make(map[string]marche.Marche, len(fetched))
	for _, m := range fetched {
		byID[m.ID] = m
	}

	ordered := make([]marche.Marche, 0, len(e.MarcheIDs))
	for _, id := range e.MarcheIDs {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}

// Welcome computes the welcome composition of a published exploration at
// the given instant. A zero at means now.
func (s *Service) Welcome(ctx context.Context, slug string, at time.Time) (*Composition, error) {
	e, list, err := s.Marches(ctx, slug)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.now()
	}

	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.ID
	}
	photos := map[string]int{}
	if len(ids) > 0 {
		photos, err = s.marches.CountPhotos(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "count photos")
		}
	}

	c := Compose(at, list, photos)
	c.ExplorationSlug = e.Slug
	c.Theme = e.Theme
	return &c, nil
}

// Chapter is one marche with its textes, in exploration order.
type Chapter struct {
	Marche marche.Marche
	Textes []marche.Texte
}

// Chapters returns the exploration and one chapter per marche, used by
// the EPUB export.
func (s *Service) Chapters(ctx context.Context, slug string) (*Exploration, []Chapter, error) {
	e, list, err := s.Marches(ctx, slug)
	if err != nil {
		return nil, nil, err
	}

	chapters := make([]Chapter, 0, len(list))
	for _, m := range list {
		textes, err := s.marches.ListTextes(ctx, m.ID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "list textes of %s", m.ID)
		}
		chapters = append(chapters, Chapter{Marche: m, Textes: textes})
	}
	return e, chapters, nil
}

// ExportEPUB renders a published exploration as an EPUB 3 book with one
// chapter per marche.
func (s *Service) ExportEPUB(ctx context.Context, slug string) ([]byte, error) {
	e, chapters, err := s.Chapters(ctx, slug)
	if err != nil {
		return nil, err
	}

	book := epub.Book{
		ID:          e.ID,
		Title:       e.Name,
		Author:      "Gaspard Boréal",
		Language:    "fr",
		Description: e.Description,
		Modified:    s.now(),
	}
	for _, ch := range chapters {
		c := epub.Chapter{Title: ch.Marche.Title()}
		if ch.Marche.Date != nil {
			c.Subtitle = ch.Marche.Ville + ", " + ch.Marche.Date.Format("02/01/2006")
		} else if ch.Marche.NomMarche != "" {
			c.Subtitle = ch.Marche.Ville
		}
		for _, t := range ch.Textes {
			c.Sections = append(c.Sections, epub.Section{Title: t.Titre, HTML: t.Contenu})
		}
		book.Chapters = append(book.Chapters, c)
	}

	data, err := epub.Bytes(book)
	if err != nil {
		return nil, errors.Wrap(err, "build epub")
	}
	return data, nil
}
