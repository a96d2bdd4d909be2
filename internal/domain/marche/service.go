package marche

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/textnorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxSlugAttempts  = 50
)

// Input holds the writable fields of a marche. Nil pointers leave the
// current value untouched on Update.
type Input struct {
	Ville       *string
	Region      *string
	Departement *string
	NomMarche   *string
	Descriptif  *string
	Date        *time.Time
	Latitude    *float64
	Longitude   *float64
	Tags        []string
}

// Service encapsulates marche business rules on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a marche Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns marches matching f, most recent first. The limit is clamped
// to a sane range.
func (s *Service) List(ctx context.Context, f Filter) ([]Marche, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	marches, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list marches")
	}
	return marches, nil
}

// Resolve finds a marche by UUID or slug.
func (s *Service) Resolve(ctx context.Context, idOrSlug string) (*Marche, error) {
	if _, err := uuid.Parse(idOrSlug); err == nil {
		return s.repo.GetByID(ctx, idOrSlug)
	}
	return s.repo.GetBySlug(ctx, idOrSlug)
}

// Get returns a marche with its textes, photos and audio.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*Detail, error) {
	m, err := s.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	textes, err := s.repo.ListTextes(ctx, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list textes")
	}
	photos, err := s.repo.ListPhotos(ctx, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list photos")
	}
	audios, err := s.repo.ListAudios(ctx, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list audio")
	}

	return &Detail{
		Marche: *m,
		Textes: textes,
		Photos: photos,
		Audios: audios,
	}, nil
}

// Create validates in, assigns an id and a unique slug, and stores the marche.
func (s *Service) Create(ctx context.Context, in Input) (*Marche, error) {
	m := &Marche{}
	apply(m, in)
	if err := validate(m); err != nil {
		return nil, err
	}

	now := s.now()
	m.ID = uuid.New().String()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Tags == nil {
		m.Tags = []string{}
	}

	base := slugBase(m.Ville, m.NomMarche)
	for n := 1; n <= maxSlugAttempts; n++ {
		m.Slug = slugCandidate(base, n)
		exists, err := s.repo.SlugExists(ctx, m.Slug)
		if err != nil {
			return nil, errors.Wrap(err, "check slug")
		}
		if exists {
			continue
		}

		err = s.repo.Create(ctx, m)
		switch {
		case err == nil:
			return m, nil
		case errors.Is(err, ErrSlugTaken):
			// A concurrent create took the slug after the check.
			continue
		default:
			return nil, errors.Wrap(err, "create marche")
		}
	}
	return nil, errors.Wrapf(ErrSlugTaken, "slug %q", base)
}

// Update applies the non-nil fields of in to an existing marche. The slug
// is stable once created.
func (s *Service) Update(ctx context.Context, idOrSlug string, in Input) (*Marche, error) {
	m, err := s.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	apply(m, in)
	if err := validate(m); err != nil {
		return nil, err
	}
	m.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, errors.Wrap(err, "update marche")
	}
	return m, nil
}

// AddTexte attaches a texte to the marche. A zero Ordre appends it after
// the existing textes.
func (s *Service) AddTexte(ctx context.Context, idOrSlug string, t Texte) (*Texte, error) {
	m, err := s.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.Titre) == "" && strings.TrimSpace(t.Contenu) == "" {
		return nil, &ValidationError{Field: "texte", Reason: "titre or contenu required"}
	}

	if t.Ordre == 0 {
		existing, err := s.repo.ListTextes(ctx, m.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list textes")
		}
		t.Ordre = nextOrdre(len(existing), func(i int) int { return existing[i].Ordre })
	}
	if t.TypeTexte == "" {
		t.TypeTexte = "texte"
	}
	t.ID = uuid.New().String()
	t.MarcheID = m.ID

	if err := s.repo.AddTexte(ctx, &t); err != nil {
		return nil, errors.Wrap(err, "add texte")
	}
	return &t, nil
}

// AddAudio attaches an audio recording to the marche, appended last.
func (s *Service) AddAudio(ctx context.Context, idOrSlug string, a Audio) (*Audio, error) {
	m, err := s.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if a.URL == "" {
		return nil, &ValidationError{Field: "url", Reason: "required"}
	}

	existing, err := s.repo.ListAudios(ctx, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list audio")
	}
	a.Ordre = nextOrdre(len(existing), func(i int) int { return existing[i].Ordre })
	a.ID = uuid.New().String()
	a.MarcheID = m.ID

	if err := s.repo.AddAudio(ctx, &a); err != nil {
		return nil, errors.Wrap(err, "add audio")
	}
	return &a, nil
}

// AddPhoto attaches a photo to the marche, appended last.
func (s *Service) AddPhoto(ctx context.Context, idOrSlug string, p Photo) (*Photo, error) {
	m, err := s.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if p.URL == "" {
		return nil, &ValidationError{Field: "url", Reason: "required"}
	}

	existing, err := s.repo.ListPhotos(ctx, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list photos")
	}
	p.Ordre = nextOrdre(len(existing), func(i int) int { return existing[i].Ordre })
	p.ID = uuid.New().String()
	p.MarcheID = m.ID

	if err := s.repo.AddPhoto(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "add photo")
	}
	return &p, nil
}

// ListTextes returns the textes of the marche with id marcheID.
func (s *Service) ListTextes(ctx context.Context, marcheID string) ([]Texte, error) {
	textes, err := s.repo.ListTextes(ctx, marcheID)
	if err != nil {
		return nil, errors.Wrap(err, "list textes")
	}
	return textes, nil
}

// FindBySlug returns the marche stored under the slug derived from ville
// and nom, or ErrNotFound.
func (s *Service) FindBySlug(ctx context.Context, ville, nom string) (*Marche, error) {
	return s.repo.GetBySlug(ctx, textnorm.Slug(ville, nom))
}

func slugBase(ville, nom string) string {
	if base := textnorm.Slug(ville, nom); base != "" {
		return base
	}
	return "marche"
}

// slugCandidate returns base for the first attempt and base-n after.
func slugCandidate(base string, n int) string {
	if n == 1 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}

func nextOrdre(n int, at func(i int) int) int {
	highest := 0
	for i := range n {
		if o := at(i); o > highest {
			highest = o
		}
	}
	return highest + 1
}

func apply(m *Marche, in Input) {
	if in.Ville != nil {
		m.Ville = strings.TrimSpace(*in.Ville)
	}
	if in.Region != nil {
		m.Region = strings.TrimSpace(*in.Region)
	}
	if in.Departement != nil {
		m.Departement = strings.TrimSpace(*in.Departement)
	}
	if in.NomMarche != nil {
		m.NomMarche = strings.TrimSpace(*in.NomMarche)
	}
	if in.Descriptif != nil {
		m.Descriptif = *in.Descriptif
	}
	if in.Date != nil {
		d := *in.Date
		m.Date = &d
	}
	if in.Latitude != nil {
		v := *in.Latitude
		m.Latitude = &v
	}
	if in.Longitude != nil {
		v := *in.Longitude
		m.Longitude = &v
	}
	if in.Tags != nil {
		m.Tags = normalizeTags(in.Tags)
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func validate(m *Marche) error {
	if m.NomMarche == "" && m.Ville == "" {
		return &ValidationError{Field: "nom_marche", Reason: "nom_marche or ville required"}
	}
	if m.Latitude != nil && (*m.Latitude < -90 || *m.Latitude > 90) {
		return &ValidationError{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if m.Longitude != nil && (*m.Longitude < -180 || *m.Longitude > 180) {
		return &ValidationError{Field: "longitude", Reason: "must be between -180 and 180"}
	}
	return nil
}
