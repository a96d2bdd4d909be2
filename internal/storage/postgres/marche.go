package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
)

const marcheColumns = `id::text, slug, ville, region, departement, nom_marche, descriptif,
	date, latitude, longitude, tags, created_at, updated_at`

const (
	listMarchesSQL = `SELECT ` + marcheColumns + ` FROM marches
		WHERE ($1 = '' OR region = $1) AND ($2 = '' OR $2 = ANY(tags))
		ORDER BY date DESC NULLS LAST, created_at DESC
		LIMIT $3 OFFSET $4`

	getMarcheByIDSQL   = `SELECT ` + marcheColumns + ` FROM marches WHERE id::text = $1`
	getMarcheBySlugSQL = `SELECT ` + marcheColumns + ` FROM marches WHERE slug = $1`
	getMarchesByIDsSQL = `SELECT ` + marcheColumns + ` FROM marches WHERE id::text = ANY($1)`
	marcheSlugExists   = `SELECT EXISTS (SELECT 1 FROM marches WHERE slug = $1)`

	createMarcheSQL = `INSERT INTO marches
		(id, slug, ville, region, departement, nom_marche, descriptif, date, latitude, longitude, tags, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	updateMarcheSQL = `UPDATE marches
		SET ville = $2, region = $3, departement = $4, nom_marche = $5, descriptif = $6,
			date = $7, latitude = $8, longitude = $9, tags = $10, updated_at = $11
		WHERE id::text = $1`

	listTextesSQL = `SELECT id::text, marche_id::text, titre, contenu, type_texte, ordre
		FROM marche_textes WHERE marche_id::text = $1 ORDER BY ordre, created_at`
	listPhotosSQL = `SELECT id::text, marche_id::text, url, titre, ordre
		FROM marche_photos WHERE marche_id::text = $1 ORDER BY ordre, created_at`
	listAudiosSQL = `SELECT id::text, marche_id::text, url, titre, duration_seconds, ordre
		FROM marche_audio WHERE marche_id::text = $1 ORDER BY ordre, created_at`

	countPhotosSQL = `SELECT marche_id::text, count(*) FROM marche_photos
		WHERE marche_id::text = ANY($1) GROUP BY marche_id`

	addTexteSQL = `INSERT INTO marche_textes (id, marche_id, titre, contenu, type_texte, ordre)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)`
	addPhotoSQL = `INSERT INTO marche_photos (id, marche_id, url, titre, ordre)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5)`
	addAudioSQL = `INSERT INTO marche_audio (id, marche_id, url, titre, duration_seconds, ordre)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)`
)

var _ marche.Repository = (*MarcheRepository)(nil)

// MarcheRepository implements marche.Repository backed by PostgreSQL.
type MarcheRepository struct {
	pool *pgxpool.Pool
}

// NewMarcheRepository returns a MarcheRepository that uses the given pool.
func NewMarcheRepository(pool *pgxpool.Pool) *MarcheRepository {
	return &MarcheRepository{pool: pool}
}

// List returns marches matching f, most recent first.
func (r *MarcheRepository) List(ctx context.Context, f marche.Filter) ([]marche.Marche, error) {
	rows, err := r.pool.Query(ctx, listMarchesSQL, f.Region, f.Tag, f.Limit, f.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "list marches")
	}
	return pgx.CollectRows(rows, scanMarche)
}

// GetByID returns the marche with the given id.
func (r *MarcheRepository) GetByID(ctx context.Context, id string) (*marche.Marche, error) {
	return r.getOne(ctx, getMarcheByIDSQL, id)
}

// GetBySlug returns the marche with the given slug.
func (r *MarcheRepository) GetBySlug(ctx context.Context, slug string) (*marche.Marche, error) {
	return r.getOne(ctx, getMarcheBySlugSQL, slug)
}

func (r *MarcheRepository) getOne(ctx context.Context, query, arg string) (*marche.Marche, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "get marche %q", arg)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMarche)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, marche.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get marche %q", arg)
	}
	return &m, nil
}

// GetByIDs returns the marches matching ids, in no particular order.
func (r *MarcheRepository) GetByIDs(ctx context.Context, ids []string) ([]marche.Marche, error) {
	rows, err := r.pool.Query(ctx, getMarchesByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get marches by ids")
	}
	return pgx.CollectRows(rows, scanMarche)
}

// SlugExists reports whether a marche already uses slug.
func (r *MarcheRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, marcheSlugExists, slug).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check slug %q", slug)
	}
	return exists, nil
}

// Create inserts m. A slug collision yields marche.ErrSlugTaken.
func (r *MarcheRepository) Create(ctx context.Context, m *marche.Marche) error {
	_, err := r.pool.Exec(ctx, createMarcheSQL,
		m.ID, m.Slug, m.Ville, m.Region, m.Departement, m.NomMarche, m.Descriptif,
		m.Date, m.Latitude, m.Longitude, tags(m.Tags), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(marche.ErrSlugTaken, "slug %q", m.Slug)
		}
		return errors.Wrapf(err, "create marche %q", m.Slug)
	}
	return nil
}

// Update stores the mutable fields of m.
func (r *MarcheRepository) Update(ctx context.Context, m *marche.Marche) error {
	tag, err := r.pool.Exec(ctx, updateMarcheSQL,
		m.ID, m.Ville, m.Region, m.Departement, m.NomMarche, m.Descriptif,
		m.Date, m.Latitude, m.Longitude, tags(m.Tags), m.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update marche %q", m.ID)
	}
	if tag.RowsAffected() == 0 {
		return marche.ErrNotFound
	}
	return nil
}

// ListTextes returns the textes of a marche in reading order.
func (r *MarcheRepository) ListTextes(ctx context.Context, marcheID string) ([]marche.Texte, error) {
	rows, err := r.pool.Query(ctx, listTextesSQL, marcheID)
	if err != nil {
		return nil, errors.Wrap(err, "list textes")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (marche.Texte, error) {
		var t marche.Texte
		err := row.Scan(&t.ID, &t.MarcheID, &t.Titre, &t.Contenu, &t.TypeTexte, &t.Ordre)
		return t, err
	})
}

// ListPhotos returns the photos of a marche in display order.
func (r *MarcheRepository) ListPhotos(ctx context.Context, marcheID string) ([]marche.Photo, error) {
	rows, err := r.pool.Query(ctx, listPhotosSQL, marcheID)
	if err != nil {
		return nil, errors.Wrap(err, "list photos")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (marche.Photo, error) {
		var p marche.Photo
		err := row.Scan(&p.ID, &p.MarcheID, &p.URL, &p.Titre, &p.Ordre)
		return p, err
	})
}

// ListAudios returns the recordings of a marche in play order.
func (r *MarcheRepository) ListAudios(ctx context.Context, marcheID string) ([]marche.Audio, error) {
	rows, err := r.pool.Query(ctx, listAudiosSQL, marcheID)
	if err != nil {
		return nil, errors.Wrap(err, "list audio")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (marche.Audio, error) {
		var a marche.Audio
		err := row.Scan(&a.ID, &a.MarcheID, &a.URL, &a.Titre, &a.DurationSeconds, &a.Ordre)
		return a, err
	})
}

// CountPhotos returns the photo count of each marche having at least one.
func (r *MarcheRepository) CountPhotos(ctx context.Context, marcheIDs []string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, countPhotosSQL, marcheIDs)
	if err != nil {
		return nil, errors.Wrap(err, "count photos")
	}
	defer rows.Close()

	out := make(map[string]int, len(marcheIDs))
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, errors.Wrap(err, "scan photo count")
		}
		out[id] = n
	}
	return out, rows.Err()
}

// AddTexte inserts t.
func (r *MarcheRepository) AddTexte(ctx context.Context, t *marche.Texte) error {
	if _, err := r.pool.Exec(ctx, addTexteSQL, t.ID, t.MarcheID, t.Titre, t.Contenu, t.TypeTexte, t.Ordre); err != nil {
		return errors.Wrap(err, "add texte")
	}
	return nil
}

// AddPhoto inserts p.
func (r *MarcheRepository) AddPhoto(ctx context.Context, p *marche.Photo) error {
	if _, err := r.pool.Exec(ctx, addPhotoSQL, p.ID, p.MarcheID, p.URL, p.Titre, p.Ordre); err != nil {
		return errors.Wrap(err, "add photo")
	}
	return nil
}

// AddAudio inserts a.
func (r *MarcheRepository) AddAudio(ctx context.Context, a *marche.Audio) error {
	if _, err := r.pool.Exec(ctx, addAudioSQL, a.ID, a.MarcheID, a.URL, a.Titre, a.DurationSeconds, a.Ordre); err != nil {
		return errors.Wrap(err, "add audio")
	}
	return nil
}

func scanMarche(row pgx.CollectableRow) (marche.Marche, error) {
	var m marche.Marche
	err := row.Scan(
		&m.ID, &m.Slug, &m.Ville, &m.Region, &m.Departement, &m.NomMarche, &m.Descriptif,
		&m.Date, &m.Latitude, &m.Longitude, &m.Tags, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func tags(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}
