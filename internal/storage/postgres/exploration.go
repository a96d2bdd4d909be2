package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/exploration"
)

const (
	explorationSelect = `SELECT e.id::text, e.slug, e.name, e.description, e.theme, e.published,
		COALESCE(array_agg(em.marche_id::text ORDER BY em.position) FILTER (WHERE em.marche_id IS NOT NULL), '{}')
		FROM explorations e
		LEFT JOIN exploration_marches em ON em.exploration_id = e.id`

	listExplorationsSQL = explorationSelect + `
		WHERE NOT $1 OR e.published
		GROUP BY e.id ORDER BY e.created_at, e.slug`

	getExplorationSQL = explorationSelect + `
		WHERE e.slug = $1
		GROUP BY e.id`

	upsertExplorationSQL = `INSERT INTO explorations (id, slug, name, description, theme, published)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description,
			theme = EXCLUDED.theme, published = EXCLUDED.published
		RETURNING id::text`

	clearExplorationMarchesSQL = `DELETE FROM exploration_marches WHERE exploration_id = $1::uuid`
	addExplorationMarcheSQL    = `INSERT INTO exploration_marches (exploration_id, marche_id, position)
		VALUES ($1::uuid, $2::uuid, $3) ON CONFLICT DO NOTHING`
)

var _ exploration.Repository = (*ExplorationRepository)(nil)

// ExplorationRepository implements exploration.Repository backed by PostgreSQL.
type ExplorationRepository struct {
	pool *pgxpool.Pool
}

// NewExplorationRepository returns an ExplorationRepository that uses the given pool.
func NewExplorationRepository(pool *pgxpool.Pool) *ExplorationRepository {
	return &ExplorationRepository{pool: pool}
}

// List returns explorations with their ordered marche ids.
func (r *ExplorationRepository) List(ctx context.Context, publishedOnly bool) ([]exploration.Exploration, error) {
	rows, err := r.pool.Query(ctx, listExplorationsSQL, publishedOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list explorations")
	}
	return pgx.CollectRows(rows, scanExploration)
}

// GetBySlug returns one exploration, published or not.
func (r *ExplorationRepository) GetBySlug(ctx context.Context, slug string) (*exploration.Exploration, error) {
	rows, err := r.pool.Query(ctx, getExplorationSQL, slug)
	if err != nil {
		return nil, errors.Wrapf(err, "get exploration %q", slug)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanExploration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, exploration.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get exploration %q", slug)
	}
	return &e, nil
}

// Upsert stores e keyed by slug and replaces its marche list. e.ID is set
// to the stored id.
func (r *ExplorationRepository) Upsert(ctx context.Context, e *exploration.Exploration) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, upsertExplorationSQL,
			e.ID, e.Slug, e.Name, e.Description, string(e.Theme), e.Published,
		).Scan(&e.ID)
		if err != nil {
			return errors.Wrapf(err, "upsert exploration %q", e.Slug)
		}

		if _, err := tx.Exec(ctx, clearExplorationMarchesSQL, e.ID); err != nil {
			return errors.Wrap(err, "clear exploration marches")
		}
		batch := &pgx.Batch{}
		for i, id := range e.MarcheIDs {
			batch.Queue(addExplorationMarcheSQL, e.ID, id, i+1)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "add exploration marches")
		}
		return nil
	})
}

func scanExploration(row pgx.CollectableRow) (exploration.Exploration, error) {
	var (
		e     exploration.Exploration
		theme string
	)
	err := row.Scan(&e.ID, &e.Slug, &e.Name, &e.Description, &theme, &e.Published, &e.MarcheIDs)
	e.Theme = exploration.Theme(theme)
	return e, err
}
