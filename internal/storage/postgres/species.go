package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/species"
)

const (
	lookupSpeciesSQL = `SELECT key, common_name FROM species_translations
		WHERE lang = $1 AND key = ANY($2)`

	// Curated names win over AI answers on conflict.
	saveSpeciesSQL = `INSERT INTO species_translations (key, lang, scientific_name, common_name, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (key, lang) DO UPDATE
		SET scientific_name = EXCLUDED.scientific_name, common_name = EXCLUDED.common_name,
			source = EXCLUDED.source, updated_at = now()
		WHERE species_translations.source <> 'local' OR EXCLUDED.source = 'local'`

	keysSpeciesSQL = `SELECT key FROM species_translations WHERE lang = $1`
)

var _ species.Repository = (*SpeciesRepository)(nil)

// SpeciesRepository implements species.Repository backed by PostgreSQL.
type SpeciesRepository struct {
	pool *pgxpool.Pool
}

// NewSpeciesRepository returns a SpeciesRepository that uses the given pool.
func NewSpeciesRepository(pool *pgxpool.Pool) *SpeciesRepository {
	return &SpeciesRepository{pool: pool}
}

// Lookup returns the stored common names of keys in lang.
func (r *SpeciesRepository) Lookup(ctx context.Context, lang string, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, lookupSpeciesSQL, lang, keys)
	if err != nil {
		return nil, errors.Wrap(err, "lookup species")
	}
	defer rows.Close()

	for rows.Next() {
		var key, name string
		if err := rows.Scan(&key, &name); err != nil {
			return nil, errors.Wrap(err, "scan species")
		}
		out[key] = name
	}
	return out, rows.Err()
}

// Save upserts entries in one batch.
func (r *SpeciesRepository) Save(ctx context.Context, entries []species.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(saveSpeciesSQL, e.Key, e.Lang, e.ScientificName, e.CommonName, string(e.Source))
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "save %d species", len(entries))
	}
	return nil
}

// ForEachKey calls fn with every stored key in lang.
func (r *SpeciesRepository) ForEachKey(ctx context.Context, lang string, fn func(key string)) error {
	rows, err := r.pool.Query(ctx, keysSpeciesSQL, lang)
	if err != nil {
		return errors.Wrap(err, "list species keys")
	}
	var key string
	if _, err := pgx.ForEachRow(rows, []any{&key}, func() error {
		fn(key)
		return nil
	}); err != nil {
		return errors.Wrap(err, "scan species keys")
	}
	return nil
}
