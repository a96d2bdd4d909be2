package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/snapshot"
)

const (
	saveBiodiversitySQL = `INSERT INTO biodiversity_snapshots
		(id, marche_id, latitude, longitude, radius_km, total_species, birds, plants, fungi, insects, others, species, captured_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	latestBiodiversitySQL = `SELECT id::text, marche_id::text, latitude, longitude, radius_km, total_species,
		birds, plants, fungi, insects, others, species, captured_at
		FROM biodiversity_snapshots WHERE marche_id::text = $1
		ORDER BY captured_at DESC LIMIT 1`

	saveWeatherSQL = `INSERT INTO weather_snapshots (id, marche_id, start_date, end_date, days, captured_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)`

	latestWeatherSQL = `SELECT id::text, marche_id::text, start_date, end_date, days, captured_at
		FROM weather_snapshots WHERE marche_id::text = $1
		ORDER BY captured_at DESC LIMIT 1`
)

var _ snapshot.Repository = (*SnapshotRepository)(nil)

// SnapshotRepository implements snapshot.Repository backed by PostgreSQL.
// Species and days are stored as JSONB documents.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository returns a SnapshotRepository that uses the given pool.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Save inserts both snapshots in one transaction.
func (r *SnapshotRepository) Save(ctx context.Context, snaps *snapshot.Snapshots) error {
	species, err := json.Marshal(nonNil(snaps.Biodiversity.Species))
	if err != nil {
		return errors.Wrap(err, "marshal species")
	}
	days, err := json.Marshal(nonNil(snaps.Weather.Days))
	if err != nil {
		return errors.Wrap(err, "marshal days")
	}

	bio, w := snaps.Biodiversity, snaps.Weather
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, saveBiodiversitySQL,
			bio.ID, bio.MarcheID, bio.Latitude, bio.Longitude, bio.RadiusKM, bio.TotalSpecies,
			bio.Birds, bio.Plants, bio.Fungi, bio.Insects, bio.Others, species, bio.CapturedAt,
		); err != nil {
			return errors.Wrap(err, "insert biodiversity")
		}
		if _, err := tx.Exec(ctx, saveWeatherSQL, w.ID, w.MarcheID, w.StartDate, w.EndDate, days, w.CapturedAt); err != nil {
			return errors.Wrap(err, "insert weather")
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "save snapshots for %q", bio.MarcheID)
	}
	return nil
}

// LatestBiodiversity returns the most recent biodiversity snapshot, or
// snapshot.ErrNotFound.
func (r *SnapshotRepository) LatestBiodiversity(ctx context.Context, marcheID string) (*snapshot.BiodiversitySnapshot, error) {
	var (
		s       snapshot.BiodiversitySnapshot
		species []byte
	)
	err := r.pool.QueryRow(ctx, latestBiodiversitySQL, marcheID).Scan(
		&s.ID, &s.MarcheID, &s.Latitude, &s.Longitude, &s.RadiusKM, &s.TotalSpecies,
		&s.Birds, &s.Plants, &s.Fungi, &s.Insects, &s.Others, &species, &s.CapturedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, snapshot.ErrNotFound
		}
		return nil, errors.Wrapf(err, "latest biodiversity snapshot for %q", marcheID)
	}
	if err := json.Unmarshal(species, &s.Species); err != nil {
		return nil, errors.Wrap(err, "unmarshal species")
	}
	return &s, nil
}

// LatestWeather returns the most recent weather snapshot, or
// snapshot.ErrNotFound.
func (r *SnapshotRepository) LatestWeather(ctx context.Context, marcheID string) (*snapshot.WeatherSnapshot, error) {
	var (
		s    snapshot.WeatherSnapshot
		days []byte
	)
	err := r.pool.QueryRow(ctx, latestWeatherSQL, marcheID).Scan(
		&s.ID, &s.MarcheID, &s.StartDate, &s.EndDate, &days, &s.CapturedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, snapshot.ErrNotFound
		}
		return nil, errors.Wrapf(err, "latest weather snapshot for %q", marcheID)
	}
	if err := json.Unmarshal(days, &s.Days); err != nil {
		return nil, errors.Wrap(err, "unmarshal days")
	}
	return &s, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
