package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/calendar"
)

const (
	upsertEventSQL = `INSERT INTO calendar_events
		(id, source, external_id, title, description, location, starts_at, ends_at, all_day, synced_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (source, external_id) DO UPDATE
		SET title = EXCLUDED.title, description = EXCLUDED.description, location = EXCLUDED.location,
			starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at, all_day = EXCLUDED.all_day,
			synced_at = now()`

	upcomingEventsSQL = `SELECT id::text, source, external_id, title, description, location, starts_at, ends_at, all_day
		FROM calendar_events
		WHERE COALESCE(ends_at, starts_at) >= $1
		ORDER BY starts_at LIMIT $2`
)

var _ calendar.Repository = (*CalendarRepository)(nil)

// CalendarRepository implements calendar.Repository backed by PostgreSQL.
type CalendarRepository struct {
	pool *pgxpool.Pool
}

// NewCalendarRepository returns a CalendarRepository that uses the given pool.
func NewCalendarRepository(pool *pgxpool.Pool) *CalendarRepository {
	return &CalendarRepository{pool: pool}
}

// Upsert writes events in one transaction keyed by (source, external id).
func (r *CalendarRepository) Upsert(ctx context.Context, events []calendar.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	written := 0
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range events {
			batch.Queue(upsertEventSQL,
				uuid.NewString(), e.Source, e.ExternalID, e.Title, e.Description, e.Location,
				e.Start, e.End, e.AllDay,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range events {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return errors.Wrap(err, "upsert event")
			}
			written += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, errors.Wrap(err, "upsert calendar events")
	}
	return written, nil
}

// Upcoming returns events not yet finished at from, earliest first.
func (r *CalendarRepository) Upcoming(ctx context.Context, from time.Time, limit int) ([]calendar.Event, error) {
	rows, err := r.pool.Query(ctx, upcomingEventsSQL, from, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list upcoming events")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (calendar.Event, error) {
		var e calendar.Event
		err := row.Scan(&e.ID, &e.Source, &e.ExternalID, &e.Title, &e.Description, &e.Location, &e.Start, &e.End, &e.AllDay)
		return e, err
	})
}
