package calendar

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// SyncResult counts what a sync did.
type SyncResult struct {
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
}

// Service synchronizes and serves calendar events.
type Service struct {
	repo    Repository
	fetcher Fetcher
	source  string
	now     func() time.Time
}

// NewService creates a calendar Service.
func NewService(repo Repository, fetcher Fetcher) *Service {
	return &Service{repo: repo, fetcher: fetcher, source: DefaultSource, now: time.Now}
}

// Sync pulls the calendar webhook and upserts its events.
func (s *Service) Sync(ctx context.Context) (*SyncResult, error) {
	payload, err := s.fetcher.FetchCalendar(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch calendar")
	}
	events, err := Normalize(payload, s.source)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Fetched: len(events)}
	if len(events) > 0 {
		n, err := s.repo.Upsert(ctx, events)
		if err != nil {
			return nil, errors.Wrap(err, "upsert events")
		}
		res.Upserted = n
	}

	zctx.From(ctx).Info("Calendar synced",
		zap.Int("fetched", res.Fetched),
		zap.Int("upserted", res.Upserted),
	)
	return res, nil
}

// Upcoming lists events starting at or after from. A zero from means now.
func (s *Service) Upcoming(ctx context.Context, from time.Time, limit int) ([]Event, error) {
	if from.IsZero() {
		from = s.now()
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	events, err := s.repo.Upcoming(ctx, from, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list upcoming events")
	}
	return events, nil
}
