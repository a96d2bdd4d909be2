package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	upserted  []Event
	from      time.Time
	limit     int
	upsertErr error
}

func (m *mockRepo) Upsert(_ context.Context, events []Event) (int, error) {
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	m.upserted = append(m.upserted, events...)
	return len(events), nil
}

func (m *mockRepo) Upcoming(_ context.Context, from time.Time, limit int) ([]Event, error) {
	m.from, m.limit = from, limit
	return nil, nil
}

type fetcherFunc func(ctx context.Context) ([]byte, error)

func (f fetcherFunc) FetchCalendar(ctx context.Context) ([]byte, error) { return f(ctx) }

func TestSync(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, fetcherFunc(func(context.Context) ([]byte, error) {
		return []byte(`{"items":[{"id":"a","title":"A","start":"2026-01-01"},{"id":"b","title":"B"}]}`), nil
	}))

	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Fetched: 1, Upserted: 1}, res)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, DefaultSource, repo.upserted[0].Source)
}

func TestSync_Errors(t *testing.T) {
	svc := NewService(&mockRepo{}, fetcherFunc(func(context.Context) ([]byte, error) {
		return nil, errors.New("webhook down")
	}))
	_, err := svc.Sync(context.Background())
	require.ErrorContains(t, err, "fetch calendar")

	repo := &mockRepo{upsertErr: errors.New("db down")}
	svc = NewService(repo, fetcherFunc(func(context.Context) ([]byte, error) {
		return []byte(`[{"title":"A","start":"2026-01-01"}]`), nil
	}))
	_, err = svc.Sync(context.Background())
	require.ErrorContains(t, err, "upsert events")
}

func TestUpcoming_Defaults(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Upcoming(context.Background(), time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, now, repo.from)
	assert.Equal(t, defaultLimit, repo.limit)

	_, err = svc.Upcoming(context.Background(), now, 5000)
	require.NoError(t, err)
	assert.Equal(t, maxLimit, repo.limit)
}
