package crm

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	items  map[string]Opportunity
	totals []StageTotal
}

func newMockRepo(items ...Opportunity) *mockRepo {
	r := &mockRepo{items: make(map[string]Opportunity)}
	for _, o := range items {
		r.items[o.ID] = o
	}
	return r
}

func (m *mockRepo) Create(_ context.Context, o *Opportunity) error {
	m.items[o.ID] = *o
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Opportunity, error) {
	o, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *mockRepo) List(_ context.Context, stage Stage) ([]Opportunity, error) {
	var out []Opportunity
	for _, o := range m.items {
		if stage == "" || o.Stage == stage {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, o *Opportunity, expected int) error {
	cur, ok := m.items[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expected {
		return ErrVersionConflict
	}
	cp := *o
	cp.Version = expected + 1
	m.items[o.ID] = cp
	return nil
}

func (m *mockRepo) SetStage(_ context.Context, id string, stage Stage, expected int) (*Opportunity, error) {
	cur, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.Version != expected {
		return nil, ErrVersionConflict
	}
	cur.Stage = stage
	cur.Version++
	m.items[id] = cur
	return &cur, nil
}

func (m *mockRepo) Totals(context.Context) ([]StageTotal, error) {
	return m.totals, nil
}

// racingRepo bumps the stored version between read and write, like a
// concurrent editor would.
type racingRepo struct {
	*mockRepo
}

func (r racingRepo) Update(ctx context.Context, o *Opportunity, expected int) error {
	cur := r.items[o.ID]
	cur.Version++
	r.items[o.ID] = cur
	return r.mockRepo.Update(ctx, o, expected)
}

func ptr[T any](v T) *T { return &v }

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newService(repo Repository) *Service {
	s := NewService(repo)
	s.now = func() time.Time { return fixedNow }
	return s
}

// --- Tests ---

func TestStage_CanMoveTo(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageProspect, StageQualified, true},
		{StageQualified, StageProposal, true},
		{StageProposal, StageNegotiation, true},
		{StageNegotiation, StageWon, true},
		{StageProspect, StageLost, true},
		{StageNegotiation, StageLost, true},
		{StageProspect, StageProposal, false},
		{StageProspect, StageWon, false},
		{StageQualified, StageProspect, false},
		{StageWon, StageLost, false},
		{StageLost, StageProspect, false},
		{StageProspect, "archived", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanMoveTo(tt.to))
		})
	}
}

func TestCreate(t *testing.T) {
	repo := newMockRepo()
	svc := newService(repo)

	o, err := svc.Create(context.Background(), Input{
		Title:        ptr("  Résidence d'artiste Bergerac "),
		ContactEmail: ptr("Mairie@Bergerac.fr"),
		Amount:       ptr(decimal.RequireFromString("4500.50")),
	})
	require.NoError(t, err)

	assert.Equal(t, "Résidence d'artiste Bergerac", o.Title)
	assert.Equal(t, "mairie@bergerac.fr", o.ContactEmail)
	assert.Equal(t, StageProspect, o.Stage)
	assert.Equal(t, 1, o.Version)
	assert.Equal(t, fixedNow, o.CreatedAt)
	assert.Contains(t, repo.items, o.ID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"missing title", Input{}, "title"},
		{"bad email", Input{Title: ptr("x"), ContactEmail: ptr("not-an-email")}, "contact_email"},
		{"negative amount", Input{Title: ptr("x"), Amount: ptr(decimal.NewFromInt(-1))}, "amount"},
		{"unknown stage", Input{Title: ptr("x"), Stage: ptr(Stage("archived"))}, "stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(newMockRepo()).Create(context.Background(), tt.in)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestUpdate_OptimisticConcurrency(t *testing.T) {
	repo := newMockRepo(Opportunity{ID: "o1", Title: "Festival", Stage: StageQualified, Version: 3})
	svc := newService(repo)

	_, err := svc.Update(context.Background(), "o1", Input{Notes: ptr("relancer")}, 2)
	require.ErrorIs(t, err, ErrVersionConflict)

	o, err := svc.Update(context.Background(), "o1", Input{Notes: ptr("relancer")}, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, o.Version)
	assert.Equal(t, "relancer", repo.items["o1"].Notes)
	assert.Equal(t, 4, repo.items["o1"].Version)

	_, err = svc.Update(context.Background(), "o1", Input{Stage: ptr(StageWon)}, 4)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Update(context.Background(), "absent", Input{}, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_ConcurrentWriterLoses(t *testing.T) {
	repo := racingRepo{newMockRepo(Opportunity{ID: "o1", Title: "Festival", Version: 1})}
	svc := newService(repo)

	_, err := svc.Update(context.Background(), "o1", Input{Title: ptr("Festival 2026")}, 1)
	require.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, "Festival", repo.items["o1"].Title)
}

func TestMoveStage(t *testing.T) {
	repo := newMockRepo(Opportunity{ID: "o1", Title: "Festival", Stage: StageProposal, Version: 1})
	svc := newService(repo)

	_, err := svc.MoveStage(context.Background(), "o1", StageWon, 1)
	require.ErrorIs(t, err, ErrInvalidStage)

	o, err := svc.MoveStage(context.Background(), "o1", StageNegotiation, 1)
	require.NoError(t, err)
	assert.Equal(t, StageNegotiation, o.Stage)
	assert.Equal(t, 2, o.Version)

	_, err = svc.MoveStage(context.Background(), "o1", StageWon, 1)
	require.ErrorIs(t, err, ErrVersionConflict)

	o, err = svc.MoveStage(context.Background(), "o1", StageLost, 2)
	require.NoError(t, err)
	assert.Equal(t, StageLost, o.Stage)

	_, err = svc.MoveStage(context.Background(), "o1", StageProspect, 3)
	require.ErrorIs(t, err, ErrInvalidStage)
}

func TestPipeline(t *testing.T) {
	repo := newMockRepo()
	repo.totals = []StageTotal{
		{Stage: StageWon, Count: 2, Amount: decimal.RequireFromString("1200.005")},
		{Stage: StageProspect, Count: 3, Amount: decimal.RequireFromString("300.1")},
	}
	svc := newService(repo)

	got, err := svc.Pipeline(context.Background())
	require.NoError(t, err)
	require.Len(t, got, len(Stages))

	for i, st := range Stages {
		assert.Equal(t, st, got[i].Stage)
	}
	assert.Equal(t, 3, got[0].Count)
	assert.Equal(t, "300.1", got[0].Amount.String())
	assert.Equal(t, "1200.01", got[4].Amount.String())
	assert.Equal(t, 0, got[1].Count)
	assert.True(t, got[1].Amount.IsZero())
}

func TestList_UnknownStage(t *testing.T) {
	_, err := newService(newMockRepo()).List(context.Background(), "archived")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}
