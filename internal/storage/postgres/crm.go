package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/crm"
)

const opportunityColumns = `id::text, title, contact_name, contact_email, organisation, amount,
	stage, notes, version, created_at, updated_at`

const (
	createOpportunitySQL = `INSERT INTO crm_opportunities
		(id, title, contact_name, contact_email, organisation, amount, stage, notes, version, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOpportunitySQL    = `SELECT ` + opportunityColumns + ` FROM crm_opportunities WHERE id::text = $1`
	listOpportunitiesSQL = `SELECT ` + opportunityColumns + ` FROM crm_opportunities
		WHERE ($1 = '' OR stage = $1) ORDER BY updated_at DESC`

	// The version predicate makes the write conditional: a concurrent
	// writer that got there first leaves zero rows affected.
	updateOpportunitySQL = `UPDATE crm_opportunities
		SET title = $3, contact_name = $4, contact_email = $5, organisation = $6,
			amount = $7, notes = $8, updated_at = $9, version = version + 1
		WHERE id::text = $1 AND version = $2`

	setStageSQL = `UPDATE crm_opportunities
		SET stage = $3, updated_at = now(), version = version + 1
		WHERE id::text = $1 AND version = $2
		RETURNING ` + opportunityColumns

	opportunityExistsSQL = `SELECT EXISTS (SELECT 1 FROM crm_opportunities WHERE id::text = $1)`

	stageTotalsSQL = `SELECT stage, count(*), COALESCE(sum(amount), 0)
		FROM crm_opportunities GROUP BY stage`
)

var _ crm.Repository = (*OpportunityRepository)(nil)

// OpportunityRepository implements crm.Repository backed by PostgreSQL.
type OpportunityRepository struct {
	pool *pgxpool.Pool
}

// NewOpportunityRepository returns an OpportunityRepository that uses the given pool.
func NewOpportunityRepository(pool *pgxpool.Pool) *OpportunityRepository {
	return &OpportunityRepository{pool: pool}
}

// Create inserts o.
func (r *OpportunityRepository) Create(ctx context.Context, o *crm.Opportunity) error {
	_, err := r.pool.Exec(ctx, createOpportunitySQL,
		o.ID, o.Title, o.ContactName, o.ContactEmail, o.Organisation, o.Amount,
		string(o.Stage), o.Notes, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create opportunity %q", o.Title)
	}
	return nil
}

// GetByID returns one opportunity.
func (r *OpportunityRepository) GetByID(ctx context.Context, id string) (*crm.Opportunity, error) {
	rows, err := r.pool.Query(ctx, getOpportunitySQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get opportunity %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOpportunity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, crm.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get opportunity %q", id)
	}
	return &o, nil
}

// List returns opportunities, optionally restricted to one stage.
func (r *OpportunityRepository) List(ctx context.Context, stage crm.Stage) ([]crm.Opportunity, error) {
	rows, err := r.pool.Query(ctx, listOpportunitiesSQL, string(stage))
	if err != nil {
		return nil, errors.Wrap(err, "list opportunities")
	}
	return pgx.CollectRows(rows, scanOpportunity)
}

// Update writes o when the stored version still equals expectedVersion.
func (r *OpportunityRepository) Update(ctx context.Context, o *crm.Opportunity, expectedVersion int) error {
	tag, err := r.pool.Exec(ctx, updateOpportunitySQL,
		o.ID, expectedVersion, o.Title, o.ContactName, o.ContactEmail, o.Organisation,
		o.Amount, o.Notes, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update opportunity %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, o.ID)
	}
	return nil
}

// SetStage moves an opportunity when the stored version still equals
// expectedVersion and returns the stored result.
func (r *OpportunityRepository) SetStage(ctx context.Context, id string, stage crm.Stage, expectedVersion int) (*crm.Opportunity, error) {
	rows, err := r.pool.Query(ctx, setStageSQL, id, expectedVersion, string(stage))
	if err != nil {
		return nil, errors.Wrapf(err, "set stage of %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOpportunity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrConflict(ctx, id)
		}
		return nil, errors.Wrapf(err, "set stage of %q", id)
	}
	return &o, nil
}

func (r *OpportunityRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, opportunityExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check opportunity %q", id)
	}
	if !exists {
		return crm.ErrNotFound
	}
	return crm.ErrVersionConflict
}

// Totals returns count and amount per stage present in the table.
func (r *OpportunityRepository) Totals(ctx context.Context) ([]crm.StageTotal, error) {
	rows, err := r.pool.Query(ctx, stageTotalsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "stage totals")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (crm.StageTotal, error) {
		var (
			t     crm.StageTotal
			stage string
		)
		err := row.Scan(&stage, &t.Count, &t.Amount)
		t.Stage = crm.Stage(stage)
		return t, err
	})
}

func scanOpportunity(row pgx.CollectableRow) (crm.Opportunity, error) {
	var (
		o      crm.Opportunity
		stage  string
		amount decimal.Decimal
	)
	err := row.Scan(
		&o.ID, &o.Title, &o.ContactName, &o.ContactEmail, &o.Organisation, &amount,
		&stage, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Stage = crm.Stage(stage)
	o.Amount = amount
	return o, err
}
