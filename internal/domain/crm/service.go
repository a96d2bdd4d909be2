package crm

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Input carries the fields of a create or update. Nil fields are left
// unchanged on update.
type Input struct {
	Title        *string
	ContactName  *string
	ContactEmail *string
	Organisation *string
	Amount       *decimal.Decimal
	Stage        *Stage
	Notes        *string
}

// Service manages CRM opportunities.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a CRM Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates and stores a new opportunity at version 1.
func (s *Service) Create(ctx context.Context, in Input) (*Opportunity, error) {
	o := &Opportunity{Stage: StageProspect, Amount: decimal.Zero}
	apply(o, in)
	if in.Stage != nil {
		o.Stage = *in.Stage
	}
	if !o.Stage.Valid() {
		return nil, &ValidationError{Field: "stage", Reason: "unknown stage"}
	}
	if err := validate(o); err != nil {
		return nil, err
	}

	now := s.now()
	o.ID = uuid.NewString()
	o.Version = 1
	o.CreatedAt = now
	o.UpdatedAt = now

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create opportunity")
	}
	return o, nil
}

// Get returns an opportunity by id.
func (s *Service) Get(ctx context.Context, id string) (*Opportunity, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns opportunities, optionally filtered by stage.
func (s *Service) List(ctx context.Context, stage Stage) ([]Opportunity, error) {
	if stage != "" && !stage.Valid() {
		return nil, &ValidationError{Field: "stage", Reason: "unknown stage"}
	}
	list, err := s.repo.List(ctx, stage)
	if err != nil {
		return nil, errors.Wrap(err, "list opportunities")
	}
	return list, nil
}

// Update applies in to the opportunity if nobody changed it since
// expectedVersion. Stage changes go through MoveStage.
func (s *Service) Update(ctx context.Context, id string, in Input, expectedVersion int) (*Opportunity, error) {
	if in.Stage != nil {
		return nil, &ValidationError{Field: "stage", Reason: "use the stage endpoint"}
	}

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	apply(o, in)
	if err := validate(o); err != nil {
		return nil, err
	}
	o.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, o, expectedVersion); err != nil {
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update opportunity")
	}
	o.Version = expectedVersion + 1
	return o, nil
}

// MoveStage moves an opportunity along the pipeline.
func (s *Service) MoveStage(ctx context.Context, id string, to Stage, expectedVersion int) (*Opportunity, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if !o.Stage.CanMoveTo(to) {
		return nil, errors.Wrapf(ErrInvalidStage, "%s to %s", o.Stage, to)
	}

	moved, err := s.repo.SetStage(ctx, id, to, expectedVersion)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "move stage")
	}
	return moved, nil
}

// Pipeline returns the count and amount of every stage, in pipeline order,
// including empty stages.
func (s *Service) Pipeline(ctx context.Context) ([]StageTotal, error) {
	totals, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline totals")
	}

	byStage := make(map[Stage]StageTotal, len(totals))
	for _, t := range totals {
		byStage[t.Stage] = t
	}

	out := make([]StageTotal, 0, len(Stages))
	for _, st := range Stages {
		t, ok := byStage[st]
		if !ok {
			t = StageTotal{Stage: st, Amount: decimal.Zero}
		}
		t.Amount = t.Amount.Round(2)
		out = append(out, t)
	}
	return out, nil
}

func apply(o *Opportunity, in Input) {
	if in.Title != nil {
		o.Title = strings.TrimSpace(*in.Title)
	}
	if in.ContactName != nil {
		o.ContactName = strings.TrimSpace(*in.ContactName)
	}
	if in.ContactEmail != nil {
		o.ContactEmail = strings.ToLower(strings.TrimSpace(*in.ContactEmail))
	}
	if in.Organisation != nil {
		o.Organisation = strings.TrimSpace(*in.Organisation)
	}
	if in.Amount != nil {
		o.Amount = *in.Amount
	}
	if in.Notes != nil {
		o.Notes = *in.Notes
	}
}

func validate(o *Opportunity) error {
	if o.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if o.ContactEmail != "" {
		addr, err := mail.ParseAddress(o.ContactEmail)
		if err != nil || addr.Address != o.ContactEmail {
			return &ValidationError{Field: "contact_email", Reason: "malformed address"}
		}
	}
	if o.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	return nil
}
