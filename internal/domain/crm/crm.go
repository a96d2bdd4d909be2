package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an opportunity does not exist.
	ErrNotFound = errors.New("opportunity not found")
	// ErrVersionConflict is returned when the stored version differs from
	// the version the caller last read.
	ErrVersionConflict = errors.New("opportunity was modified concurrently")
	// ErrInvalidStage is returned for unknown stages and forbidden transitions.
	ErrInvalidStage = errors.New("invalid stage transition")
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Stage of an opportunity in the sales pipeline.
type Stage string

const (
	StageProspect    Stage = "prospect"
	StageQualified   Stage = "qualified"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageProspect, StageQualified, StageProposal, StageNegotiation, StageWon, StageLost}

var next = map[Stage]Stage{
	StageProspect:    StageQualified,
	StageQualified:   StageProposal,
	StageProposal:    StageNegotiation,
	StageNegotiation: StageWon,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, v := range Stages {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageWon || s == StageLost
}

// CanMoveTo reports whether the pipeline allows moving from s to to. An
// open stage advances one step or is lost.
func (s Stage) CanMoveTo(to Stage) bool {
	if s.Terminal() || !to.Valid() {
		return false
	}
	return to == StageLost || next[s] == to
}

// Opportunity is a sales opportunity tracked by the CRM.
type Opportunity struct {
	ID           string
	Title        string
	ContactName  string
	ContactEmail string
	Organisation string
	Amount       decimal.Decimal
	Stage        Stage
	Notes        string
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StageTotal aggregates the opportunities of one stage.
type StageTotal struct {
	Stage  Stage
	Count  int
	Amount decimal.Decimal
}

// Repository defines persistence operations for opportunities.
//
// Update and SetStage must apply only when the stored version equals
// expectedVersion, increment the version, and return ErrVersionConflict
// otherwise.
type Repository interface {
	Create(ctx context.Context, o *Opportunity) error
	GetByID(ctx context.Context, id string) (*Opportunity, error)
	List(ctx context.Context, stage Stage) ([]Opportunity, error)
	Update(ctx context.Context, o *Opportunity, expectedVersion int) error
	SetStage(ctx context.Context, id string, stage Stage, expectedVersion int) (*Opportunity, error)
	Totals(ctx context.Context) ([]StageTotal, error)
}
