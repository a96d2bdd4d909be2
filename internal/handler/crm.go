package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/crm"
)

// OpportunityResponse is a CRM opportunity.
type OpportunityResponse struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	ContactName  string          `json:"contact_name,omitempty"`
	ContactEmail string          `json:"contact_email,omitempty"`
	Organisation string          `json:"organisation,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Stage        crm.Stage       `json:"stage"`
	Notes        string          `json:"notes,omitempty"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OpportunityRequest creates or patches an opportunity. Version is the
// version the client last read and is required on patch.
type OpportunityRequest struct {
	Title        *string          `json:"title"`
	ContactName  *string          `json:"contact_name"`
	ContactEmail *string          `json:"contact_email"`
	Organisation *string          `json:"organisation"`
	Amount       *decimal.Decimal `json:"amount"`
	Stage        *crm.Stage       `json:"stage"`
	Notes        *string          `json:"notes"`
	Version      *int             `json:"version"`
}

// StageRequest moves an opportunity through the pipeline.
type StageRequest struct {
	Stage   crm.Stage `json:"stage"`
	Version *int      `json:"version"`
}

// StageTotalResponse aggregates one pipeline stage.
type StageTotalResponse struct {
	Stage  crm.Stage       `json:"stage"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

func toOpportunity(o *crm.Opportunity) OpportunityResponse {
	return OpportunityResponse{
		ID:           o.ID,
		Title:        o.Title,
		ContactName:  o.ContactName,
		ContactEmail: o.ContactEmail,
		Organisation: o.Organisation,
		Amount:       o.Amount,
		Stage:        o.Stage,
		Notes:        o.Notes,
		Version:      o.Version,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func (r OpportunityRequest) input() crm.Input {
	return crm.Input{
		Title:        r.Title,
		ContactName:  r.ContactName,
		ContactEmail: r.ContactEmail,
		Organisation: r.Organisation,
		Amount:       r.Amount,
		Stage:        r.Stage,
		Notes:        r.Notes,
	}
}

func (h *Handler) listOpportunities(c echo.Context) error {
	stage := crm.Stage(c.QueryParam("stage"))
	list, err := h.CRM.List(c.Request().Context(), stage)
	if err != nil {
		return err
	}
	out := make([]OpportunityResponse, 0, len(list))
	for i := range list {
		out = append(out, toOpportunity(&list[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) createOpportunity(c echo.Context) error {
	var req OpportunityRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	o, err := h.CRM.Create(c.Request().Context(), req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toOpportunity(o))
}

func (h *Handler) getOpportunity(c echo.Context) error {
	o, err := h.CRM.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOpportunity(o))
}

func (h *Handler) updateOpportunity(c echo.Context) error {
	var req OpportunityRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Version == nil {
		return &crm.ValidationError{Field: "version", Reason: "required"}
	}
	o, err := h.CRM.Update(c.Request().Context(), c.Param("id"), req.input(), *req.Version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOpportunity(o))
}

func (h *Handler) moveStage(c echo.Context) error {
	var req StageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Version == nil {
		return &crm.ValidationError{Field: "version", Reason: "required"}
	}
	o, err := h.CRM.MoveStage(c.Request().Context(), c.Param("id"), req.Stage, *req.Version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOpportunity(o))
}

func (h *Handler) pipeline(c echo.Context) error {
	totals, err := h.CRM.Pipeline(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]StageTotalResponse, 0, len(totals))
	for _, t := range totals {
		out = append(out, StageTotalResponse{Stage: t.Stage, Count: t.Count, Amount: t.Amount})
	}
	return c.JSON(http.StatusOK, out)
}
