package transport

import (
	"time"

	"outreach_backend/internal/pipeline/domain"

	"github.com/google/uuid"
)

// Requests

type EnrollRequest struct {
	Email      string     `json:"email" validate:"required,max=254,mailbox"`
	FirstName  string     `json:"firstName" validate:"max=100"`
	LastName   string     `json:"lastName" validate:"max=100"`
	Phone      string     `json:"phone" validate:"omitempty,max=32,e164"`
	PipelineID *uuid.UUID `json:"pipelineId,omitempty"`
}

type MoveDealRequest struct {
	StageID uuid.UUID `json:"stageId" validate:"required"`
}

type ProgressRequest struct {
	Email  string `json:"email" validate:"required,max=254"`
	Action string `json:"action" validate:"required,max=64"`
}

// Responses

type StageResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Order             int       `json:"order"`
	IsTerminal        bool      `json:"isTerminal"`
	DaysUntilFollowup int       `json:"daysUntilFollowup"`
	AutoTemplate      *string   `json:"autoTemplate,omitempty"`
}

type PipelineResponse struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	IsActive bool            `json:"isActive"`
	Stages   []StageResponse `json:"stages,omitempty"`
}

type PipelineListResponse struct {
	Items []PipelineResponse `json:"items"`
}

type DealResponse struct {
	ID              uuid.UUID  `json:"id"`
	ContactID       uuid.UUID  `json:"contactId"`
	PipelineID      uuid.UUID  `json:"pipelineId"`
	CurrentStageID  *uuid.UUID `json:"currentStageId"`
	Status          string     `json:"status"`
	StageEnteredAt  *time.Time `json:"stageEnteredAt"`
	NextActionDate  *time.Time `json:"nextActionDate"`
	EmailsSent      int        `json:"emailsSent"`
	EngagementTier  string     `json:"engagementTier"`
	AutopilotPaused bool       `json:"autopilotPaused"`
}

type ActivityResponse struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ActivityListResponse struct {
	Items []ActivityResponse `json:"items"`
}

type ResultResponse struct {
	Outcome string         `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	Deal    *DealResponse  `json:"deal,omitempty"`
	Stage   *StageResponse `json:"stage,omitempty"`
}

type RecoveryReportResponse struct {
	Scanned   int `json:"scanned"`
	Recovered int `json:"recovered"`
	Noop      int `json:"noop"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
}

// Mappers

func ToStageResponse(s domain.Stage) StageResponse {
	return StageResponse{
		ID:                s.ID,
		Name:              s.Name,
		Order:             s.Order,
		IsTerminal:        s.IsTerminal,
		DaysUntilFollowup: s.DaysUntilFollowup,
		AutoTemplate:      s.AutoTemplate,
	}
}

func ToPipelineResponse(p domain.Pipeline, stages []domain.Stage) PipelineResponse {
	resp := PipelineResponse{ID: p.ID, Name: p.Name, IsActive: p.IsActive}
	for _, s := range stages {
		resp.Stages = append(resp.Stages, ToStageResponse(s))
	}
	return resp
}

func ToDealResponse(d domain.Deal) DealResponse {
	return DealResponse{
		ID:              d.ID,
		ContactID:       d.ContactID,
		PipelineID:      d.PipelineID,
		CurrentStageID:  d.CurrentStageID,
		Status:          string(d.Status),
		StageEnteredAt:  d.StageEnteredAt,
		NextActionDate:  d.NextActionDate,
		EmailsSent:      d.EmailsSent,
		EngagementTier:  d.EngagementTier,
		AutopilotPaused: d.AutopilotPaused,
	}
}

func ToActivityListResponse(items []domain.Activity) ActivityListResponse {
	resp := ActivityListResponse{Items: make([]ActivityResponse, 0, len(items))}
	for _, a := range items {
		resp.Items = append(resp.Items, ActivityResponse{
			ID:          a.ID,
			Type:        string(a.Type),
			Description: a.Description,
			CreatedAt:   a.CreatedAt,
		})
	}
	return resp
}

func ToResultResponse(r domain.Result) ResultResponse {
	resp := ResultResponse{Outcome: string(r.Outcome), Reason: r.Reason}
	if r.Deal != nil {
		d := ToDealResponse(*r.Deal)
		resp.Deal = &d
	}
	if r.Stage != nil {
		s := ToStageResponse(*r.Stage)
		resp.Stage = &s
	}
	return resp
}

func ToRecoveryReportResponse(r domain.RecoveryReport) RecoveryReportResponse {
	return RecoveryReportResponse(r)
}
