package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/service"
	"outreach_backend/internal/pipeline/transport"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubService struct {
	tenantSeen uuid.UUID
	moveErr    error
	progress   domain.Result
	enrollReq  transport.EnrollRequest
	activities []domain.Activity
}

func (s *stubService) ListPipelines(_ context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	s.tenantSeen = tenantID
	return []domain.Pipeline{{ID: uuid.New(), TenantID: tenantID, Name: "Onboarding", IsActive: true}}, nil
}

func (s *stubService) GetPipeline(_ context.Context, tenantID, pipelineID uuid.UUID) (service.PipelineWithStages, error) {
	return service.PipelineWithStages{}, apperr.NotFound("pipeline not found")
}

func (s *stubService) GetDeal(_ context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error) {
	return domain.Deal{ID: dealID, TenantID: tenantID, Status: domain.StatusActive}, nil
}

func (s *stubService) ListActivities(context.Context, uuid.UUID, uuid.UUID) ([]domain.Activity, error) {
	return s.activities, nil
}

func (s *stubService) EnrollContact(_ context.Context, tenantID uuid.UUID, req transport.EnrollRequest) (domain.Deal, error) {
	s.enrollReq = req
	return domain.Deal{ID: uuid.New(), TenantID: tenantID, Status: domain.StatusActive}, nil
}

func (s *stubService) MoveToStage(_ context.Context, tenantID, dealID, stageID uuid.UUID) (domain.Deal, error) {
	if s.moveErr != nil {
		return domain.Deal{}, s.moveErr
	}
	return domain.Deal{ID: dealID, TenantID: tenantID, CurrentStageID: &stageID, Status: domain.StatusActive}, nil
}

func (s *stubService) ProgressByAction(context.Context, uuid.UUID, string, domain.Action) domain.Result {
	return s.progress
}

func (s *stubService) RecoverStage(context.Context, uuid.UUID, uuid.UUID) domain.Result {
	return domain.Result{Outcome: domain.OutcomeUnmatched, Reason: "no stage matched"}
}

func (s *stubService) RecoverAll(context.Context, uuid.UUID) (domain.RecoveryReport, error) {
	return domain.RecoveryReport{Scanned: 3, Recovered: 2, Unmatched: 1}, nil
}

func newRouter(svc PipelineService, tenantID uuid.UUID, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if authenticated {
			c.Set(httpkit.ContextUserIDKey, uuid.New())
			c.Set(httpkit.ContextTenantIDKey, tenantID)
		}
		c.Next()
	})
	h := New(svc, validator.New())
	r.GET("/pipelines", h.ListPipelines)
	r.GET("/pipelines/:id", h.GetPipeline)
	r.POST("/deals", h.EnrollContact)
	r.GET("/deals/:id", h.GetDeal)
	r.GET("/deals/:id/activities", h.ListActivities)
	r.POST("/deals/:id/move", h.MoveDeal)
	r.POST("/deals/progress", h.ProgressByAction)
	r.POST("/admin/deals/:id/recover", h.RecoverDeal)
	r.POST("/admin/deals/recover", h.RecoverAll)
	return r
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListPipelinesScopesToTenant(t *testing.T) {
	svc := &stubService{}
	tenant := uuid.New()
	w := do(newRouter(svc, tenant, true), http.MethodGet, "/pipelines", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.tenantSeen != tenant {
		t.Fatalf("expected tenant %s, got %s", tenant, svc.tenantSeen)
	}
	var resp transport.PipelineListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Name != "Onboarding" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	w := do(newRouter(&stubService{}, uuid.New(), false), http.MethodGet, "/pipelines", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestGetPipelineMapsNotFound(t *testing.T) {
	w := do(newRouter(&stubService{}, uuid.New(), true), http.MethodGet, "/pipelines/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestInvalidPathIDIsBadRequest(t *testing.T) {
	w := do(newRouter(&stubService{}, uuid.New(), true), http.MethodGet, "/deals/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestEnrollValidatesBody(t *testing.T) {
	svc := &stubService{}
	r := newRouter(svc, uuid.New(), true)

	w := do(r, http.MethodPost, "/deals", map[string]any{"email": "not an address"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email, got %d", w.Code)
	}

	w = do(r, http.MethodPost, "/deals", map[string]any{"email": "jan@example.com", "firstName": "Jan"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.enrollReq.Email != "jan@example.com" {
		t.Fatalf("expected request forwarded, got %+v", svc.enrollReq)
	}
}

func TestMoveDealMapsInvariantViolation(t *testing.T) {
	svc := &stubService{moveErr: apperr.Invariant("stage belongs to another pipeline")}
	w := do(newRouter(svc, uuid.New(), true), http.MethodPost, "/deals/"+uuid.NewString()+"/move", map[string]any{"stageId": uuid.NewString()})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var resp httpkit.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != "invariant_violation" {
		t.Fatalf("expected invariant_violation kind, got %q", resp.Kind)
	}
}

func TestMoveDealRequiresStage(t *testing.T) {
	w := do(newRouter(&stubService{}, uuid.New(), true), http.MethodPost, "/deals/"+uuid.NewString()+"/move", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestProgressStatusFollowsOutcome(t *testing.T) {
	cases := []struct {
		outcome domain.Outcome
		want    int
	}{
		{domain.OutcomeApplied, http.StatusOK},
		{domain.OutcomeNoop, http.StatusOK},
		{domain.OutcomeNotFound, http.StatusNotFound},
		{domain.OutcomeRejected, http.StatusUnprocessableEntity},
		{domain.OutcomeFailed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &stubService{progress: domain.Result{Outcome: tc.outcome}}
		w := do(newRouter(svc, uuid.New(), true), http.MethodPost, "/deals/progress", map[string]any{"email": "a@example.com", "action": "signed_up"})
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.outcome, tc.want, w.Code)
		}
		var resp transport.ResultResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Outcome != string(tc.outcome) {
			t.Fatalf("expected outcome %s, got %s", tc.outcome, resp.Outcome)
		}
	}
}

func TestRecoverEndpoints(t *testing.T) {
	r := newRouter(&stubService{}, uuid.New(), true)

	w := do(r, http.MethodPost, "/admin/deals/"+uuid.NewString()+"/recover", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unmatched, got %d", w.Code)
	}

	w = do(r, http.MethodPost, "/admin/deals/recover", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var report transport.RecoveryReportResponse
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Scanned != 3 || report.Recovered != 2 || report.Unmatched != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestListActivitiesKeepsNewestFirst(t *testing.T) {
	older := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	svc := &stubService{activities: []domain.Activity{
		{ID: uuid.New(), Type: domain.ActivityStatusChange, Description: "Status changed from active to won", CreatedAt: newer},
		{ID: uuid.New(), Type: domain.ActivityStageChange, Description: "Moved from Registered to Listed", CreatedAt: older},
	}}
	r := newRouter(svc, uuid.New(), true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deals/"+uuid.NewString()+"/activities", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body transport.ActivityListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 2 || !body.Items[0].CreatedAt.After(body.Items[1].CreatedAt) {
		t.Fatalf("expected newest first, got %+v", body.Items)
	}
}
