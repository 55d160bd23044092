package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"outreach_backend/internal/pipeline/domain"
	"outreach_backend/internal/pipeline/repository"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory PipelineRepository. Transition holds a mutex for
// the duration of fn, mirroring the row lock of the SQL implementation.
type fakeRepo struct {
	mu         sync.Mutex
	pipelines  map[uuid.UUID]domain.Pipeline
	stages     map[uuid.UUID]domain.Stage
	contacts   map[uuid.UUID]domain.Contact
	deals      map[uuid.UUID]domain.Deal
	activities map[uuid.UUID][]domain.Activity

	transitionErr error
	listStagesErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		pipelines:  make(map[uuid.UUID]domain.Pipeline),
		stages:     make(map[uuid.UUID]domain.Stage),
		contacts:   make(map[uuid.UUID]domain.Contact),
		deals:      make(map[uuid.UUID]domain.Deal),
		activities: make(map[uuid.UUID][]domain.Activity),
	}
}

func (f *fakeRepo) addPipeline(tenantID uuid.UUID, name string, active bool, stages ...domain.Stage) (domain.Pipeline, []domain.Stage) {
	p := domain.Pipeline{ID: uuid.New(), TenantID: tenantID, Name: name, IsActive: active}
	f.pipelines[p.ID] = p
	out := make([]domain.Stage, 0, len(stages))
	for i, s := range stages {
		s.ID = uuid.New()
		s.PipelineID = p.ID
		if s.Order == 0 {
			s.Order = i
		}
		f.stages[s.ID] = s
		out = append(out, s)
	}
	return p, out
}

func (f *fakeRepo) addContact(tenantID uuid.UUID, email string) domain.Contact {
	c := domain.Contact{ID: uuid.New(), TenantID: tenantID, Email: email}
	f.contacts[c.ID] = c
	return c
}

func (f *fakeRepo) addDeal(d domain.Deal) domain.Deal {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = domain.StatusActive
	}
	f.deals[d.ID] = d
	return d
}

func (f *fakeRepo) deal(id uuid.UUID) domain.Deal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deals[id]
}

func (f *fakeRepo) activityCount(dealID uuid.UUID, t domain.ActivityType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.activities[dealID] {
		if a.Type == t {
			n++
		}
	}
	return n
}

func (f *fakeRepo) ListPipelines(_ context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Pipeline
	for _, p := range f.pipelines {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) GetPipeline(_ context.Context, tenantID, pipelineID uuid.UUID) (domain.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pipelines[pipelineID]
	if !ok || p.TenantID != tenantID {
		return domain.Pipeline{}, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) ListActivePipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	all, _ := f.ListPipelines(ctx, tenantID)
	var out []domain.Pipeline
	for _, p := range all {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListStages(_ context.Context, pipelineID uuid.UUID) ([]domain.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listStagesErr != nil {
		return nil, f.listStagesErr
	}
	var out []domain.Stage
	for _, s := range f.stages {
		if s.PipelineID == pipelineID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeRepo) GetStage(_ context.Context, stageID uuid.UUID) (domain.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stages[stageID]
	if !ok {
		return domain.Stage{}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) CreatePipeline(_ context.Context, params repository.CreatePipelineParams) (domain.Pipeline, bool, error) {
	f.mu.Lock()
	for _, p := range f.pipelines {
		if p.TenantID == params.TenantID && strings.EqualFold(p.Name, params.Name) {
			f.mu.Unlock()
			return p, false, nil
		}
	}
	f.mu.Unlock()

	stages := make([]domain.Stage, 0, len(params.Stages))
	for _, s := range params.Stages {
		stages = append(stages, domain.Stage{
			Name:              s.Name,
			Order:             s.Order,
			IsTerminal:        s.IsTerminal,
			DaysUntilFollowup: s.DaysUntilFollowup,
			AutoTemplate:      s.AutoTemplate,
		})
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, _ := f.addPipeline(params.TenantID, params.Name, params.IsActive, stages...)
	return p, true, nil
}

func (f *fakeRepo) FindContactByEmail(_ context.Context, tenantID uuid.UUID, email string) (domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.TenantID == tenantID && strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return domain.Contact{}, repository.ErrNotFound
}

func (f *fakeRepo) UpsertContact(ctx context.Context, params repository.UpsertContactParams) (domain.Contact, error) {
	if c, err := f.FindContactByEmail(ctx, params.TenantID, params.Email); err == nil {
		return c, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := domain.Contact{
		ID:        uuid.New(),
		TenantID:  params.TenantID,
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Phone:     params.Phone,
	}
	f.contacts[c.ID] = c
	return c, nil
}

func (f *fakeRepo) GetDeal(_ context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deals[dealID]
	if !ok || d.TenantID != tenantID {
		return domain.Deal{}, repository.ErrNotFound
	}
	return d, nil
}

func (f *fakeRepo) FindActiveDeal(_ context.Context, contactID, pipelineID uuid.UUID) (domain.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deals {
		if d.ContactID == contactID && d.PipelineID == pipelineID && d.Status == domain.StatusActive {
			return d, nil
		}
	}
	return domain.Deal{}, repository.ErrNotFound
}

func (f *fakeRepo) FindLatestDeal(_ context.Context, contactID, pipelineID uuid.UUID) (domain.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Deal
	for _, d := range f.deals {
		if d.ContactID != contactID || d.PipelineID != pipelineID {
			continue
		}
		if latest == nil || d.UpdatedAt.After(latest.UpdatedAt) {
			d := d
			latest = &d
		}
	}
	if latest == nil {
		return domain.Deal{}, repository.ErrNotFound
	}
	return *latest, nil
}

func (f *fakeRepo) ListUnstagedDeals(_ context.Context, tenantID uuid.UUID, after uuid.UUID, limit int) ([]domain.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Deal
	for _, d := range f.deals {
		if d.TenantID == tenantID && d.CurrentStageID == nil && strings.Compare(d.ID.String(), after.String()) > 0 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) AppendActivity(_ context.Context, dealID uuid.UUID, entry domain.ActivityEntry, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities[dealID] = append(f.activities[dealID], domain.Activity{
		ID:          uuid.New(),
		DealID:      dealID,
		Type:        entry.Type,
		Description: entry.Description,
		CreatedAt:   at,
	})
	return nil
}

func (f *fakeRepo) ListActivities(_ context.Context, dealID uuid.UUID) ([]domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Activity(nil), f.activities[dealID]...), nil
}

func (f *fakeRepo) CreateDeal(_ context.Context, params repository.CreateDealParams) (domain.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deals {
		if d.ContactID == params.ContactID && d.PipelineID == params.PipelineID && d.Status == domain.StatusActive {
			return domain.Deal{}, repository.ErrDuplicateActiveDeal
		}
	}
	stageID := params.StageID
	entered := params.EnteredAt
	d := f.addDeal(domain.Deal{
		TenantID:       params.TenantID,
		ContactID:      params.ContactID,
		PipelineID:     params.PipelineID,
		CurrentStageID: &stageID,
		StageEnteredAt: &entered,
		NextActionDate: params.NextActionDate,
	})
	f.activities[d.ID] = append(f.activities[d.ID], domain.Activity{ID: uuid.New(), DealID: d.ID, Type: domain.ActivityStageChange})
	return d, nil
}

func (f *fakeRepo) Transition(_ context.Context, tenantID, dealID uuid.UUID, fn repository.TransitionFunc) (domain.Deal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionErr != nil {
		return domain.Deal{}, false, f.transitionErr
	}

	d, ok := f.deals[dealID]
	if !ok || d.TenantID != tenantID {
		return domain.Deal{}, false, repository.ErrNotFound
	}
	var current *domain.Stage
	if d.CurrentStageID != nil {
		if s, ok := f.stages[*d.CurrentStageID]; ok {
			current = &s
		}
	}

	change, err := fn(d, current)
	if err != nil {
		return domain.Deal{}, false, err
	}
	if change == nil {
		return d, false, nil
	}

	updated := change.Apply(d)
	f.deals[dealID] = updated
	for _, a := range change.Activities {
		f.activities[dealID] = append(f.activities[dealID], domain.Activity{
			ID:          uuid.New(),
			DealID:      dealID,
			Type:        a.Type,
			Description: a.Description,
			CreatedAt:   change.StageEnteredAt,
		})
	}
	return updated, true, nil
}

var errBoom = errors.New("boom")
