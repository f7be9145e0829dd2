package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/controller"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/dispatch"
	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/handler"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/queue"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/service"
)

const orgID = "org-1"

// --- Mock Repositories ---

type mockCampaignRepo struct {
	repository.CampaignRepositoryInterface
	campaigns  []*model.Campaign
	recipients []*model.CampaignRecipient
}

func (m *mockCampaignRepo) GetByID(ctx context.Context, org, id string) (*model.Campaign, error) {
	for _, c := range m.campaigns {
		if c.ID == id && c.OrganizationID == org {
			cp := *c
			return &cp, nil
		}
	}
	return nil, appErrors.NewCampaignNotFound(id)
}

func (m *mockCampaignRepo) List(ctx context.Context, org string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	var filtered []*model.Campaign
	for _, c := range m.campaigns {
		if c.OrganizationID != org || (status != "" && string(c.Status) != status) {
			continue
		}
		filtered = append(filtered, c)
	}
	total := len(filtered)
	if offset > total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (m *mockCampaignRepo) TransitionStatus(ctx context.Context, org, id string, to model.CampaignStatus, from []model.CampaignStatus) (bool, error) {
	for _, c := range m.campaigns {
		if c.ID != id || c.OrganizationID != org {
			continue
		}
		for _, f := range from {
			if c.Status == f {
				c.Status = to
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockCampaignRepo) CompleteIfDrained(ctx context.Context, org, id string) (bool, error) {
	for _, c := range m.campaigns {
		if c.ID != id || c.Status != model.CampaignActive {
			continue
		}
		for _, r := range m.recipients {
			if r.CampaignID == id && !r.Status.IsTerminal() {
				return false, nil
			}
		}
		c.Status = model.CampaignCompleted
		return true, nil
	}
	return false, nil
}

func (m *mockCampaignRepo) Stats(ctx context.Context, id string) (map[model.RecipientStatus]int, error) {
	stats := map[model.RecipientStatus]int{}
	for _, r := range m.recipients {
		if r.CampaignID == id {
			stats[r.Status]++
		}
	}
	return stats, nil
}

func (m *mockCampaignRepo) ListRecipients(ctx context.Context, campaignID string, offset, limit int) ([]*model.CampaignRecipient, error) {
	var out []*model.CampaignRecipient
	for _, r := range m.recipients {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockLeadRepo struct {
	leads map[string]*model.Lead
}

func (m *mockLeadRepo) GetByID(ctx context.Context, org, id string) (*model.Lead, error) {
	l, ok := m.leads[id]
	if !ok || l.OrganizationID != org {
		return nil, appErrors.NewLeadNotFound(id)
	}
	cp := *l
	return &cp, nil
}

func (m *mockLeadRepo) SetHumanControl(ctx context.Context, org, id, staffID, reason string, at time.Time) error {
	l, ok := m.leads[id]
	if !ok || l.OrganizationID != org {
		return appErrors.NewLeadNotFound(id)
	}
	l.IsHumanControlled = true
	l.HumanControlledBy = &staffID
	l.HumanControlReason = &reason
	l.HumanControlledAt = &at
	return nil
}

func (m *mockLeadRepo) ReleaseHumanControl(ctx context.Context, org, id string) error {
	l, ok := m.leads[id]
	if !ok || l.OrganizationID != org {
		return appErrors.NewLeadNotFound(id)
	}
	l.IsHumanControlled = false
	l.HumanControlledBy, l.HumanControlReason, l.HumanControlledAt = nil, nil, nil
	return nil
}

type mockOrgRepo struct{}

func (m *mockOrgRepo) GetByID(ctx context.Context, id string) (*model.Organization, error) {
	if id != orgID {
		return nil, appErrors.NewOrganizationNotFound(id)
	}
	return &model.Organization{ID: orgID, Name: "Cleveland Rentals", Phone: "216-555-0100"}, nil
}

func (m *mockOrgRepo) GetProperty(ctx context.Context, org, id string) (*model.Property, error) {
	return &model.Property{ID: id, OrganizationID: org, Address: "1420 W 28th St"}, nil
}

type mockConsentRepo struct {
	records []*model.ConsentRecord
}

func (m *mockConsentRepo) ListByLead(ctx context.Context, leadID string) ([]*model.ConsentRecord, error) {
	var out []*model.ConsentRecord
	for _, r := range m.records {
		if r.LeadID == leadID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockConsentRepo) Create(ctx context.Context, rec *model.ConsentRecord) error {
	rec.ID = fmt.Sprintf("consent-%d", len(m.records)+1)
	m.records = append(m.records, rec)
	return nil
}

func (m *mockConsentRepo) Withdraw(ctx context.Context, leadID string, t model.ConsentType, at time.Time) (int64, error) {
	var n int64
	for _, r := range m.records {
		if r.LeadID == leadID && r.ConsentType == t && r.WithdrawnAt == nil {
			r.WithdrawnAt = &at
			n++
		}
	}
	return n, nil
}

type mockTaskRepo struct {
	repository.TaskRepositoryInterface
	tasks map[string]*model.AgentTask
}

func (m *mockTaskRepo) Create(ctx context.Context, t *model.AgentTask) error {
	t.ID = fmt.Sprintf("task-%d", len(m.tasks)+1)
	m.tasks[t.ID] = t
	return nil
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id string) (*model.AgentTask, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, appErrors.NewTaskNotFound(id)
	}
	return t, nil
}

type mockQueue struct {
	published []any
}

func (q *mockQueue) Publish(topic string, payload any) error {
	q.published = append(q.published, payload)
	return nil
}

func (q *mockQueue) Subscribe(topic string, h queue.Handler) error { return nil }

type stubRunner struct {
	res *model.TaskResult
	err error
	inv model.TaskInvocation
}

func (s *stubRunner) Run(ctx context.Context, inv model.TaskInvocation) (*model.TaskResult, error) {
	s.inv = inv
	return s.res, s.err
}

// --- Server ---

type testServer struct {
	handler   http.Handler
	campaigns *mockCampaignRepo
	leads     *mockLeadRepo
	tasks     *mockTaskRepo
	queue     *mockQueue
	runner    *stubRunner
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		campaigns: &mockCampaignRepo{},
		leads: &mockLeadRepo{leads: map[string]*model.Lead{
			"lead-1": {ID: "lead-1", OrganizationID: orgID, FirstName: "Alice", LastName: "Smith", Phone: "+12165550101"},
		}},
		tasks:  &mockTaskRepo{tasks: map[string]*model.AgentTask{}},
		queue:  &mockQueue{},
		runner: &stubRunner{res: &model.TaskResult{Success: true}},
	}
	now := func() time.Time { return time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC) }

	campaignSvc := &service.CampaignService{CampaignRepo: s.campaigns, LeadRepo: s.leads, OrgRepo: &mockOrgRepo{}}
	taskSvc := &service.TaskService{Tasks: s.tasks, Leads: s.leads, Queue: s.queue, Now: now}
	leadHandler := handler.NewLeadHandler(
		&service.HumanControlService{Leads: s.leads, Now: now},
		&service.ConsentService{Leads: s.leads, Consents: &mockConsentRepo{}, Now: now},
	)

	s.handler = controller.NewRouter(
		&controller.CampaignController{CampaignService: campaignSvc},
		&controller.TaskController{TaskService: taskSvc, Runner: s.runner},
		leadHandler,
	)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(handler.OrganizationHeader, orgID)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) addCampaign(id string, status model.CampaignStatus) *model.Campaign {
	c := &model.Campaign{
		ID: id, OrganizationID: orgID, Name: "Campaign " + id, Status: status,
		SMSTemplate: "Hi {first_name} {last_name}, {property} is still available from {org_name}.",
	}
	s.campaigns.campaigns = append(s.campaigns.campaigns, c)
	return c
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

// --- Tests ---

func TestRequiresOrganizationHeader(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	w := httptest.NewRecorder()

	s.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), handler.OrganizationHeader)
}

func TestHealthzIsOpen(t *testing.T) {
	s := newServer(t)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPersonalizedPreviewHandler(t *testing.T) {
	s := newServer(t)
	s.addCampaign("camp-1", model.CampaignDraft)

	w := s.do(t, http.MethodPost, "/campaigns/camp-1/personalized-preview", map[string]interface{}{"lead_id": "lead-1"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res map[string]interface{}
	decode(t, w, &res)
	msg, ok := res["rendered_message"].(string)
	require.True(t, ok, "rendered_message not found or not a string")
	assert.True(t, strings.HasPrefix(msg, "Hi Alice Smith, the property is still available from Cleveland Rentals."), msg)
	assert.Contains(t, msg, "STOP")
	assert.Equal(t, "sms", res["channel"])
}

func TestPersonalizedPreviewOverrideAndErrors(t *testing.T) {
	s := newServer(t)
	s.addCampaign("camp-1", model.CampaignDraft)

	w := s.do(t, http.MethodPost, "/campaigns/camp-1/personalized-preview", map[string]interface{}{
		"lead_id": "lead-1", "channel": "email", "override_template": "Dear {first_name}",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res map[string]interface{}
	decode(t, w, &res)
	assert.Equal(t, "Dear Alice\n\n"+dispatch.EmailOptOut, res["rendered_message"])

	w = s.do(t, http.MethodPost, "/campaigns/camp-1/personalized-preview", map[string]interface{}{"lead_id": "nobody"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/campaigns/camp-1/personalized-preview", map[string]interface{}{"lead_id": "lead-1", "channel": "fax"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/campaigns/camp-1/personalized-preview", strings.NewReader("{"))
	req.Header.Set(handler.OrganizationHeader, orgID)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCampaignsPagination(t *testing.T) {
	s := newServer(t)
	totalCampaigns := 25
	for i := 1; i <= totalCampaigns; i++ {
		s.addCampaign("c"+strconv.Itoa(i), model.CampaignDraft)
	}
	s.addCampaign("other", model.CampaignActive)

	pageSize := 10
	seen := map[string]bool{}
	totalPages := (totalCampaigns + pageSize - 1) / pageSize

	for page := 1; page <= totalPages; page++ {
		w := s.do(t, http.MethodGet, "/campaigns?page="+strconv.Itoa(page)+"&page_size="+strconv.Itoa(pageSize)+"&status=draft", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var res struct {
			Data       []model.Campaign `json:"data"`
			Pagination struct {
				Page       int `json:"page"`
				PageSize   int `json:"page_size"`
				TotalCount int `json:"total_count"`
				TotalPages int `json:"total_pages"`
			} `json:"pagination"`
		}
		decode(t, w, &res)

		assert.Equal(t, page, res.Pagination.Page)
		assert.Equal(t, pageSize, res.Pagination.PageSize)
		assert.Equal(t, totalCampaigns, res.Pagination.TotalCount)
		assert.Equal(t, totalPages, res.Pagination.TotalPages)

		for _, c := range res.Data {
			assert.False(t, seen[c.ID], "duplicate campaign ID %s across pages", c.ID)
			seen[c.ID] = true
			assert.Equal(t, model.CampaignDraft, c.Status)
		}
	}
	assert.Len(t, seen, totalCampaigns)
}

func TestCampaignLifecycleEndpoints(t *testing.T) {
	s := newServer(t)
	s.addCampaign("camp-1", model.CampaignDraft)

	w := s.do(t, http.MethodPost, "/campaigns/camp-1/resume", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/campaigns/camp-1/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var c model.Campaign
	decode(t, w, &c)
	assert.Equal(t, model.CampaignActive, c.Status)

	w = s.do(t, http.MethodPost, "/campaigns/camp-1/pause", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/campaigns/camp-1/resume", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/campaigns/camp-1/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/campaigns/missing/pause", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompleteEndpoint(t *testing.T) {
	s := newServer(t)
	s.addCampaign("camp-1", model.CampaignActive)
	rec := &model.CampaignRecipient{ID: "rec-1", CampaignID: "camp-1", LeadID: "lead-1", Status: model.RecipientQueued}
	s.campaigns.recipients = append(s.campaigns.recipients, rec)

	w := s.do(t, http.MethodPost, "/campaigns/camp-1/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	rec.Status = model.RecipientSent
	w = s.do(t, http.MethodPost, "/campaigns/camp-1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var c model.Campaign
	decode(t, w, &c)
	assert.Equal(t, model.CampaignCompleted, c.Status)
}

func TestCampaignDetailsAndRecipients(t *testing.T) {
	s := newServer(t)
	s.addCampaign("camp-1", model.CampaignActive)
	s.campaigns.recipients = []*model.CampaignRecipient{
		{ID: "rec-1", CampaignID: "camp-1", LeadID: "lead-1", Status: model.RecipientSent},
		{ID: "rec-2", CampaignID: "camp-1", LeadID: "lead-2", Status: model.RecipientSkipped, ErrorMessage: "lead is marked do-not-contact"},
	}

	w := s.do(t, http.MethodGet, "/campaigns/camp-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details struct {
		ID    string         `json:"id"`
		Stats map[string]int `json:"stats"`
	}
	decode(t, w, &details)
	assert.Equal(t, "camp-1", details.ID)
	assert.Equal(t, 2, details.Stats["total"])
	assert.Equal(t, 1, details.Stats["skipped"])

	w = s.do(t, http.MethodGet, "/campaigns/camp-1/recipients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []model.CampaignRecipient `json:"data"`
	}
	decode(t, w, &list)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "lead is marked do-not-contact", list.Data[1].ErrorMessage)
}
