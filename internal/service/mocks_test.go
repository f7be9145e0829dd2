package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/queue"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/ratelimit"
)

// Mock repositories. Each keeps rows in memory and applies the same
// conditional-write rules as the SQL it stands in for.

type mockTaskRepo struct {
	mu       sync.Mutex
	tasks    map[string]*model.AgentTask
	releases int
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: map[string]*model.AgentTask{}}
}

func (m *mockTaskRepo) Create(ctx context.Context, t *model.AgentTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = fmt.Sprintf("task-%d", len(m.tasks)+1)
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id string) (*model.AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, appErrors.NewTaskNotFound(id)
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.TaskPending || t.ScheduledFor.After(now) {
		return false, nil
	}
	t.Status = model.TaskInProgress
	t.ClaimedAt = &now
	t.Attempts++
	return true, nil
}

func (m *mockTaskRepo) Reschedule(ctx context.Context, id string, at time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok && t.Status == model.TaskInProgress {
		t.Status = model.TaskPending
		t.ScheduledFor = at
		t.ResultReason = reason
		t.ClaimedAt = nil
	}
	return nil
}

func (m *mockTaskRepo) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	if t, ok := m.tasks[id]; ok && t.Status == model.TaskInProgress {
		t.Status = model.TaskPending
		t.ClaimedAt = nil
	}
	return nil
}

func (m *mockTaskRepo) Resolve(ctx context.Context, id string, status model.TaskStatus, ref *string, reason string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("not terminal: %s", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.TaskInProgress {
		return false, nil
	}
	now := time.Now()
	t.Status = status
	t.ResultRef = ref
	t.ResultReason = reason
	t.CompletedAt = &now
	return true, nil
}

func (m *mockTaskRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.AgentTask, error) {
	return m.filter(limit, func(t *model.AgentTask) bool {
		return t.Status == model.TaskPending && !t.ScheduledFor.After(now)
	}), nil
}

func (m *mockTaskRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.AgentTask, error) {
	return m.filter(limit, func(t *model.AgentTask) bool {
		return t.Status == model.TaskInProgress && t.ClaimedAt != nil && t.ClaimedAt.Before(before)
	}), nil
}

func (m *mockTaskRepo) filter(limit int, keep func(*model.AgentTask) bool) []*model.AgentTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AgentTask
	for _, t := range m.tasks {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *mockTaskRepo) get(id string) *model.AgentTask {
	t, _ := m.GetByID(context.Background(), id)
	return t
}

type mockLeadRepo struct {
	mu    sync.Mutex
	leads map[string]*model.Lead
}

func (m *mockLeadRepo) GetByID(ctx context.Context, orgID, id string) (*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok || l.OrganizationID != orgID {
		return nil, appErrors.NewLeadNotFound(id)
	}
	cp := *l
	return &cp, nil
}

func (m *mockLeadRepo) SetHumanControl(ctx context.Context, orgID, id, staffID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok || l.OrganizationID != orgID {
		return appErrors.NewLeadNotFound(id)
	}
	l.IsHumanControlled = true
	l.HumanControlledBy = &staffID
	l.HumanControlledAt = &at
	l.HumanControlReason = &reason
	return nil
}

func (m *mockLeadRepo) ReleaseHumanControl(ctx context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok || l.OrganizationID != orgID {
		return appErrors.NewLeadNotFound(id)
	}
	l.IsHumanControlled = false
	return nil
}

type mockOrgRepo struct {
	orgs    map[string]*model.Organization
	props   map[string]*model.Property
	propErr error
}

func (m *mockOrgRepo) GetByID(ctx context.Context, id string) (*model.Organization, error) {
	if o, ok := m.orgs[id]; ok {
		return o, nil
	}
	return nil, appErrors.NewOrganizationNotFound(id)
}

func (m *mockOrgRepo) GetProperty(ctx context.Context, orgID, id string) (*model.Property, error) {
	if m.propErr != nil {
		return nil, m.propErr
	}
	if p, ok := m.props[id]; ok && p.OrganizationID == orgID {
		return p, nil
	}
	return nil, nil
}

type mockConsentRepo struct {
	mu      sync.Mutex
	records []*model.ConsentRecord
}

func (m *mockConsentRepo) ListByLead(ctx context.Context, leadID string) ([]*model.ConsentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ConsentRecord
	for _, r := range m.records {
		if r.LeadID == leadID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockConsentRepo) Create(ctx context.Context, rec *model.ConsentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("consent-%d", len(m.records)+1)
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockConsentRepo) Withdraw(ctx context.Context, leadID string, t model.ConsentType, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.LeadID == leadID && r.ConsentType == t && r.WithdrawnAt == nil {
			r.WithdrawnAt = &at
			n++
		}
	}
	return n, nil
}

type mockCampaignRepo struct {
	mu         sync.Mutex
	campaigns  map[string]*model.Campaign
	recipients map[string]*model.CampaignRecipient
	order      []string
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: map[string]*model.Campaign{}, recipients: map[string]*model.CampaignRecipient{}}
}

func (m *mockCampaignRepo) addRecipient(r *model.CampaignRecipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.ID] = r
	m.order = append(m.order, r.ID)
}

func (m *mockCampaignRepo) GetByID(ctx context.Context, orgID, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) List(ctx context.Context, orgID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.Campaign
	for _, c := range m.campaigns {
		if c.OrganizationID == orgID && (status == "" || string(c.Status) == status) {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *mockCampaignRepo) TransitionStatus(ctx context.Context, orgID, id string, to model.CampaignStatus, from []model.CampaignStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return false, nil
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCampaignRepo) CompleteIfDrained(ctx context.Context, orgID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrganizationID != orgID || c.Status != model.CampaignActive {
		return false, nil
	}
	for _, r := range m.recipients {
		if r.CampaignID == id && !r.Status.IsTerminal() {
			return false, nil
		}
	}
	now := time.Now()
	c.Status = model.CampaignCompleted
	c.CompletedAt = &now
	return true, nil
}

func (m *mockCampaignRepo) Stats(ctx context.Context, id string) (map[model.RecipientStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[model.RecipientStatus]int{
		model.RecipientPending: 0, model.RecipientQueued: 0, model.RecipientSent: 0,
		model.RecipientSkipped: 0, model.RecipientFailed: 0,
	}
	for _, r := range m.recipients {
		if r.CampaignID == id {
			stats[r.Status]++
		}
	}
	return stats, nil
}

func (m *mockCampaignRepo) GetRecipient(ctx context.Context, campaignID, id string) (*model.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok || r.CampaignID != campaignID {
		return nil, appErrors.NewRecipientNotFound(id)
	}
	cp := *r
	return &cp, nil
}

func (m *mockCampaignRepo) ListRecipients(ctx context.Context, campaignID string, offset, limit int) ([]*model.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.CampaignRecipient
	for _, id := range m.order {
		if r := m.recipients[id]; r.CampaignID == campaignID {
			cp := *r
			all = append(all, &cp)
		}
	}
	if offset >= len(all) {
		return []*model.CampaignRecipient{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockCampaignRepo) MarkRecipientSent(ctx context.Context, campaignID, id, commID string, sentAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok || r.CampaignID != campaignID || r.Status.IsTerminal() {
		return false, nil
	}
	r.Status = model.RecipientSent
	r.SentAt = &sentAt
	r.CommunicationID = &commID
	m.campaigns[campaignID].SentCount++
	return true, nil
}

func (m *mockCampaignRepo) ResolveRecipient(ctx context.Context, id string, status model.RecipientStatus, reason string) (bool, error) {
	if status != model.RecipientSkipped && status != model.RecipientFailed {
		return false, fmt.Errorf("cannot resolve recipient as %s", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok || r.Status.IsTerminal() {
		return false, nil
	}
	r.Status = status
	r.ErrorMessage = reason
	return true, nil
}

func (m *mockCampaignRepo) ReleaseRecipient(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok || r.Status != model.RecipientQueued {
		return false, nil
	}
	r.Status = model.RecipientPending
	r.QueuedAt = nil
	return true, nil
}

func (m *mockCampaignRepo) recipient(id string) model.CampaignRecipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.recipients[id]
}

func (m *mockCampaignRepo) campaign(id string) model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

// mockLimiter counts the same sliding window as ratelimit.Limiter over the
// mock recipient rows.
type mockLimiter struct {
	campaigns *mockCampaignRepo
	now       func() time.Time
}

func (l *mockLimiter) Reserve(ctx context.Context, campaignID, recipientID string, ceiling *int) (ratelimit.Reservation, error) {
	m := l.campaigns
	m.mu.Lock()
	defer m.mu.Unlock()
	now := l.now()
	since := now.Add(-ratelimit.Window)
	count := 0
	for _, r := range m.recipients {
		if r.CampaignID != campaignID || r.ID == recipientID {
			continue
		}
		if (r.Status == model.RecipientSent && r.SentAt != nil && r.SentAt.After(since)) ||
			(r.Status == model.RecipientQueued && r.QueuedAt != nil && r.QueuedAt.After(since)) {
			count++
		}
	}
	if !ratelimit.Evaluate(count, ceiling) {
		return ratelimit.Reservation{Count: count}, nil
	}
	r, ok := m.recipients[recipientID]
	if !ok || r.Status.IsTerminal() {
		return ratelimit.Reservation{Stale: true}, nil
	}
	r.Status = model.RecipientQueued
	r.QueuedAt = &now
	return ratelimit.Reservation{Allowed: true, Count: count}, nil
}

type mockCommRepo struct {
	mu        sync.Mutex
	comms     []*model.Communication
	createErr error
}

func (m *mockCommRepo) Create(ctx context.Context, c *model.Communication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	c.ID = fmt.Sprintf("comm-%d", len(m.comms)+1)
	m.comms = append(m.comms, c)
	return nil
}

func (m *mockCommRepo) GetByID(ctx context.Context, id string) (*model.Communication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.comms {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockCommRepo) all() []*model.Communication {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Communication(nil), m.comms...)
}

type mockCostRepo struct {
	mu      sync.Mutex
	entries []*model.CostEntry
}

func (m *mockCostRepo) Create(ctx context.Context, e *model.CostEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

type mockActivityRepo struct {
	mu      sync.Mutex
	entries []*model.ActivityLog
}

func (m *mockActivityRepo) Create(ctx context.Context, a *model.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, a)
	return nil
}

func (m *mockActivityRepo) ListByLead(ctx context.Context, orgID, leadID string, limit int) ([]*model.ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ActivityLog
	for _, a := range m.entries {
		if a.OrganizationID == orgID && a.LeadID != nil && *a.LeadID == leadID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockActivityRepo) withStatus(s model.ActivityStatus) []*model.ActivityLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ActivityLog
	for _, a := range m.entries {
		if a.Status == s {
			out = append(out, a)
		}
	}
	return out
}

type mockQueue struct {
	mu        sync.Mutex
	published []any
}

func (q *mockQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, payload)
	return nil
}

func (q *mockQueue) Subscribe(topic string, handler queue.Handler) error { return nil }
