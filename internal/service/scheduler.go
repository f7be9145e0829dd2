package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/compliance"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/dispatch"
	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/ratelimit"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
)

type ComplianceChecker interface {
	CheckLead(ctx context.Context, lead *model.Lead, org *model.Organization, ch model.Channel, purpose string) (compliance.Decision, error)
}

type RateLimiter interface {
	Reserve(ctx context.Context, campaignID, recipientID string, ceiling *int) (ratelimit.Reservation, error)
}

type ChannelDispatcher interface {
	Dispatch(ctx context.Context, org *model.Organization, ch model.Channel, req dispatch.Request) (*dispatch.Result, error)
}

// DraftRecheck is how long a task for a not-yet-launched campaign waits
// before it is evaluated again.
const DraftRecheck = 15 * time.Minute

// Scheduler evaluates one task invocation end to end: claim, gates, render,
// dispatch and resolution. It holds no state between invocations; every
// decision that races with another worker is settled by a conditional write.
type Scheduler struct {
	Tasks      repository.TaskRepositoryInterface
	Leads      repository.LeadRepositoryInterface
	Orgs       repository.OrganizationRepositoryInterface
	Campaigns  repository.CampaignRepositoryInterface
	Comms      repository.CommunicationRepositoryInterface
	Compliance ComplianceChecker
	Limiter    RateLimiter
	Dispatcher ChannelDispatcher
	Costs      *CostRecorder
	Audit      *Auditor
	Now        func() time.Time
}

type evaluation struct {
	task      *model.AgentTask
	channel   model.Channel
	lead      *model.Lead
	org       *model.Organization
	campaign  *model.Campaign
	recipient *model.CampaignRecipient
	reserved  bool
	started   time.Time
}

func (e *evaluation) result() *model.TaskResult {
	r := &model.TaskResult{Channel: e.channel}
	if e.recipient != nil {
		r.RecipientID = e.recipient.ID
	}
	return r
}

// Run processes one invocation. Business outcomes (skipped, delayed, failed
// dispatch) come back in the result; an error means infrastructure failed and
// the task was returned to pending where that is safe.
func (s *Scheduler) Run(ctx context.Context, inv model.TaskInvocation) (*model.TaskResult, error) {
	started := s.now()
	task, err := s.Tasks.GetByID(ctx, inv.TaskID)
	if err != nil {
		return nil, err
	}
	if (inv.LeadID != "" && inv.LeadID != task.LeadID) ||
		(inv.OrganizationID != "" && inv.OrganizationID != task.OrganizationID) {
		return nil, fmt.Errorf("%w: task %s", appErrors.ErrInvocationMismatch, task.ID)
	}

	e := &evaluation{task: task, channel: task.ActionType.Channel(), started: started}
	if task.Status.IsTerminal() {
		r := e.result()
		r.Success = true
		r.Reason = "task already " + string(task.Status)
		return r, nil
	}

	claimed, err := s.Tasks.Claim(ctx, task.ID, started)
	if err != nil {
		return nil, fmt.Errorf("claim task %s: %w", task.ID, err)
	}
	if !claimed {
		return s.unclaimed(ctx, e)
	}

	if task.Context == nil {
		return s.fail(ctx, e, "invalid task context")
	}

	if e.lead, err = s.Leads.GetByID(ctx, task.OrganizationID, task.LeadID); err != nil {
		if appErrors.IsNotFound(err) {
			return s.fail(ctx, e, "lead not found")
		}
		return s.abort(ctx, e, fmt.Errorf("load lead %s: %w", task.LeadID, err))
	}
	if e.org, err = s.Orgs.GetByID(ctx, task.OrganizationID); err != nil {
		if appErrors.IsNotFound(err) {
			return s.fail(ctx, e, "organization not found")
		}
		return s.abort(ctx, e, fmt.Errorf("load organization %s: %w", task.OrganizationID, err))
	}

	if link := task.Context.Link(); link != nil {
		if e.campaign, err = s.Campaigns.GetByID(ctx, task.OrganizationID, link.CampaignID); err != nil {
			if appErrors.IsNotFound(err) {
				return s.fail(ctx, e, "campaign not found")
			}
			return s.abort(ctx, e, fmt.Errorf("load campaign %s: %w", link.CampaignID, err))
		}
		if e.recipient, err = s.Campaigns.GetRecipient(ctx, link.CampaignID, link.RecipientID); err != nil {
			if appErrors.IsNotFound(err) {
				e.campaign = nil
				return s.fail(ctx, e, "campaign recipient not found")
			}
			return s.abort(ctx, e, fmt.Errorf("load recipient %s: %w", link.RecipientID, err))
		}
		if e.recipient.LeadID != task.LeadID {
			e.campaign, e.recipient = nil, nil
			return s.fail(ctx, e, "campaign recipient belongs to another lead")
		}
	}

	if e.lead.IsHumanControlled {
		return s.skip(ctx, e, "lead is under human control")
	}
	// A takeover voids everything automation had queued for the lead, even
	// once control is handed back.
	if at := e.lead.HumanControlledAt; at != nil && task.CreatedAt.Before(*at) {
		return s.skip(ctx, e, "created before human takeover")
	}

	if e.campaign != nil {
		if e.recipient.Status.IsTerminal() {
			return s.skip(ctx, e, "recipient already "+string(e.recipient.Status))
		}
		switch e.campaign.Status {
		case model.CampaignPaused, model.CampaignCancelled, model.CampaignCompleted:
			return s.skip(ctx, e, "campaign "+string(e.campaign.Status))
		case model.CampaignDraft:
			return s.delay(ctx, e, started.Add(DraftRecheck), "campaign not yet launched")
		}

		res, err := s.Limiter.Reserve(ctx, e.campaign.ID, e.recipient.ID, e.campaign.MaxPerHour)
		if err != nil {
			return s.abort(ctx, e, fmt.Errorf("reserve send for recipient %s: %w", e.recipient.ID, err))
		}
		if res.Stale {
			return s.skip(ctx, e, "recipient already resolved")
		}
		if !res.Allowed {
			ceiling := *e.campaign.MaxPerHour
			return s.delay(ctx, e, started.Add(ratelimit.RescheduleDelay(ceiling)),
				fmt.Sprintf("rate limit reached (%d of %d per hour)", res.Count, ceiling))
		}
		e.reserved = true
	}

	decision, err := s.Compliance.CheckLead(ctx, e.lead, e.org, e.channel, task.Context.MessagePurpose())
	if err != nil {
		return s.abort(ctx, e, fmt.Errorf("compliance check: %w", err))
	}
	if !decision.Allowed {
		return s.skip(ctx, e, decision.Reason)
	}

	comm, err := s.compose(ctx, e)
	if err != nil {
		return s.abort(ctx, e, err)
	}
	if comm.Body == "" && e.channel != model.ChannelVoice {
		return s.fail(ctx, e, fmt.Sprintf("no %s content to send", e.channel))
	}

	meta := map[string]string{
		"task_id":         task.ID,
		"lead_id":         task.LeadID,
		"organization_id": task.OrganizationID,
	}
	if e.campaign != nil {
		meta["campaign_id"] = e.campaign.ID
	}
	res, err := s.Dispatcher.Dispatch(ctx, e.org, e.channel, dispatch.Request{
		To:       comm.Recipient,
		Subject:  comm.Subject,
		Body:     comm.Body,
		Metadata: meta,
	})
	if err != nil {
		return s.dispatchFailed(ctx, e, comm, err)
	}
	return s.delivered(ctx, e, comm, res)
}

// unclaimed explains why the claim lost: someone else finished or holds the
// task, or it is not due yet.
func (s *Scheduler) unclaimed(ctx context.Context, e *evaluation) (*model.TaskResult, error) {
	cur, err := s.Tasks.GetByID(ctx, e.task.ID)
	if err != nil {
		return nil, err
	}
	r := e.result()
	r.Success = true
	switch {
	case cur.Status.IsTerminal():
		r.Reason = "task already " + string(cur.Status)
	case cur.Status == model.TaskInProgress:
		r.Reason = "already in progress"
	default:
		r.Delayed = true
		r.Reason = "scheduled for " + cur.ScheduledFor.UTC().Format(time.RFC3339)
	}
	return r, nil
}

// compose builds the outgoing communication: address, personalized subject and
// body with the opt-out line already in place.
func (s *Scheduler) compose(ctx context.Context, e *evaluation) (*model.Communication, error) {
	var prop *model.Property
	if e.lead.PropertyID != nil {
		p, err := s.Orgs.GetProperty(ctx, e.task.OrganizationID, *e.lead.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("load property %s: %w", *e.lead.PropertyID, err)
		}
		prop = p
	}

	var c model.Campaign
	if e.campaign != nil {
		c = *e.campaign
	}
	var subject, body string
	switch tc := e.task.Context.(type) {
	case model.SMSContext:
		body = firstNonBlank(tc.Template, c.SMSTemplate)
	case model.EmailContext:
		subject = firstNonBlank(tc.Subject, c.EmailSubject)
		body = firstNonBlank(tc.Body, c.EmailBody)
	case model.CallContext:
		body = firstNonBlank(tc.Script, c.CallScript)
	}

	comm := &model.Communication{
		OrganizationID: e.task.OrganizationID,
		LeadID:         e.task.LeadID,
		TaskID:         e.task.ID,
		Channel:        e.channel,
		Direction:      "outbound",
		Recipient:      e.lead.ContactFor(e.channel),
	}
	if e.campaign != nil {
		comm.CampaignID = &e.campaign.ID
	}
	if subject != "" {
		comm.Subject = Personalize(subject, e.lead, e.org, prop)
	}
	if body != "" {
		comm.Body = dispatch.EnsureOptOut(e.channel, Personalize(body, e.lead, e.org, prop))
	}
	return comm, nil
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (s *Scheduler) delivered(ctx context.Context, e *evaluation, comm *model.Communication, res *dispatch.Result) (*model.TaskResult, error) {
	sentAt := res.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	comm.Status = model.CommunicationSent
	comm.ProviderMessageID = res.ProviderID
	comm.SentAt = &sentAt

	if err := s.Comms.Create(ctx, comm); err != nil {
		return s.unrecorded(ctx, e, res, err)
	}

	if s.Costs != nil {
		if _, err := s.Costs.Record(ctx, comm); err != nil {
			logger.Error("failed to record cost", "communication_id", comm.ID, "error", err)
		}
	}

	if e.recipient != nil {
		ok, err := s.Campaigns.MarkRecipientSent(ctx, e.campaign.ID, e.recipient.ID, comm.ID, sentAt)
		switch {
		case err != nil:
			logger.Alert("sent but recipient not marked", "recipient_id", e.recipient.ID,
				"communication_id", comm.ID, "error", err)
		case !ok:
			logger.Warn("recipient resolved elsewhere before send was recorded", "recipient_id", e.recipient.ID)
		}
		s.completeIfDrained(ctx, e)
	}

	resolved, err := s.Tasks.Resolve(ctx, e.task.ID, model.TaskCompleted, &comm.ID, "")
	if err != nil {
		logger.Alert("sent but task not resolved", "task_id", e.task.ID, "communication_id", comm.ID, "error", err)
		return nil, fmt.Errorf("resolve task %s: %w", e.task.ID, err)
	}
	if !resolved {
		logger.Warn("task resolved elsewhere after send", "task_id", e.task.ID)
	}

	s.audit(ctx, e, model.ActivitySuccess, fmt.Sprintf("%s sent", e.channel),
		map[string]any{"communication_id": comm.ID, "provider_id": res.ProviderID})

	r := e.result()
	r.Success = true
	r.CommunicationID = comm.ID
	return r, nil
}

// unrecorded handles a provider success whose communication row could not be
// written. A call must never be placed twice, so the task stays in_progress
// for reconciliation; texts and emails go back to pending.
func (s *Scheduler) unrecorded(ctx context.Context, e *evaluation, res *dispatch.Result, cause error) (*model.TaskResult, error) {
	if e.channel == model.ChannelVoice {
		logger.Alert("call placed but not recorded, reconciliation required",
			"task_id", e.task.ID, "provider_id", res.ProviderID, "error", cause)
		s.audit(ctx, e, model.ActivityFailure, "call placed but not recorded",
			map[string]any{"provider_id": res.ProviderID, "error": cause.Error()})
		r := e.result()
		r.Error = "call placed but record write failed; reconciliation required"
		return r, nil
	}
	logger.Alert("message sent but not recorded, releasing task",
		"task_id", e.task.ID, "provider_id", res.ProviderID, "error", cause)
	return s.abort(ctx, e, fmt.Errorf("record communication for task %s: %w", e.task.ID, cause))
}

func (s *Scheduler) dispatchFailed(ctx context.Context, e *evaluation, comm *model.Communication, cause error) (*model.TaskResult, error) {
	kind := appErrors.DispatchKindOf(cause)
	reason := cause.Error()

	comm.Status = model.CommunicationFailed
	comm.ErrorMessage = reason
	var ref *string
	if err := s.Comms.Create(ctx, comm); err != nil {
		logger.Error("failed to record failed communication", "task_id", e.task.ID, "error", err)
	} else {
		ref = &comm.ID
	}

	if _, err := s.Tasks.Resolve(ctx, e.task.ID, model.TaskFailed, ref, reason); err != nil {
		return nil, fmt.Errorf("resolve task %s: %w", e.task.ID, err)
	}
	if e.recipient != nil {
		if _, err := s.Campaigns.ResolveRecipient(ctx, e.recipient.ID, model.RecipientFailed, reason); err != nil {
			logger.Error("failed to mark recipient failed", "recipient_id", e.recipient.ID, "error", err)
		}
		s.completeIfDrained(ctx, e)
	}

	if kind == appErrors.KindConfiguration {
		logger.Alert("provider configuration error", "organization_id", e.task.OrganizationID,
			"channel", e.channel, "error", cause)
	}
	s.audit(ctx, e, model.ActivityFailure, fmt.Sprintf("%s dispatch failed", e.channel),
		map[string]any{"kind": string(kind), "error": reason})

	r := e.result()
	if ref != nil {
		r.CommunicationID = *ref
	}
	r.Error = reason
	return r, nil
}

// skip cancels the task and, for campaign tasks, resolves the recipient as
// skipped. Skips are never retried.
func (s *Scheduler) skip(ctx context.Context, e *evaluation, reason string) (*model.TaskResult, error) {
	if e.recipient != nil && !e.recipient.Status.IsTerminal() {
		if _, err := s.Campaigns.ResolveRecipient(ctx, e.recipient.ID, model.RecipientSkipped, reason); err != nil {
			return s.abort(ctx, e, fmt.Errorf("skip recipient %s: %w", e.recipient.ID, err))
		}
		if e.campaign.Status == model.CampaignActive {
			s.completeIfDrained(ctx, e)
		}
	}
	if _, err := s.Tasks.Resolve(ctx, e.task.ID, model.TaskCancelled, nil, reason); err != nil {
		return nil, fmt.Errorf("cancel task %s: %w", e.task.ID, err)
	}
	logger.Info("task skipped", "task_id", e.task.ID, "reason", reason)
	s.audit(ctx, e, model.ActivitySkipped, "skipped: "+reason, nil)

	r := e.result()
	r.Success = true
	r.Skipped = true
	r.Reason = reason
	return r, nil
}

func (s *Scheduler) delay(ctx context.Context, e *evaluation, at time.Time, reason string) (*model.TaskResult, error) {
	if err := s.Tasks.Reschedule(ctx, e.task.ID, at, reason); err != nil {
		return s.abort(ctx, e, fmt.Errorf("reschedule task %s: %w", e.task.ID, err))
	}
	s.audit(ctx, e, model.ActivityDelayed, reason, map[string]any{"scheduled_for": at.UTC().Format(time.RFC3339)})

	r := e.result()
	r.Success = true
	r.Delayed = true
	r.Reason = reason
	return r, nil
}

// fail resolves the task failed without a dispatch attempt.
func (s *Scheduler) fail(ctx context.Context, e *evaluation, reason string) (*model.TaskResult, error) {
	if _, err := s.Tasks.Resolve(ctx, e.task.ID, model.TaskFailed, nil, reason); err != nil {
		return nil, fmt.Errorf("fail task %s: %w", e.task.ID, err)
	}
	if e.recipient != nil && !e.recipient.Status.IsTerminal() {
		if _, err := s.Campaigns.ResolveRecipient(ctx, e.recipient.ID, model.RecipientFailed, reason); err != nil {
			logger.Error("failed to mark recipient failed", "recipient_id", e.recipient.ID, "error", err)
		}
		s.completeIfDrained(ctx, e)
	}
	s.audit(ctx, e, model.ActivityFailure, reason, nil)

	r := e.result()
	r.Error = reason
	return r, nil
}

// abort hands the task back to pending and reports the infrastructure error.
// A reserved rate slot is given back with it.
func (s *Scheduler) abort(ctx context.Context, e *evaluation, cause error) (*model.TaskResult, error) {
	if e.reserved {
		if _, err := s.Campaigns.ReleaseRecipient(ctx, e.recipient.ID); err != nil {
			logger.Error("failed to release recipient", "recipient_id", e.recipient.ID, "error", err)
		}
	}
	if err := s.Tasks.Release(ctx, e.task.ID); err != nil {
		logger.Error("failed to release task", "task_id", e.task.ID, "error", err)
	}
	return nil, cause
}

func (s *Scheduler) completeIfDrained(ctx context.Context, e *evaluation) {
	done, err := s.Campaigns.CompleteIfDrained(ctx, e.task.OrganizationID, e.campaign.ID)
	if err != nil {
		logger.Error("campaign completion check failed", "campaign_id", e.campaign.ID, "error", err)
		return
	}
	if done {
		logger.Info("campaign completed", "campaign_id", e.campaign.ID)
		s.Audit.Record(ctx, &model.ActivityLog{
			OrganizationID: e.task.OrganizationID,
			AgentKey:       campaignAgentKey,
			Action:         "campaign_status",
			Status:         model.ActivityInfo,
			Message:        "campaign completed",
			Details:        map[string]any{"campaign_id": e.campaign.ID, "status": string(model.CampaignCompleted)},
		})
	}
}

func (s *Scheduler) audit(ctx context.Context, e *evaluation, status model.ActivityStatus, msg string, extra map[string]any) {
	details := map[string]any{
		"task_id": e.task.ID,
		"channel": string(e.channel),
	}
	if e.campaign != nil {
		details["campaign_id"] = e.campaign.ID
	}
	if e.recipient != nil {
		details["recipient_id"] = e.recipient.ID
	}
	for k, v := range extra {
		details[k] = v
	}
	s.Audit.Record(ctx, &model.ActivityLog{
		OrganizationID: e.task.OrganizationID,
		AgentKey:       e.task.AgentType,
		Action:         string(e.task.ActionType),
		Status:         status,
		Message:        msg,
		Details:        details,
		LeadID:         strPtr(e.task.LeadID),
		ExecutionMS:    s.now().Sub(e.started).Milliseconds(),
	})
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
