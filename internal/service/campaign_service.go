// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/dispatch"
	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	LeadRepo     repository.LeadRepositoryInterface
	OrgRepo      repository.OrganizationRepositoryInterface
	Audit        *Auditor
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

type Preview struct {
	Channel model.Channel `json:"channel"`
	Subject string        `json:"subject,omitempty"`
	Body    string        `json:"body"`
}

const campaignAgentKey = "campaign_manager"

func (s *CampaignService) Activate(ctx context.Context, orgID, id string) (*model.Campaign, error) {
	return s.transition(ctx, orgID, id, model.CampaignActive)
}

func (s *CampaignService) Pause(ctx context.Context, orgID, id string) (*model.Campaign, error) {
	return s.transition(ctx, orgID, id, model.CampaignPaused)
}

// Resume only applies to paused campaigns; Activate also launches drafts.
func (s *CampaignService) Resume(ctx context.Context, orgID, id string) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignPaused {
		return nil, appErrors.NewInvalidTransition(string(c.Status), string(model.CampaignActive))
	}
	return s.transition(ctx, orgID, id, model.CampaignActive)
}

// Cancel stops the campaign. Pending recipients are skipped as their tasks
// come up for evaluation.
func (s *CampaignService) Cancel(ctx context.Context, orgID, id string) (*model.Campaign, error) {
	return s.transition(ctx, orgID, id, model.CampaignCancelled)
}

// Complete closes an active campaign whose recipients have all resolved.
func (s *CampaignService) Complete(ctx context.Context, orgID, id string) (*model.Campaign, error) {
	ok, err := s.CampaignRepo.CompleteIfDrained(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("complete campaign %s: %w", id, err)
	}
	c, err := s.CampaignRepo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if c.Status != model.CampaignActive {
			return nil, appErrors.NewInvalidTransition(string(c.Status), string(model.CampaignCompleted))
		}
		return nil, appErrors.ErrCampaignNotDrained
	}
	s.auditTransition(ctx, c, "campaign completed")
	return c, nil
}

func (s *CampaignService) transition(ctx context.Context, orgID, id string, to model.CampaignStatus) (*model.Campaign, error) {
	ok, err := s.CampaignRepo.TransitionStatus(ctx, orgID, id, to, model.TransitionSources(to))
	if err != nil {
		return nil, fmt.Errorf("transition campaign %s to %s: %w", id, to, err)
	}
	c, err := s.CampaignRepo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.NewInvalidTransition(string(c.Status), string(to))
	}
	s.auditTransition(ctx, c, "campaign "+string(to))
	return c, nil
}

func (s *CampaignService) auditTransition(ctx context.Context, c *model.Campaign, msg string) {
	logger.Info(msg, "campaign_id", c.ID, "organization_id", c.OrganizationID)
	s.Audit.Record(ctx, &model.ActivityLog{
		OrganizationID: c.OrganizationID,
		AgentKey:       campaignAgentKey,
		Action:         "campaign_status",
		Status:         model.ActivityInfo,
		Message:        msg,
		Details:        map[string]any{"campaign_id": c.ID, "status": string(c.Status)},
	})
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, orgID string, page, pageSize int, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.CampaignRepo.List(ctx, orgID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, orgID, id string) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.CampaignRepo.Stats(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("campaign %s stats: %w", id, err)
	}
	stats := map[string]int{"total": 0}
	for status, n := range counts {
		stats[string(status)] = n
		stats["total"] += n
	}
	return &CampaignDetails{Campaign: c, Stats: stats}, nil
}

// ListRecipients pages through recipients with their resolution reasons.
func (s *CampaignService) ListRecipients(ctx context.Context, orgID, id string, page, pageSize int) ([]*model.CampaignRecipient, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, orgID, id); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}
	return s.CampaignRepo.ListRecipients(ctx, id, (page-1)*pageSize, pageSize)
}

// RenderPreview renders the campaign's template for one lead, exactly as it
// would be sent. override replaces the body template when non-blank.
func (s *CampaignService) RenderPreview(ctx context.Context, orgID, campaignID, leadID string, ch model.Channel, override *string) (*Preview, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	lead, err := s.LeadRepo.GetByID(ctx, orgID, leadID)
	if err != nil {
		return nil, err
	}
	org, err := s.OrgRepo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var prop *model.Property
	if lead.PropertyID != nil {
		if prop, err = s.OrgRepo.GetProperty(ctx, orgID, *lead.PropertyID); err != nil {
			return nil, err
		}
	}

	if ch == "" {
		ch = model.ChannelSMS
	}
	var subject, template string
	switch ch {
	case model.ChannelSMS:
		template = campaign.SMSTemplate
	case model.ChannelEmail:
		subject, template = campaign.EmailSubject, campaign.EmailBody
	case model.ChannelVoice:
		template = campaign.CallScript
	default:
		return nil, fmt.Errorf("%w: %s", appErrors.ErrUnsupportedChannel, ch)
	}
	if override != nil && strings.TrimSpace(*override) != "" {
		template = *override
	}
	if strings.TrimSpace(template) == "" {
		return nil, appErrors.NewValidation("template cannot be empty")
	}

	return &Preview{
		Channel: ch,
		Subject: Personalize(subject, lead, org, prop),
		Body:    dispatch.EnsureOptOut(ch, Personalize(template, lead, org, prop)),
	}, nil
}
