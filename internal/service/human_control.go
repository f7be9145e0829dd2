package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
)

// HumanControlService moves a lead between automated and staff-handled.
// While a lead is human-controlled the scheduler skips every task for it.
type HumanControlService struct {
	Leads repository.LeadRepositoryInterface
	Audit *Auditor
	Now   func() time.Time
}

const humanControlAgentKey = "human_control"

func (s *HumanControlService) TakeControl(ctx context.Context, orgID, leadID, staffID, reason string) (*model.Lead, error) {
	staffID, reason = strings.TrimSpace(staffID), strings.TrimSpace(reason)
	if staffID == "" {
		return nil, appErrors.ErrStaffRequired
	}
	if reason == "" {
		return nil, appErrors.ErrReasonRequired
	}
	if err := s.Leads.SetHumanControl(ctx, orgID, leadID, staffID, reason, s.now()); err != nil {
		return nil, err
	}
	lead, err := s.Leads.GetByID(ctx, orgID, leadID)
	if err != nil {
		return nil, err
	}
	logger.Info("lead taken under manual control", "lead_id", leadID, "staff_id", staffID)
	s.Audit.Record(ctx, &model.ActivityLog{
		OrganizationID: orgID,
		AgentKey:       humanControlAgentKey,
		Action:         "take_control",
		Status:         model.ActivityInfo,
		Message:        fmt.Sprintf("manual control taken by %s", staffID),
		Details:        map[string]any{"staff_id": staffID, "reason": reason},
		LeadID:         strPtr(leadID),
	})
	return lead, nil
}

// Release hands the lead back to automation. Tasks already skipped stay
// skipped.
func (s *HumanControlService) Release(ctx context.Context, orgID, leadID, staffID string) (*model.Lead, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, appErrors.ErrStaffRequired
	}
	if err := s.Leads.ReleaseHumanControl(ctx, orgID, leadID); err != nil {
		return nil, err
	}
	lead, err := s.Leads.GetByID(ctx, orgID, leadID)
	if err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, &model.ActivityLog{
		OrganizationID: orgID,
		AgentKey:       humanControlAgentKey,
		Action:         "release_control",
		Status:         model.ActivityInfo,
		Message:        fmt.Sprintf("manual control released by %s", staffID),
		Details:        map[string]any{"staff_id": staffID},
		LeadID:         strPtr(leadID),
	})
	return lead, nil
}

func (s *HumanControlService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
