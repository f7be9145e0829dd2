package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
)

// ConsentService appends to the consent ledger. Records are never edited;
// a withdrawal stamps every open record of the type.
type ConsentService struct {
	Leads    repository.LeadRepositoryInterface
	Consents repository.ConsentRepositoryInterface
	Audit    *Auditor
	Now      func() time.Time
}

type ConsentInput struct {
	ConsentType model.ConsentType `json:"consent_type"`
	Granted     bool              `json:"granted"`
	Method      string            `json:"method"`
	Evidence    string            `json:"evidence,omitempty"`
}

func validConsentType(t model.ConsentType) bool {
	switch t {
	case model.ConsentSMS, model.ConsentCall, model.ConsentWhatsApp, model.ConsentEmail, model.ConsentOffHours:
		return true
	}
	return false
}

func (s *ConsentService) List(ctx context.Context, orgID, leadID string) ([]*model.ConsentRecord, error) {
	if _, err := s.Leads.GetByID(ctx, orgID, leadID); err != nil {
		return nil, err
	}
	return s.Consents.ListByLead(ctx, leadID)
}

func (s *ConsentService) Record(ctx context.Context, orgID, leadID string, in ConsentInput) (*model.ConsentRecord, error) {
	if !validConsentType(in.ConsentType) {
		return nil, appErrors.NewValidation("unknown consent type %q", in.ConsentType)
	}
	if strings.TrimSpace(in.Method) == "" {
		return nil, appErrors.NewValidation("consent method is required")
	}
	if _, err := s.Leads.GetByID(ctx, orgID, leadID); err != nil {
		return nil, err
	}
	rec := &model.ConsentRecord{
		LeadID:      leadID,
		ConsentType: in.ConsentType,
		Granted:     in.Granted,
		Method:      strings.TrimSpace(in.Method),
		Evidence:    in.Evidence,
		CreatedAt:   s.now(),
	}
	if err := s.Consents.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("record consent for lead %s: %w", leadID, err)
	}
	verb := "granted"
	if !in.Granted {
		verb = "denied"
	}
	s.Audit.Record(ctx, &model.ActivityLog{
		OrganizationID: orgID,
		AgentKey:       "consent_ledger",
		Action:         "consent_recorded",
		Status:         model.ActivityInfo,
		Message:        fmt.Sprintf("%s consent %s", in.ConsentType, verb),
		Details:        map[string]any{"consent_type": string(in.ConsentType), "granted": in.Granted, "method": rec.Method},
		LeadID:         strPtr(leadID),
	})
	return rec, nil
}

// Withdraw returns the number of records withdrawn.
func (s *ConsentService) Withdraw(ctx context.Context, orgID, leadID string, t model.ConsentType) (int64, error) {
	if !validConsentType(t) {
		return 0, appErrors.NewValidation("unknown consent type %q", t)
	}
	if _, err := s.Leads.GetByID(ctx, orgID, leadID); err != nil {
		return 0, err
	}
	n, err := s.Consents.Withdraw(ctx, leadID, t, s.now())
	if err != nil {
		return 0, fmt.Errorf("withdraw %s consent for lead %s: %w", t, leadID, err)
	}
	s.Audit.Record(ctx, &model.ActivityLog{
		OrganizationID: orgID,
		AgentKey:       "consent_ledger",
		Action:         "consent_withdrawn",
		Status:         model.ActivityInfo,
		Message:        fmt.Sprintf("%s consent withdrawn", t),
		Details:        map[string]any{"consent_type": string(t), "records": n},
		LeadID:         strPtr(leadID),
	})
	return n, nil
}

func (s *ConsentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
