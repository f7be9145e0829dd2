package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

type LeadRepositoryInterface interface {
	GetByID(ctx context.Context, orgID, id string) (*model.Lead, error)
	SetHumanControl(ctx context.Context, orgID, id, staffID, reason string, at time.Time) error
	ReleaseHumanControl(ctx context.Context, orgID, id string) error
}

type LeadRepository struct {
	DB *sql.DB
}

func (r *LeadRepository) GetByID(ctx context.Context, orgID, id string) (*model.Lead, error) {
	query := `
		SELECT id, organization_id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(full_name, ''),
		       COALESCE(phone, ''), COALESCE(email, ''), COALESCE(timezone, ''), property_id,
		       sms_consent, sms_consent_at, call_consent, call_consent_at, whatsapp_consent, whatsapp_consent_at,
		       do_not_contact, is_human_controlled, human_controlled_by, human_controlled_at, human_control_reason
		FROM leads WHERE id=$1 AND organization_id=$2
	`
	var l model.Lead
	err := r.DB.QueryRowContext(ctx, query, id, orgID).Scan(
		&l.ID, &l.OrganizationID, &l.FirstName, &l.LastName, &l.FullName,
		&l.Phone, &l.Email, &l.Timezone, &l.PropertyID,
		&l.SMSConsent, &l.SMSConsentAt, &l.CallConsent, &l.CallConsentAt, &l.WhatsAppConsent, &l.WhatsAppConsentAt,
		&l.DoNotContact, &l.IsHumanControlled, &l.HumanControlledBy, &l.HumanControlledAt, &l.HumanControlReason,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewLeadNotFound(id)
		}
		return nil, err
	}
	return &l, nil
}

func (r *LeadRepository) SetHumanControl(ctx context.Context, orgID, id, staffID, reason string, at time.Time) error {
	query := `
		UPDATE leads
		SET is_human_controlled=TRUE, human_controlled_by=$3, human_controlled_at=$4, human_control_reason=$5
		WHERE id=$1 AND organization_id=$2
	`
	ok, err := execAffected(ctx, r.DB, query, id, orgID, staffID, at, reason)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewLeadNotFound(id)
	}
	return nil
}

// ReleaseHumanControl clears the flag. The by/at/reason columns keep the last
// takeover for the record.
func (r *LeadRepository) ReleaseHumanControl(ctx context.Context, orgID, id string) error {
	query := `UPDATE leads SET is_human_controlled=FALSE WHERE id=$1 AND organization_id=$2`
	ok, err := execAffected(ctx, r.DB, query, id, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewLeadNotFound(id)
	}
	return nil
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
