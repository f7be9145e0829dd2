package repository

import (
	"context"
	"database/sql"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

type OrganizationRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Organization, error)
	GetProperty(ctx context.Context, orgID, id string) (*model.Property, error)
}

type OrganizationRepository struct {
	DB *sql.DB
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*model.Organization, error) {
	query := `
		SELECT id, name, phone, timezone,
		       messaging_account_id, messaging_secret, messaging_sender,
		       email_api_key, email_api_secret, email_region, email_from,
		       voice_api_key, voice_caller_id
		FROM organizations WHERE id=$1
	`
	var o model.Organization
	c := &o.Credentials
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.Name, &o.Phone, &o.Timezone,
		&c.MessagingAccountID, &c.MessagingSecret, &c.MessagingSender,
		&c.EmailAPIKey, &c.EmailAPISecret, &c.EmailRegion, &c.EmailFrom,
		&c.VoiceAPIKey, &c.VoiceCallerID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewOrganizationNotFound(id)
		}
		return nil, err
	}
	return &o, nil
}

// GetProperty returns nil, nil when the property does not exist; rendering
// falls back to a generic phrase.
func (r *OrganizationRepository) GetProperty(ctx context.Context, orgID, id string) (*model.Property, error) {
	query := `SELECT id, organization_id, address FROM properties WHERE id=$1 AND organization_id=$2`
	var p model.Property
	err := r.DB.QueryRowContext(ctx, query, id, orgID).Scan(&p.ID, &p.OrganizationID, &p.Address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

var _ OrganizationRepositoryInterface = (*OrganizationRepository)(nil)
