package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

type CommunicationRepositoryInterface interface {
	Create(ctx context.Context, c *model.Communication) error
	GetByID(ctx context.Context, id string) (*model.Communication, error)
}

type CommunicationRepository struct {
	DB *sql.DB
}

func (r *CommunicationRepository) Create(ctx context.Context, c *model.Communication) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Direction == "" {
		c.Direction = "outbound"
	}
	c.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO communications (id, organization_id, lead_id, task_id, campaign_id, channel, direction,
			recipient, subject, body, status, provider_message_id, error_message, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.DB.ExecContext(ctx, query, c.ID, c.OrganizationID, c.LeadID, c.TaskID, c.CampaignID,
		c.Channel, c.Direction, c.Recipient, c.Subject, c.Body, c.Status, c.ProviderMessageID,
		c.ErrorMessage, c.SentAt, c.CreatedAt)
	return err
}

// GetByID returns nil, nil when the communication does not exist.
func (r *CommunicationRepository) GetByID(ctx context.Context, id string) (*model.Communication, error) {
	query := `
		SELECT id, organization_id, lead_id, task_id, campaign_id, channel, direction, recipient,
		       subject, body, status, provider_message_id, error_message, sent_at, created_at
		FROM communications WHERE id=$1
	`
	var c model.Communication
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.OrganizationID, &c.LeadID, &c.TaskID, &c.CampaignID, &c.Channel, &c.Direction, &c.Recipient,
		&c.Subject, &c.Body, &c.Status, &c.ProviderMessageID, &c.ErrorMessage, &c.SentAt, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

var _ CommunicationRepositoryInterface = (*CommunicationRepository)(nil)
