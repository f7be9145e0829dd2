package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaigns
	GetByID(ctx context.Context, orgID, id string) (*model.Campaign, error)
	List(ctx context.Context, orgID string, offset, limit int, status string) ([]*model.Campaign, int, error)
	TransitionStatus(ctx context.Context, orgID, id string, to model.CampaignStatus, from []model.CampaignStatus) (bool, error)
	CompleteIfDrained(ctx context.Context, orgID, id string) (bool, error)
	Stats(ctx context.Context, id string) (map[model.RecipientStatus]int, error)

	// Recipients
	GetRecipient(ctx context.Context, campaignID, id string) (*model.CampaignRecipient, error)
	ListRecipients(ctx context.Context, campaignID string, offset, limit int) ([]*model.CampaignRecipient, error)
	MarkRecipientSent(ctx context.Context, campaignID, id, communicationID string, sentAt time.Time) (bool, error)
	ResolveRecipient(ctx context.Context, id string, status model.RecipientStatus, reason string) (bool, error)
	ReleaseRecipient(ctx context.Context, id string) (bool, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaigns ======================

const campaignColumns = `id, organization_id, name, campaign_type, status, max_per_hour, sent_count,
	sms_template, email_subject, email_body, call_script, created_at, updated_at, completed_at`

func scanCampaign(s rowScanner) (*model.Campaign, error) {
	var (
		c          model.Campaign
		maxPerHour sql.NullInt64
	)
	err := s.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.CampaignType, &c.Status, &maxPerHour, &c.SentCount,
		&c.SMSTemplate, &c.EmailSubject, &c.EmailBody, &c.CallScript, &c.CreatedAt, &c.UpdatedAt, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	if maxPerHour.Valid {
		v := int(maxPerHour.Int64)
		c.MaxPerHour = &v
	}
	return &c, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, orgID, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND organization_id=$2`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(ctx context.Context, orgID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE organization_id=$1`
	args := []interface{}{orgID}
	if status != "" {
		where += ` AND status=$2`
		args = append(args, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

// TransitionStatus moves the campaign to `to` only if it is currently in one
// of `from`. completed_at is stamped on entering completed.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, orgID, id string, to model.CampaignStatus, from []model.CampaignStatus) (bool, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}
	query := `
		UPDATE campaigns
		SET status=$1, updated_at=NOW(),
		    completed_at=CASE WHEN $1::text='completed' THEN NOW() ELSE completed_at END
		WHERE id=$2 AND organization_id=$3 AND status = ANY($4)
	`
	return execAffected(ctx, r.DB, query, to, id, orgID, pq.Array(sources))
}

// CompleteIfDrained moves an active campaign to completed when none of its
// recipients is pending or queued. The check and the update are one statement.
func (r *CampaignRepository) CompleteIfDrained(ctx context.Context, orgID, id string) (bool, error) {
	query := `
		UPDATE campaigns c
		SET status='completed', updated_at=NOW(), completed_at=NOW()
		WHERE c.id=$1 AND c.organization_id=$2 AND c.status='active'
		  AND NOT EXISTS (
		      SELECT 1 FROM campaign_recipients cr
		      WHERE cr.campaign_id=c.id AND cr.status IN ('pending','queued')
		  )
	`
	return execAffected(ctx, r.DB, query, id, orgID)
}

func (r *CampaignRepository) Stats(ctx context.Context, id string) (map[model.RecipientStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[model.RecipientStatus]int{
		model.RecipientPending: 0,
		model.RecipientQueued:  0,
		model.RecipientSent:    0,
		model.RecipientSkipped: 0,
		model.RecipientFailed:  0,
	}
	for rows.Next() {
		var (
			status model.RecipientStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ====================== Recipients ======================

const recipientColumns = `id, campaign_id, lead_id, status, channel, queued_at, sent_at, communication_id, error_message`

func scanRecipient(s rowScanner) (*model.CampaignRecipient, error) {
	var cr model.CampaignRecipient
	err := s.Scan(&cr.ID, &cr.CampaignID, &cr.LeadID, &cr.Status, &cr.Channel,
		&cr.QueuedAt, &cr.SentAt, &cr.CommunicationID, &cr.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *CampaignRepository) GetRecipient(ctx context.Context, campaignID, id string) (*model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE id=$1 AND campaign_id=$2`
	cr, err := scanRecipient(r.DB.QueryRowContext(ctx, query, id, campaignID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewRecipientNotFound(id)
		}
		return nil, err
	}
	return cr, nil
}

func (r *CampaignRepository) ListRecipients(ctx context.Context, campaignID string, offset, limit int) ([]*model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients
		WHERE campaign_id=$1 ORDER BY id LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []*model.CampaignRecipient{}
	for rows.Next() {
		cr, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, cr)
	}
	return recipients, rows.Err()
}

// MarkRecipientSent resolves the recipient as sent and bumps the campaign's
// sent_count in one transaction. false means the recipient was already
// terminal and nothing changed.
func (r *CampaignRepository) MarkRecipientSent(ctx context.Context, campaignID, id, communicationID string, sentAt time.Time) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status='sent', sent_at=$3, communication_id=$4
		WHERE id=$1 AND campaign_id=$2 AND status IN ('pending','queued')
	`, id, campaignID, sentAt, communicationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET sent_count=sent_count+1, updated_at=NOW() WHERE id=$1`, campaignID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ResolveRecipient sets skipped or failed on a non-terminal recipient.
func (r *CampaignRepository) ResolveRecipient(ctx context.Context, id string, status model.RecipientStatus, reason string) (bool, error) {
	if status != model.RecipientSkipped && status != model.RecipientFailed {
		return false, fmt.Errorf("resolve recipient %s: unexpected status %s", id, status)
	}
	query := `
		UPDATE campaign_recipients
		SET status=$2, error_message=$3
		WHERE id=$1 AND status IN ('pending','queued')
	`
	return execAffected(ctx, r.DB, query, id, status, reason)
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)

// ReleaseRecipient returns a queued recipient to pending, giving its rate
// window slot back.
func (r *CampaignRepository) ReleaseRecipient(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE campaign_recipients
		SET status='pending', queued_at=NULL
		WHERE id=$1 AND status='queued'
	`
	return execAffected(ctx, r.DB, query, id)
}
