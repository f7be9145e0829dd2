package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

type ActivityRepositoryInterface interface {
	Create(ctx context.Context, a *model.ActivityLog) error
	ListByLead(ctx context.Context, orgID, leadID string, limit int) ([]*model.ActivityLog, error)
}

type ActivityRepository struct {
	DB *sql.DB
}

func (r *ActivityRepository) Create(ctx context.Context, a *model.ActivityLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	details := []byte("{}")
	if len(a.Details) > 0 {
		b, err := json.Marshal(a.Details)
		if err != nil {
			return err
		}
		details = b
	}
	query := `
		INSERT INTO agent_activity_log (id, organization_id, agent_key, action, status, message, details,
			lead_id, execution_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.DB.ExecContext(ctx, query, a.ID, a.OrganizationID, a.AgentKey, a.Action, a.Status,
		a.Message, details, a.LeadID, a.ExecutionMS, a.CreatedAt)
	return err
}

func (r *ActivityRepository) ListByLead(ctx context.Context, orgID, leadID string, limit int) ([]*model.ActivityLog, error) {
	query := `
		SELECT id, organization_id, agent_key, action, status, message, details, lead_id, execution_ms, created_at
		FROM agent_activity_log
		WHERE organization_id=$1 AND lead_id=$2
		ORDER BY created_at DESC LIMIT $3
	`
	rows, err := r.DB.QueryContext(ctx, query, orgID, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.ActivityLog{}
	for rows.Next() {
		var (
			a       model.ActivityLog
			details []byte
		)
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.AgentKey, &a.Action, &a.Status, &a.Message,
			&details, &a.LeadID, &a.ExecutionMS, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &a)
	}
	return entries, rows.Err()
}

var _ ActivityRepositoryInterface = (*ActivityRepository)(nil)
