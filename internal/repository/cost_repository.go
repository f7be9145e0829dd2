package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

type CostRepositoryInterface interface {
	Create(ctx context.Context, e *model.CostEntry) error
}

type CostRepository struct {
	DB *sql.DB
}

func (r *CostRepository) Create(ctx context.Context, e *model.CostEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO cost_entries (id, organization_id, service, usage_quantity, unit, unit_cost, total_cost,
			lead_id, communication_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.DB.ExecContext(ctx, query, e.ID, e.OrganizationID, e.Service, e.UsageQuantity, e.Unit,
		e.UnitCost, e.TotalCost, e.LeadID, e.CommunicationID, e.CreatedAt)
	return err
}

var _ CostRepositoryInterface = (*CostRepository)(nil)
