package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

// ConsentRepositoryInterface is the append-only consent ledger.
type ConsentRepositoryInterface interface {
	// ListByLead returns the lead's records, newest first.
	ListByLead(ctx context.Context, leadID string) ([]*model.ConsentRecord, error)
	Create(ctx context.Context, rec *model.ConsentRecord) error
	// Withdraw stamps every open record of the type and returns how many
	// were stamped.
	Withdraw(ctx context.Context, leadID string, t model.ConsentType, at time.Time) (int64, error)
}

type ConsentRepository struct {
	DB *sql.DB
}

func (r *ConsentRepository) ListByLead(ctx context.Context, leadID string) ([]*model.ConsentRecord, error) {
	query := `
		SELECT id, lead_id, consent_type, granted, method, evidence, created_at, withdrawn_at
		FROM consent_records
		WHERE lead_id=$1
		ORDER BY created_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.ConsentRecord{}
	for rows.Next() {
		c := &model.ConsentRecord{}
		if err := rows.Scan(&c.ID, &c.LeadID, &c.ConsentType, &c.Granted, &c.Method, &c.Evidence, &c.CreatedAt, &c.WithdrawnAt); err != nil {
			return nil, err
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

func (r *ConsentRepository) Create(ctx context.Context, rec *model.ConsentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO consent_records (id, lead_id, consent_type, granted, method, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.DB.ExecContext(ctx, query, rec.ID, rec.LeadID, rec.ConsentType, rec.Granted, rec.Method, rec.Evidence, rec.CreatedAt)
	return err
}

func (r *ConsentRepository) Withdraw(ctx context.Context, leadID string, t model.ConsentType, at time.Time) (int64, error) {
	query := `
		UPDATE consent_records SET withdrawn_at=$3
		WHERE lead_id=$1 AND consent_type=$2 AND withdrawn_at IS NULL
	`
	res, err := r.DB.ExecContext(ctx, query, leadID, t, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ ConsentRepositoryInterface = (*ConsentRepository)(nil)
