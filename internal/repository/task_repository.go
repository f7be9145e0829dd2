package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

type TaskRepositoryInterface interface {
	Create(ctx context.Context, t *model.AgentTask) error
	GetByID(ctx context.Context, id string) (*model.AgentTask, error)

	// Claim moves a due task pending -> in_progress. false means another
	// invocation got there first or the task is not due.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	// Reschedule returns a claimed task to pending at a later time.
	Reschedule(ctx context.Context, id string, at time.Time, reason string) error
	// Release returns a claimed task to pending without moving it.
	Release(ctx context.Context, id string) error
	// Resolve sets a terminal status on a claimed task. It succeeds at most
	// once per task.
	Resolve(ctx context.Context, id string, status model.TaskStatus, resultRef *string, reason string) (bool, error)

	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.AgentTask, error)
	ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*model.AgentTask, error)
}

type TaskRepository struct {
	DB *sql.DB
}

const taskColumns = `id, organization_id, lead_id, agent_type, action_type, scheduled_for, status,
	context, result_ref, result_reason, attempts, claimed_at, created_at, completed_at`

func (r *TaskRepository) Create(ctx context.Context, t *model.AgentTask) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	raw, err := model.EncodeTaskContext(t.Context)
	if err != nil {
		return fmt.Errorf("encode task context: %w", err)
	}
	query := `
		INSERT INTO agent_tasks (id, organization_id, lead_id, agent_type, action_type, scheduled_for, status, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.DB.ExecContext(ctx, query, t.ID, t.OrganizationID, t.LeadID, t.AgentType,
		t.ActionType, t.ScheduledFor, t.Status, raw, t.CreatedAt)
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*model.AgentTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM agent_tasks WHERE id=$1`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTaskNotFound(id)
		}
		return nil, err
	}
	return t, nil
}

func (r *TaskRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE agent_tasks
		SET status='in_progress', claimed_at=$2, attempts=attempts+1
		WHERE id=$1 AND status='pending' AND scheduled_for <= $2
	`
	return execAffected(ctx, r.DB, query, id, now)
}

func (r *TaskRepository) Reschedule(ctx context.Context, id string, at time.Time, reason string) error {
	query := `
		UPDATE agent_tasks
		SET status='pending', scheduled_for=$2, result_reason=$3, claimed_at=NULL
		WHERE id=$1 AND status='in_progress'
	`
	_, err := r.DB.ExecContext(ctx, query, id, at, reason)
	return err
}

func (r *TaskRepository) Release(ctx context.Context, id string) error {
	query := `UPDATE agent_tasks SET status='pending', claimed_at=NULL WHERE id=$1 AND status='in_progress'`
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

func (r *TaskRepository) Resolve(ctx context.Context, id string, status model.TaskStatus, resultRef *string, reason string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("resolve task %s: %s is not a terminal status", id, status)
	}
	query := `
		UPDATE agent_tasks
		SET status=$2, result_ref=$3, result_reason=$4, completed_at=NOW()
		WHERE id=$1 AND status='in_progress'
	`
	return execAffected(ctx, r.DB, query, id, status, resultRef, reason)
}

func (r *TaskRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.AgentTask, error) {
	query := `SELECT ` + taskColumns + ` FROM agent_tasks
		WHERE status='pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC LIMIT $2`
	return r.list(ctx, query, now, limit)
}

func (r *TaskRepository) ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*model.AgentTask, error) {
	query := `SELECT ` + taskColumns + ` FROM agent_tasks
		WHERE status='in_progress' AND claimed_at < $1
		ORDER BY claimed_at ASC LIMIT $2`
	return r.list(ctx, query, claimedBefore, limit)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.AgentTask, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*model.AgentTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(s rowScanner) (*model.AgentTask, error) {
	var (
		t   model.AgentTask
		raw []byte
	)
	err := s.Scan(&t.ID, &t.OrganizationID, &t.LeadID, &t.AgentType, &t.ActionType, &t.ScheduledFor,
		&t.Status, &raw, &t.ResultRef, &t.ResultReason, &t.Attempts, &t.ClaimedAt, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	t.RawContext = raw
	if tc, err := model.DecodeTaskContext(t.ActionType, raw); err == nil {
		t.Context = tc
	}
	return &t, nil
}

func execAffected(ctx context.Context, db *sql.DB, query string, args ...interface{}) (bool, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ TaskRepositoryInterface = (*TaskRepository)(nil)
