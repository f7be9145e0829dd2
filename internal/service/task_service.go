package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/queue"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
)

// TaskService creates tasks on behalf of staff and enqueues the ones that are
// already due.
type TaskService struct {
	Tasks repository.TaskRepositoryInterface
	Leads repository.LeadRepositoryInterface
	Queue queue.Queue
	Now   func() time.Time
}

type CreateTaskInput struct {
	LeadID       string           `json:"lead_id"`
	AgentType    string           `json:"agent_type"`
	ActionType   model.ActionType `json:"action_type"`
	ScheduledFor *time.Time       `json:"scheduled_for,omitempty"`
	Context      json.RawMessage  `json:"context,omitempty"`
}

func (s *TaskService) CreateTask(ctx context.Context, orgID string, in CreateTaskInput) (*model.AgentTask, error) {
	tc, err := model.DecodeTaskContext(in.ActionType, in.Context)
	if err != nil {
		return nil, err
	}
	if _, err := s.Leads.GetByID(ctx, orgID, in.LeadID); err != nil {
		return nil, err
	}

	now := s.now()
	when := now
	if in.ScheduledFor != nil && in.ScheduledFor.After(now) {
		when = in.ScheduledFor.UTC()
	}
	agent := strings.TrimSpace(in.AgentType)
	if agent == "" {
		agent = "manual"
	}

	task := &model.AgentTask{
		OrganizationID: orgID,
		LeadID:         in.LeadID,
		AgentType:      agent,
		ActionType:     in.ActionType,
		ScheduledFor:   when,
		Status:         model.TaskPending,
		Context:        tc,
	}
	if err := s.Tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	if !when.After(now) {
		s.Enqueue(task)
	}
	return task, nil
}

// Enqueue publishes an invocation for task. A failed publish is only logged;
// the sweeper picks the task up on its next pass.
func (s *TaskService) Enqueue(task *model.AgentTask) {
	if s.Queue == nil {
		return
	}
	inv := model.TaskInvocation{TaskID: task.ID, LeadID: task.LeadID, OrganizationID: task.OrganizationID}
	if err := s.Queue.Publish(queue.TopicAgentTasks, inv); err != nil {
		logger.Warn("failed to enqueue task", "task_id", task.ID, "error", err)
	}
}

func (s *TaskService) Get(ctx context.Context, orgID, id string) (*model.AgentTask, error) {
	t, err := s.Tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OrganizationID != orgID {
		return nil, appErrors.NewTaskNotFound(id)
	}
	return t, nil
}

func (s *TaskService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
