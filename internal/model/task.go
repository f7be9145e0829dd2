// internal/model/task.go
package model

import (
	"encoding/json"
	"time"
)

type ActionType string

const (
	ActionCall  ActionType = "call"
	ActionSMS   ActionType = "sms"
	ActionEmail ActionType = "email"
)

// Channel maps an action to the channel it dispatches through.
func (a ActionType) Channel() Channel {
	switch a {
	case ActionCall:
		return ChannelVoice
	case ActionSMS:
		return ChannelSMS
	case ActionEmail:
		return ChannelEmail
	}
	return ""
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transition may occur.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled || s == TaskFailed
}

type AgentTask struct {
	ID             string          `db:"id" json:"id"`
	OrganizationID string          `db:"organization_id" json:"organization_id"`
	LeadID         string          `db:"lead_id" json:"lead_id"`
	AgentType      string          `db:"agent_type" json:"agent_type"`
	ActionType     ActionType      `db:"action_type" json:"action_type"`
	ScheduledFor   time.Time       `db:"scheduled_for" json:"scheduled_for"`
	Status         TaskStatus      `db:"status" json:"status"`
	Context        TaskContext     `db:"context" json:"context"`
	// RawContext is the stored payload. Context is nil when it failed to decode.
	RawContext     json.RawMessage `db:"-" json:"-"`
	ResultRef      *string         `db:"result_ref" json:"result_ref,omitempty"`
	ResultReason   string          `db:"result_reason" json:"result_reason,omitempty"`
	Attempts       int             `db:"attempts" json:"attempts"`
	ClaimedAt      *time.Time      `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// TaskInvocation is the payload that triggers one evaluation of a task,
// delivered over the queue or the HTTP API.
type TaskInvocation struct {
	TaskID         string          `json:"task_id"`
	LeadID         string          `json:"lead_id"`
	OrganizationID string          `json:"organization_id"`
	Context        json.RawMessage `json:"context,omitempty"`
}

// TaskResult is the outcome of one invocation. Success=false must reach an
// operator.
type TaskResult struct {
	Success         bool    `json:"success"`
	Channel         Channel `json:"channel,omitempty"`
	RecipientID     string  `json:"recipient_id,omitempty"`
	CommunicationID string  `json:"communication_id,omitempty"`
	Skipped         bool    `json:"skipped,omitempty"`
	Delayed         bool    `json:"delayed,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	Error           string  `json:"error,omitempty"`
}
