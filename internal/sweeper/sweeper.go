// Package sweeper is the time-based trigger for agent tasks. Each pass
// publishes invocations for due tasks and reconciles claims that were
// abandoned mid-flight.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/distlock"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/queue"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/service"
)

const (
	agentKey = "task_sweeper"

	// extendEvery is how many publishes go by between lock lease renewals.
	extendEvery = 100

	ReasonReconciliation = "reconciliation required"
)

// RecipientResolver is the slice of the campaign store reconciliation needs.
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, id string, status model.RecipientStatus, reason string) (bool, error)
	CompleteIfDrained(ctx context.Context, orgID, id string) (bool, error)
}

type Sweeper struct {
	Tasks      repository.TaskRepositoryInterface
	Campaigns  RecipientResolver
	Queue      queue.Queue
	Lock       distlock.DistLock
	LockTTL    time.Duration
	Audit      *service.Auditor
	BatchSize  int
	StaleAfter time.Duration
	Now        func() time.Time
}

// Report summarizes one pass.
type Report struct {
	Held       bool
	Published  int
	Released   int
	Reconciled int
}

// Start runs Sweep every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if rep, err := s.Sweep(ctx); err != nil {
			logger.Error("sweep failed", "error", err)
		} else if rep.Held && (rep.Published > 0 || rep.Released > 0 || rep.Reconciled > 0) {
			logger.Info("sweep finished", "published", rep.Published, "released", rep.Released, "reconciled", rep.Reconciled)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep performs one pass if this process holds the lock. Another holder
// means another sweeper is running the pass, which is not an error.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	rep := &Report{}
	if s.Lock != nil {
		ok, err := s.Lock.Acquire(ctx)
		if err != nil {
			return rep, fmt.Errorf("acquire sweeper lock: %w", err)
		}
		if !ok {
			logger.Debug("sweeper lock held elsewhere")
			return rep, nil
		}
		defer func() {
			if err := s.Lock.Release(context.Background()); err != nil {
				logger.Warn("failed to release sweeper lock", "error", err)
			}
		}()
	}
	rep.Held = true

	now := s.now()
	if err := s.reconcile(ctx, now, rep); err != nil {
		return rep, err
	}

	due, err := s.Tasks.ListDue(ctx, now, s.batch())
	if err != nil {
		return rep, fmt.Errorf("list due tasks: %w", err)
	}
	for i, t := range due {
		if i%extendEvery == 0 {
			if err := s.extendLock(ctx); err != nil {
				return rep, err
			}
		}
		inv := model.TaskInvocation{TaskID: t.ID, LeadID: t.LeadID, OrganizationID: t.OrganizationID}
		if err := s.Queue.Publish(queue.TopicAgentTasks, inv); err != nil {
			return rep, fmt.Errorf("publish task %s: %w", t.ID, err)
		}
		rep.Published++
	}
	return rep, nil
}

// extendLock renews a leased lock so a slow pass keeps it. Losing the lock
// ends the pass; whoever holds it now runs the next one.
func (s *Sweeper) extendLock(ctx context.Context) error {
	ext, ok := s.Lock.(distlock.Extender)
	if !ok || s.LockTTL <= 0 {
		return nil
	}
	if err := ext.Extend(ctx, s.LockTTL); err != nil {
		return fmt.Errorf("extend sweeper lock: %w", err)
	}
	return nil
}

func (s *Sweeper) reconcile(ctx context.Context, now time.Time, rep *Report) error {
	if s.StaleAfter <= 0 {
		return nil
	}
	stale, err := s.Tasks.ListStale(ctx, now.Add(-s.StaleAfter), s.batch())
	if err != nil {
		return fmt.Errorf("list stale tasks: %w", err)
	}

	for _, t := range stale {
		if t.ActionType != model.ActionCall {
			if err := s.Tasks.Release(ctx, t.ID); err != nil {
				return fmt.Errorf("release task %s: %w", t.ID, err)
			}
			logger.Warn("released stale task claim", "task_id", t.ID, "action_type", t.ActionType, "claimed_at", t.ClaimedAt)
			rep.Released++
			continue
		}

		// A call may have been placed. It is never dialed again.
		ok, err := s.Tasks.Resolve(ctx, t.ID, model.TaskFailed, nil, ReasonReconciliation)
		if err != nil {
			return fmt.Errorf("resolve task %s: %w", t.ID, err)
		}
		if !ok {
			continue
		}
		rep.Reconciled++
		s.resolveRecipient(ctx, t)
		logger.Alert("call task needs reconciliation", "task_id", t.ID, "lead_id", t.LeadID, "organization_id", t.OrganizationID)
		s.Audit.Record(ctx, &model.ActivityLog{
			OrganizationID: t.OrganizationID,
			AgentKey:       agentKey,
			Action:         string(t.ActionType),
			Status:         model.ActivityFailure,
			Message:        ReasonReconciliation,
			Details:        map[string]any{"task_id": t.ID, "claimed_at": t.ClaimedAt},
			LeadID:         &t.LeadID,
		})
	}
	return nil
}

func (s *Sweeper) resolveRecipient(ctx context.Context, t *model.AgentTask) {
	if s.Campaigns == nil || t.Context == nil {
		return
	}
	l := t.Context.Link()
	if l == nil {
		return
	}
	if _, err := s.Campaigns.ResolveRecipient(ctx, l.RecipientID, model.RecipientFailed, ReasonReconciliation); err != nil {
		logger.Error("failed to resolve recipient", "recipient_id", l.RecipientID, "error", err)
		return
	}
	if _, err := s.Campaigns.CompleteIfDrained(ctx, t.OrganizationID, l.CampaignID); err != nil {
		logger.Error("failed to check campaign completion", "campaign_id", l.CampaignID, "error", err)
	}
}

func (s *Sweeper) batch() int {
	if s.BatchSize <= 0 {
		return 200
	}
	return s.BatchSize
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
