package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

// TaskRunner evaluates one invocation.
type TaskRunner interface {
	Run(ctx context.Context, inv model.TaskInvocation) (*model.TaskResult, error)
}

// Worker turns queue messages into scheduler invocations.
type Worker struct {
	Runner  TaskRunner
	Timeout time.Duration
}

func NewWorker(runner TaskRunner, timeout time.Duration) *Worker {
	return &Worker{Runner: runner, Timeout: timeout}
}

// Handle processes one message body. Only infrastructure errors are returned,
// so the queue redelivers exactly the invocations that may succeed later.
func (w *Worker) Handle(body []byte) error {
	var inv model.TaskInvocation
	if err := json.Unmarshal(body, &inv); err != nil || inv.TaskID == "" {
		logger.Alert("invalid task invocation payload", "error", err)
		return nil
	}

	ctx := context.Background()
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	res, err := w.Runner.Run(ctx, inv)
	switch {
	case err == nil:
	case appErrors.IsNotFound(err), errors.Is(err, appErrors.ErrInvocationMismatch):
		logger.Alert("task invocation rejected", "task_id", inv.TaskID, "error", err)
		return nil
	default:
		logger.Error("task invocation failed", "task_id", inv.TaskID, "error", err)
		return err
	}

	if !res.Success {
		logger.Alert("task did not succeed", "task_id", inv.TaskID, "channel", res.Channel, "error", res.Error)
		return nil
	}
	logger.Info("task processed", "task_id", inv.TaskID, "skipped", res.Skipped, "delayed", res.Delayed, "reason", res.Reason)
	return nil
}
