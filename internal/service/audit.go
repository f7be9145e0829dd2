package service

import (
	"context"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
)

// Auditor writes the append-only activity trail. A failed write is logged
// and never fails the operation being audited.
type Auditor struct {
	Repo repository.ActivityRepositoryInterface
}

func (a *Auditor) Record(ctx context.Context, entry *model.ActivityLog) {
	if a == nil || a.Repo == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := a.Repo.Create(ctx, entry); err != nil {
		logger.Error("failed to write activity log",
			"organization_id", entry.OrganizationID, "action", entry.Action, "status", entry.Status, "error", err)
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
