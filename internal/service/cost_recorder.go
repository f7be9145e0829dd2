package service

import (
	"context"
	"fmt"
	"math"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
)

type CostRecorder struct {
	Repo  repository.CostRepositoryInterface
	Costs map[string]config.UnitCost
}

// Record appends a cost entry for one successful dispatch. Channels without
// a configured unit cost are not recorded.
func (c *CostRecorder) Record(ctx context.Context, comm *model.Communication) (*model.CostEntry, error) {
	unit, ok := c.Costs[string(comm.Channel)]
	if !ok {
		return nil, nil
	}
	qty := UsageQuantity(comm.Channel, comm.Body)
	entry := &model.CostEntry{
		OrganizationID:  comm.OrganizationID,
		Service:         unit.Service,
		UsageQuantity:   qty,
		Unit:            unit.Unit,
		UnitCost:        unit.UnitCost,
		TotalCost:       math.Round(qty*unit.UnitCost*1e6) / 1e6,
		LeadID:          strPtr(comm.LeadID),
		CommunicationID: strPtr(comm.ID),
	}
	if err := c.Repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("record cost for communication %s: %w", comm.ID, err)
	}
	return entry, nil
}

// UsageQuantity is the billable quantity: SMS segments for texts, one unit
// otherwise.
func UsageQuantity(ch model.Channel, body string) float64 {
	if ch != model.ChannelSMS {
		return 1
	}
	return float64(SMSSegments(body))
}

// SMSSegments counts segments the way carriers bill them: 160 GSM-7
// characters in a single message, 153 per part once concatenated; 70 and 67
// for messages that need UCS-2.
func SMSSegments(body string) int {
	runes := []rune(body)
	if len(runes) == 0 {
		return 1
	}
	single, multi := 160, 153
	for _, r := range runes {
		if r > 0x7F {
			single, multi = 70, 67
			break
		}
	}
	if len(runes) <= single {
		return 1
	}
	return (len(runes) + multi - 1) / multi
}
