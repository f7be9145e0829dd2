// Package compliance decides whether a lead may be contacted on a channel
// right now. The gate only reads; it never changes lead or ledger state.
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/repository"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

type Gate struct {
	Leads    repository.LeadRepositoryInterface
	Orgs     repository.OrganizationRepositoryInterface
	Consents repository.ConsentRepositoryInterface
	Policy   config.CompliancePolicy
	Now      func() time.Time
}

func NewGate(leads repository.LeadRepositoryInterface, orgs repository.OrganizationRepositoryInterface,
	consents repository.ConsentRepositoryInterface, policy config.CompliancePolicy) *Gate {
	return &Gate{Leads: leads, Orgs: orgs, Consents: consents, Policy: policy, Now: time.Now}
}

// Check loads the lead and organization and evaluates them.
func (g *Gate) Check(ctx context.Context, orgID, leadID string, ch model.Channel, purpose string) (Decision, error) {
	lead, err := g.Leads.GetByID(ctx, orgID, leadID)
	if err != nil {
		return Decision{}, err
	}
	org, err := g.Orgs.GetByID(ctx, orgID)
	if err != nil {
		return Decision{}, err
	}
	return g.CheckLead(ctx, lead, org, ch, purpose)
}

// CheckLead evaluates an already-loaded lead. Only the consent ledger is read.
func (g *Gate) CheckLead(ctx context.Context, lead *model.Lead, org *model.Organization, ch model.Channel, purpose string) (Decision, error) {
	if lead.DoNotContact {
		return deny("lead is marked do-not-contact"), nil
	}
	records, err := g.Consents.ListByLead(ctx, lead.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("load consent ledger: %w", err)
	}
	return Evaluate(g.Policy, lead, org, records, ch, purpose, g.now()), nil
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Evaluate applies the rules to a lead and its consent records (newest
// first) at a given instant.
func Evaluate(p config.CompliancePolicy, lead *model.Lead, org *model.Organization, records []*model.ConsentRecord,
	ch model.Channel, purpose string, now time.Time) Decision {
	if lead.DoNotContact {
		return deny("lead is marked do-not-contact")
	}

	ct := model.ConsentTypeFor(ch)
	if ct == "" {
		return deny(fmt.Sprintf("no consent rule for channel %s", ch))
	}
	if d := consentDecision(lead, records, ct); !d.Allowed {
		return d
	}

	loc := LocationFor(p, lead, org)
	if ok, w := withinWindow(p, ch, now, loc); !ok {
		if isExempt(p, purpose) {
			return allow()
		}
		if rec, _ := current(records, model.ConsentOffHours); rec != nil && rec.Granted {
			return allow()
		}
		return deny(windowReason(w, loc))
	}
	return allow()
}

func consentDecision(lead *model.Lead, records []*model.ConsentRecord, ct model.ConsentType) Decision {
	rec, seen := current(records, ct)
	switch {
	case rec != nil && rec.Granted:
		return allow()
	case rec != nil:
		return deny(fmt.Sprintf("%s consent denied", ct))
	case seen:
		return deny(fmt.Sprintf("%s consent withdrawn", ct))
	}

	granted, hasFlag := lead.ConsentFlag(ct)
	if !hasFlag {
		// email is opt-out: allowed until withdrawn
		return allow()
	}
	if !granted {
		return deny(fmt.Sprintf("no %s consent on file", ct))
	}
	return allow()
}

// current returns the most recent non-withdrawn record of the type, and
// whether any record of that type exists at all.
func current(records []*model.ConsentRecord, ct model.ConsentType) (*model.ConsentRecord, bool) {
	var (
		best  *model.ConsentRecord
		found bool
	)
	for _, r := range records {
		if r.ConsentType != ct {
			continue
		}
		found = true
		if r.WithdrawnAt != nil {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	return best, found
}
