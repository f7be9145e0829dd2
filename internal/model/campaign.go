// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignCompleted CampaignStatus = "completed"
)

func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCancelled || s == CampaignCompleted
}

// campaignTransitions lists, for each target status, the statuses it may be
// entered from. completed additionally requires a drained recipient list.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignActive:    {CampaignDraft, CampaignPaused},
	CampaignPaused:    {CampaignActive},
	CampaignCompleted: {CampaignActive},
	CampaignCancelled: {CampaignDraft, CampaignActive, CampaignPaused},
}

// TransitionSources returns the statuses from which to is reachable.
func TransitionSources(to CampaignStatus) []CampaignStatus {
	return campaignTransitions[to]
}

func CanTransition(from, to CampaignStatus) bool {
	for _, s := range campaignTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

type Campaign struct {
	ID             string         `db:"id" json:"id"`
	OrganizationID string         `db:"organization_id" json:"organization_id"`
	Name           string         `db:"name" json:"name"`
	CampaignType   string         `db:"campaign_type" json:"campaign_type"`
	Status         CampaignStatus `db:"status" json:"status"`
	MaxPerHour     *int           `db:"max_per_hour" json:"max_per_hour,omitempty"`
	SentCount      int            `db:"sent_count" json:"sent_count"`
	SMSTemplate    string         `db:"sms_template" json:"sms_template"`
	EmailSubject   string         `db:"email_subject" json:"email_subject"`
	EmailBody      string         `db:"email_body" json:"email_body"`
	CallScript     string         `db:"call_script" json:"call_script"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientQueued  RecipientStatus = "queued"
	RecipientSent    RecipientStatus = "sent"
	RecipientSkipped RecipientStatus = "skipped"
	RecipientFailed  RecipientStatus = "failed"
)

func (s RecipientStatus) IsTerminal() bool {
	return s == RecipientSent || s == RecipientSkipped || s == RecipientFailed
}

type CampaignRecipient struct {
	ID              string          `db:"id" json:"id"`
	CampaignID      string          `db:"campaign_id" json:"campaign_id"`
	LeadID          string          `db:"lead_id" json:"lead_id"`
	Status          RecipientStatus `db:"status" json:"status"`
	Channel         Channel         `db:"channel" json:"channel"`
	QueuedAt        *time.Time      `db:"queued_at" json:"queued_at,omitempty"`
	SentAt          *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	CommunicationID *string         `db:"communication_id" json:"communication_id,omitempty"`
	ErrorMessage    string          `db:"error_message" json:"error_message,omitempty"`
}
