package model

import "time"

type ConsentType string

const (
	ConsentSMS      ConsentType = "sms"
	ConsentCall     ConsentType = "call"
	ConsentWhatsApp ConsentType = "whatsapp"
	ConsentEmail    ConsentType = "email"
	// ConsentOffHours permits automated contact outside the channel's contact window.
	ConsentOffHours ConsentType = "off_hours"
)

// ConsentTypeFor maps a channel to the consent type that governs it.
func ConsentTypeFor(ch Channel) ConsentType {
	switch ch {
	case ChannelSMS:
		return ConsentSMS
	case ChannelVoice:
		return ConsentCall
	case ChannelWhatsApp:
		return ConsentWhatsApp
	case ChannelEmail:
		return ConsentEmail
	}
	return ""
}

// ConsentRecord is append-only; withdrawal stamps WithdrawnAt.
type ConsentRecord struct {
	ID          string      `db:"id" json:"id"`
	LeadID      string      `db:"lead_id" json:"lead_id"`
	ConsentType ConsentType `db:"consent_type" json:"consent_type"`
	Granted     bool        `db:"granted" json:"granted"`
	Method      string      `db:"method" json:"method"`
	Evidence    string      `db:"evidence" json:"evidence,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	WithdrawnAt *time.Time  `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
}

type CostEntry struct {
	ID              string    `db:"id" json:"id"`
	OrganizationID  string    `db:"organization_id" json:"organization_id"`
	Service         string    `db:"service" json:"service"`
	UsageQuantity   float64   `db:"usage_quantity" json:"usage_quantity"`
	Unit            string    `db:"unit" json:"unit"`
	UnitCost        float64   `db:"unit_cost" json:"unit_cost"`
	TotalCost       float64   `db:"total_cost" json:"total_cost"`
	LeadID          *string   `db:"lead_id" json:"lead_id,omitempty"`
	CommunicationID *string   `db:"communication_id" json:"communication_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivitySkipped ActivityStatus = "skipped"
	ActivityDelayed ActivityStatus = "delayed"
	ActivityFailure ActivityStatus = "failure"
	ActivityInfo    ActivityStatus = "info"
)

// ActivityLog is one append-only audit entry.
type ActivityLog struct {
	ID             string         `db:"id" json:"id"`
	OrganizationID string         `db:"organization_id" json:"organization_id"`
	AgentKey       string         `db:"agent_key" json:"agent_key"`
	Action         string         `db:"action" json:"action"`
	Status         ActivityStatus `db:"status" json:"status"`
	Message        string         `db:"message" json:"message"`
	Details        map[string]any `db:"details" json:"details,omitempty"`
	LeadID         *string        `db:"lead_id" json:"lead_id,omitempty"`
	ExecutionMS    int64          `db:"execution_ms" json:"execution_ms"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
