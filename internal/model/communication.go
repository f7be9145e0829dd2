// internal/model/communication.go
package model

import "time"

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelVoice    Channel = "voice"
	ChannelWhatsApp Channel = "whatsapp"
)

type CommunicationStatus string

const (
	CommunicationSent   CommunicationStatus = "sent"
	CommunicationFailed CommunicationStatus = "failed"
)

// Communication is one dispatch attempt. Only Status changes after insert.
type Communication struct {
	ID                string              `db:"id" json:"id"`
	OrganizationID    string              `db:"organization_id" json:"organization_id"`
	LeadID            string              `db:"lead_id" json:"lead_id"`
	TaskID            string              `db:"task_id" json:"task_id"`
	CampaignID        *string             `db:"campaign_id" json:"campaign_id,omitempty"`
	Channel           Channel             `db:"channel" json:"channel"`
	Direction         string              `db:"direction" json:"direction"` // outbound, inbound
	Recipient         string              `db:"recipient" json:"recipient"`
	Subject           string              `db:"subject" json:"subject,omitempty"`
	Body              string              `db:"body" json:"body"`
	Status            CommunicationStatus `db:"status" json:"status"`
	ProviderMessageID string              `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ErrorMessage      string              `db:"error_message" json:"error_message,omitempty"`
	SentAt            *time.Time          `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
}
