// internal/model/lead.go
package model

import (
	"strings"
	"time"
)

type Lead struct {
	ID                 string     `db:"id" json:"id"`
	OrganizationID     string     `db:"organization_id" json:"organization_id"`
	FirstName          string     `db:"first_name" json:"first_name"`
	LastName           string     `db:"last_name" json:"last_name"`
	FullName           string     `db:"full_name" json:"full_name"`
	Phone              string     `db:"phone" json:"phone"`
	Email              string     `db:"email" json:"email"`
	Timezone           string     `db:"timezone" json:"timezone"`
	PropertyID         *string    `db:"property_id" json:"property_id,omitempty"`
	SMSConsent         bool       `db:"sms_consent" json:"sms_consent"`
	SMSConsentAt       *time.Time `db:"sms_consent_at" json:"sms_consent_at,omitempty"`
	CallConsent        bool       `db:"call_consent" json:"call_consent"`
	CallConsentAt      *time.Time `db:"call_consent_at" json:"call_consent_at,omitempty"`
	WhatsAppConsent    bool       `db:"whatsapp_consent" json:"whatsapp_consent"`
	WhatsAppConsentAt  *time.Time `db:"whatsapp_consent_at" json:"whatsapp_consent_at,omitempty"`
	DoNotContact       bool       `db:"do_not_contact" json:"do_not_contact"`
	IsHumanControlled  bool       `db:"is_human_controlled" json:"is_human_controlled"`
	HumanControlledBy  *string    `db:"human_controlled_by" json:"human_controlled_by,omitempty"`
	HumanControlledAt  *time.Time `db:"human_controlled_at" json:"human_controlled_at,omitempty"`
	HumanControlReason *string    `db:"human_control_reason" json:"human_control_reason,omitempty"`
}

// ContactFor returns the address used to reach the lead on a channel.
func (l *Lead) ContactFor(ch Channel) string {
	switch ch {
	case ChannelSMS, ChannelVoice, ChannelWhatsApp:
		return strings.TrimSpace(l.Phone)
	case ChannelEmail:
		return strings.TrimSpace(l.Email)
	}
	return ""
}

// ConsentFlag returns the legacy per-lead consent flag for a consent type.
// ok is false for types that have no flag.
func (l *Lead) ConsentFlag(t ConsentType) (granted bool, ok bool) {
	switch t {
	case ConsentSMS:
		return l.SMSConsent, true
	case ConsentCall:
		return l.CallConsent, true
	case ConsentWhatsApp:
		return l.WhatsAppConsent, true
	}
	return false, false
}
