package model

// ChannelCredentials holds provider credentials. Empty fields fall back to the
// process-wide defaults.
type ChannelCredentials struct {
	MessagingAccountID string `db:"messaging_account_id" json:"-"`
	MessagingSecret    string `db:"messaging_secret" json:"-"`
	MessagingSender    string `db:"messaging_sender" json:"messaging_sender,omitempty"`
	EmailAPIKey        string `db:"email_api_key" json:"-"`
	EmailAPISecret     string `db:"email_api_secret" json:"-"`
	EmailRegion        string `db:"email_region" json:"email_region,omitempty"`
	EmailFrom          string `db:"email_from" json:"email_from,omitempty"`
	VoiceAPIKey        string `db:"voice_api_key" json:"-"`
	VoiceCallerID      string `db:"voice_caller_id" json:"voice_caller_id,omitempty"`
}

// Merge fills empty fields of c from fallback.
func (c ChannelCredentials) Merge(fallback ChannelCredentials) ChannelCredentials {
	pick := func(v, d string) string {
		if v != "" {
			return v
		}
		return d
	}
	return ChannelCredentials{
		MessagingAccountID: pick(c.MessagingAccountID, fallback.MessagingAccountID),
		MessagingSecret:    pick(c.MessagingSecret, fallback.MessagingSecret),
		MessagingSender:    pick(c.MessagingSender, fallback.MessagingSender),
		EmailAPIKey:        pick(c.EmailAPIKey, fallback.EmailAPIKey),
		EmailAPISecret:     pick(c.EmailAPISecret, fallback.EmailAPISecret),
		EmailRegion:        pick(c.EmailRegion, fallback.EmailRegion),
		EmailFrom:          pick(c.EmailFrom, fallback.EmailFrom),
		VoiceAPIKey:        pick(c.VoiceAPIKey, fallback.VoiceAPIKey),
		VoiceCallerID:      pick(c.VoiceCallerID, fallback.VoiceCallerID),
	}
}

type Organization struct {
	ID          string             `db:"id" json:"id"`
	Name        string             `db:"name" json:"name"`
	Phone       string             `db:"phone" json:"phone"`
	Timezone    string             `db:"timezone" json:"timezone"`
	Credentials ChannelCredentials `json:"credentials"`
}

type Property struct {
	ID             string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
	Address        string `db:"address" json:"address"`
}
