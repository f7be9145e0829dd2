package model

import (
	"encoding/json"
	"fmt"
	"strings"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
)

// TaskContext is the action-specific payload of an AgentTask. Exactly one
// variant exists per ActionType.
type TaskContext interface {
	ActionType() ActionType
	// Link returns the campaign linkage, or nil for one-off tasks.
	Link() *CampaignLink
	MessagePurpose() string
	Validate() error
}

type CampaignLink struct {
	CampaignID  string
	RecipientID string
}

func link(campaignID, recipientID string) *CampaignLink {
	if campaignID == "" {
		return nil
	}
	return &CampaignLink{CampaignID: campaignID, RecipientID: recipientID}
}

func validateLink(campaignID, recipientID string) error {
	if (campaignID == "") != (recipientID == "") {
		return fmt.Errorf("%w: campaign_id and campaign_recipient_id must be set together", appErrors.ErrInvalidTaskContext)
	}
	return nil
}

// SMSContext carries an optional template; campaign tasks fall back to the
// campaign's SMS template.
type SMSContext struct {
	CampaignID  string `json:"campaign_id,omitempty"`
	RecipientID string `json:"campaign_recipient_id,omitempty"`
	Template    string `json:"sms_template,omitempty"`
	Purpose     string `json:"purpose,omitempty"`
}

func (c SMSContext) ActionType() ActionType { return ActionSMS }
func (c SMSContext) Link() *CampaignLink { return link(c.CampaignID, c.RecipientID) }
func (c SMSContext) MessagePurpose() string { return purposeOr(c.Purpose, c.CampaignID) }

func (c SMSContext) Validate() error {
	if err := validateLink(c.CampaignID, c.RecipientID); err != nil {
		return err
	}
	if c.CampaignID == "" && strings.TrimSpace(c.Template) == "" {
		return fmt.Errorf("%w: sms_template is required without a campaign", appErrors.ErrInvalidTaskContext)
	}
	return nil
}

type EmailContext struct {
	CampaignID  string `json:"campaign_id,omitempty"`
	RecipientID string `json:"campaign_recipient_id,omitempty"`
	Subject     string `json:"email_subject,omitempty"`
	Body        string `json:"email_body,omitempty"`
	Purpose     string `json:"purpose,omitempty"`
}

func (c EmailContext) ActionType() ActionType { return ActionEmail }
func (c EmailContext) Link() *CampaignLink { return link(c.CampaignID, c.RecipientID) }
func (c EmailContext) MessagePurpose() string { return purposeOr(c.Purpose, c.CampaignID) }

func (c EmailContext) Validate() error {
	if err := validateLink(c.CampaignID, c.RecipientID); err != nil {
		return err
	}
	if c.CampaignID == "" && (strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Body) == "") {
		return fmt.Errorf("%w: email_subject and email_body are required without a campaign", appErrors.ErrInvalidTaskContext)
	}
	return nil
}

// CallContext needs no content: the voice agent runs its own conversation.
type CallContext struct {
	CampaignID  string `json:"campaign_id,omitempty"`
	RecipientID string `json:"campaign_recipient_id,omitempty"`
	Script      string `json:"call_script,omitempty"`
	Purpose     string `json:"purpose,omitempty"`
}

func (c CallContext) ActionType() ActionType { return ActionCall }
func (c CallContext) Link() *CampaignLink { return link(c.CampaignID, c.RecipientID) }
func (c CallContext) MessagePurpose() string { return purposeOr(c.Purpose, c.CampaignID) }
func (c CallContext) Validate() error { return validateLink(c.CampaignID, c.RecipientID) }

func purposeOr(purpose, campaignID string) string {
	if purpose != "" {
		return purpose
	}
	if campaignID != "" {
		return "campaign"
	}
	return "follow_up"
}

// DecodeTaskContext decodes raw JSON into the variant selected by action.
// Empty input yields the zero variant, which still has to pass Validate.
func DecodeTaskContext(action ActionType, raw []byte) (TaskContext, error) {
	var (
		tc  TaskContext
		err error
	)
	empty := len(raw) == 0 || string(raw) == "null"
	switch action {
	case ActionSMS:
		var c SMSContext
		if !empty {
			err = json.Unmarshal(raw, &c)
		}
		tc = c
	case ActionEmail:
		var c EmailContext
		if !empty {
			err = json.Unmarshal(raw, &c)
		}
		tc = c
	case ActionCall:
		var c CallContext
		if !empty {
			err = json.Unmarshal(raw, &c)
		}
		tc = c
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", appErrors.ErrInvalidTaskContext, action)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrInvalidTaskContext, err)
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// EncodeTaskContext is the inverse of DecodeTaskContext.
func EncodeTaskContext(tc TaskContext) ([]byte, error) {
	if tc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(tc)
}
