// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a campaign does not exist for the organization.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrLeadNotFound struct {
	LeadID string
}

func (e *ErrLeadNotFound) Error() string {
	return fmt.Sprintf("lead with ID %s not found", e.LeadID)
}

func NewLeadNotFound(id string) error {
	return &ErrLeadNotFound{LeadID: id}
}

type ErrTaskNotFound struct {
	TaskID string
}

func (e *ErrTaskNotFound) Error() string {
	return fmt.Sprintf("task with ID %s not found", e.TaskID)
}

func NewTaskNotFound(id string) error {
	return &ErrTaskNotFound{TaskID: id}
}

type ErrOrganizationNotFound struct {
	OrganizationID string
}

func (e *ErrOrganizationNotFound) Error() string {
	return fmt.Sprintf("organization with ID %s not found", e.OrganizationID)
}

func NewOrganizationNotFound(id string) error {
	return &ErrOrganizationNotFound{OrganizationID: id}
}

type ErrRecipientNotFound struct {
	RecipientID string
}

func (e *ErrRecipientNotFound) Error() string {
	return fmt.Sprintf("campaign recipient with ID %s not found", e.RecipientID)
}

func NewRecipientNotFound(id string) error {
	return &ErrRecipientNotFound{RecipientID: id}
}

// IsNotFound reports whether err is any of the not-found errors above.
func IsNotFound(err error) bool {
	var (
		c *ErrCampaignNotFound
		l *ErrLeadNotFound
		t *ErrTaskNotFound
		o *ErrOrganizationNotFound
		r *ErrRecipientNotFound
	)
	return errors.As(err, &c) || errors.As(err, &l) || errors.As(err, &t) ||
		errors.As(err, &o) || errors.As(err, &r)
}

// ErrInvalidTransition is returned when a campaign status change is not allowed.
type ErrInvalidTransition struct {
	From string
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func NewInvalidTransition(from, to string) error {
	return &ErrInvalidTransition{From: from, To: to}
}

// ErrValidation is returned for request input that can never succeed as sent.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}

func NewValidation(format string, args ...interface{}) error {
	return &ErrValidation{Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ErrValidation
	return errors.As(err, &v)
}

var (
	ErrCampaignNotDrained = errors.New("campaign still has pending or queued recipients")
	ErrReasonRequired     = errors.New("a reason is required to take manual control")
	ErrStaffRequired      = errors.New("staff id is required")
	ErrInvocationMismatch = errors.New("invocation does not match stored task")
	ErrInvalidTaskContext = errors.New("invalid task context")
	ErrUnsupportedChannel = errors.New("unsupported channel")
)

// DispatchKind classifies provider failures.
type DispatchKind string

const (
	// KindConfiguration: missing/invalid credentials. Operator-fixable, alert.
	KindConfiguration DispatchKind = "configuration_error"
	// KindRecipientRejected: the provider refused this recipient. No retry.
	KindRecipientRejected DispatchKind = "recipient_rejected"
	// KindTransient: network or 5xx from the provider.
	KindTransient DispatchKind = "transient_provider_error"
)

// DispatchError is the typed failure returned by channel adaptors.
type DispatchError struct {
	Kind    DispatchKind
	Channel string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s dispatch failed (%s): %v", e.Channel, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func NewDispatchError(kind DispatchKind, channel string, err error) error {
	return &DispatchError{Kind: kind, Channel: channel, Err: err}
}

// DispatchKindOf returns the kind of a dispatch failure. Errors that are not
// DispatchErrors are treated as transient.
func DispatchKindOf(err error) DispatchKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}
