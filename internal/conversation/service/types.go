package service

import (
	"strings"

	"engagement_backend/internal/conversation/domain"
	"engagement_backend/internal/conversation/repository"
	"engagement_backend/platform/phone"
	"engagement_backend/platform/sanitize"

	"github.com/google/uuid"
)

// ContactRef identifies the contact a webhook is about. Optional fields only
// fill empty columns.
type ContactRef struct {
	ExternalID string `validate:"notblank,max=255"`
	LocationID string `validate:"max=255"`
	FirstName  string `validate:"max=200"`
	LastName   string `validate:"max=200"`
	Email      string `validate:"max=320"`
	Phone      string `validate:"max=64"`
}

// InboundEvent is one inbound message from the lead.
type InboundEvent struct {
	ContactRef
	Text string `validate:"notblank"`
	// FirstMessage is the first campaign message ever sent, when the CRM supplies it.
	FirstMessage string
	// LastMemory is the last bump or system note the CRM attached.
	LastMemory string
	Channel    string `validate:"max=32"`
	DeliveryID string `validate:"max=255"`
}

// InboundResult is what the webhook caller gets back.
type InboundResult struct {
	ContactID        uuid.UUID     `json:"contactId"`
	Reply            string        `json:"reply"`
	ShouldSend       bool          `json:"shouldSend"`
	Intent           domain.Intent `json:"intent,omitempty"`
	Stage            domain.Stage  `json:"stage"`
	Escalated        bool          `json:"escalated"`
	EscalationReason string        `json:"escalationReason,omitempty"`
	Suppressed       bool          `json:"suppressed,omitempty"`
	OptedOut         bool          `json:"optedOut,omitempty"`
	Replayed         bool          `json:"replayed,omitempty"`
}

// MessageEvent journals a message sent outside the AI pipeline.
type MessageEvent struct {
	ContactRef
	Text       string `validate:"notblank"`
	Channel    string `validate:"max=32"`
	DeliveryID string `validate:"max=255"`
}

// BookingEvent reports a confirmed booking.
type BookingEvent struct {
	ContactRef
	Note string
}

// SideChannelResult is the contact state after a side-channel operation.
type SideChannelResult struct {
	ContactID      uuid.UUID    `json:"contactId"`
	Stage          domain.Stage `json:"stage"`
	MessageID      *uuid.UUID   `json:"messageId,omitempty"`
	AlreadyApplied bool         `json:"alreadyApplied,omitempty"`
}

// ContactView is the read model served to the dashboard.
type ContactView struct {
	Contact     repository.Contact
	Messages    []repository.Message
	Escalations []repository.Escalation
}

func (r ContactRef) normalized() ContactRef {
	return ContactRef{
		ExternalID: strings.TrimSpace(r.ExternalID),
		LocationID: strings.TrimSpace(r.LocationID),
		FirstName:  sanitize.Field(r.FirstName),
		LastName:   sanitize.Field(r.LastName),
		Email:      strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:      phone.NormalizeE164(r.Phone, phone.DefaultRegion),
	}
}

func (r ContactRef) upsert() repository.ContactUpsert {
	return repository.ContactUpsert{
		ExternalID: r.ExternalID,
		LocationID: r.LocationID,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
	}
}

func (e InboundEvent) normalized(defaultChannel string) InboundEvent {
	e.ContactRef = e.ContactRef.normalized()
	e.Text = sanitize.Text(e.Text)
	e.FirstMessage = sanitize.Text(e.FirstMessage)
	e.LastMemory = sanitize.Text(e.LastMemory)
	e.Channel = normalizeChannel(e.Channel, defaultChannel)
	e.DeliveryID = strings.TrimSpace(e.DeliveryID)
	return e
}

func normalizeChannel(channel, fallback string) string {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return fallback
	}
	return channel
}

func contactName(c repository.Contact) string {
	return strings.TrimSpace(deref(c.FirstName) + " " + deref(c.LastName))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
