// Package events defines the conversation events published after a commit.
// The bus itself lives in platform/events and is re-exported here.
package events

import (
	"engagement_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// ConversationEscalated is published after an exchange commits with a
// needs_review escalation.
type ConversationEscalated struct {
	BaseEvent
	ContactID      uuid.UUID `json:"contactId"`
	ExternalID     string    `json:"externalId"`
	LocationID     string    `json:"locationId,omitempty"`
	EscalationID   uuid.UUID `json:"escalationId"`
	EscalationType string    `json:"escalationType"`
	Reason         string    `json:"reason"`
	ContactName    string    `json:"contactName,omitempty"`
	LastInbound    string    `json:"lastInbound"`
	LastReply      string    `json:"lastReply"`
}

func (e ConversationEscalated) EventName() string { return "conversation.escalated" }

// BookingConfirmed is published the first time a contact is marked booked.
type BookingConfirmed struct {
	BaseEvent
	ContactID    uuid.UUID  `json:"contactId"`
	ExternalID   string     `json:"externalId"`
	LocationID   string     `json:"locationId,omitempty"`
	EscalationID *uuid.UUID `json:"escalationId,omitempty"`
	ContactName  string     `json:"contactName,omitempty"`
	Note         string     `json:"note,omitempty"`
}

func (e BookingConfirmed) EventName() string { return "conversation.booking_confirmed" }

// ContactOptedOut is published the first time a contact opts out.
type ContactOptedOut struct {
	BaseEvent
	ContactID  uuid.UUID `json:"contactId"`
	ExternalID string    `json:"externalId"`
	LocationID string    `json:"locationId,omitempty"`
	Dismissed  int       `json:"dismissed"`
}

func (e ContactOptedOut) EventName() string { return "conversation.contact_opted_out" }
