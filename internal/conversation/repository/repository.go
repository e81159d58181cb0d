// Package repository is the Postgres access layer for contacts, the message
// journal and escalations.
package repository

import (
	"errors"
	"time"

	"engagement_backend/internal/conversation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a contact or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyReplied is returned when an outbound reply already exists for an inbound message.
	ErrAlreadyReplied = errors.New("inbound message already has a reply")
)

const systemActor = "system"

// Repository implements the conversation store on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Contact is one lead, keyed by the CRM's external id.
type Contact struct {
	ID                 uuid.UUID
	ExternalID         string
	LocationID         *string
	FirstName          *string
	LastName           *string
	Email              *string
	Phone              *string
	Stage              domain.Stage
	MessageCount       int
	QuestionsAsked     int
	BumpCount          int
	NeedsHumanReview   bool
	CalendarLinkSent   bool
	CalendarLinkSentAt *time.Time
	IsQualified        bool
	QualifiedAt        *time.Time
	IsOptedOut         bool
	OptedOutAt         *time.Time
	LastMessageAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ContactUpsert carries the identity fields supplied by a webhook.
// Empty values never overwrite populated columns.
type ContactUpsert struct {
	ExternalID string
	LocationID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
}

// Message is one immutable journal entry.
type Message struct {
	ID             uuid.UUID
	ContactID      uuid.UUID
	Direction      domain.Direction
	Channel        string
	Content        string
	MessageType    domain.MessageType
	AIGenerated    bool
	DetectedIntent *domain.Intent
	DeliveryID     *string
	ReplyToID      *uuid.UUID
	CreatedAt      time.Time
}

// NewMessage is the input for appending to the journal.
type NewMessage struct {
	ContactID      uuid.UUID
	Direction      domain.Direction
	Channel        string
	Content        string
	MessageType    domain.MessageType
	AIGenerated    bool
	DetectedIntent domain.Intent
	DeliveryID     string
	ReplyToID      *uuid.UUID
}

// Anchors are the fixed reference messages used to build the reply prompt.
type Anchors struct {
	FirstOutbound string
	LastOutbound  string
	LastAIMessage string
}

// Escalation is a request for, or record of, human involvement.
type Escalation struct {
	ID              uuid.UUID
	ContactID       uuid.UUID
	Type            domain.EscalationType
	Reason          string
	Status          domain.EscalationStatus
	ResolvedBy      *string
	SourceMessageID *uuid.UUID
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// ExchangeCommit is everything written once a reply has been generated.
// The escalation decision is taken inside the commit from the locked
// contact row, so Intent is passed instead of a decision.
type ExchangeCommit struct {
	ContactID        uuid.UUID
	InboundID        uuid.UUID
	InboundAt        time.Time
	Channel          string
	Reply            string
	MessageType      domain.MessageType
	Stage            domain.Stage
	MessageDelta     int
	QuestionDelta    int
	Intent           domain.Intent
	CalendarLinkSent bool
}

// ExchangeResult is the committed state after an exchange.
type ExchangeResult struct {
	Contact               Contact
	Outbound              Message
	Decision              domain.EscalationDecision
	Escalation            *Escalation
	CalendarLinkFirstSent bool
}

// AppendParams appends a journal entry outside the AI pipeline and bumps counters.
type AppendParams struct {
	Message      NewMessage
	MessageDelta int
	BumpDelta    int
}

// BookingResult is the outcome of confirming a booking.
type BookingResult struct {
	Contact       Contact
	AlreadyBooked bool
	Resolved      int
	Escalation    *Escalation
}

// OptOutResult is the outcome of an opt-out.
type OptOutResult struct {
	Contact         Contact
	AlreadyOptedOut bool
	Dismissed       int
	Message         *Message
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
