package transport

import "github.com/google/uuid"

// ContactResponse is the contact record served to the dashboard.
type ContactResponse struct {
	ID                 uuid.UUID `json:"id"`
	ExternalID         string    `json:"externalId"`
	LocationID         *string   `json:"locationId,omitempty"`
	FirstName          *string   `json:"firstName,omitempty"`
	LastName           *string   `json:"lastName,omitempty"`
	Email              *string   `json:"email,omitempty"`
	Phone              *string   `json:"phone,omitempty"`
	Stage              string    `json:"stage"`
	MessageCount       int       `json:"messageCount"`
	QuestionsAsked     int       `json:"questionsAsked"`
	BumpCount          int       `json:"bumpCount"`
	NeedsHumanReview   bool      `json:"needsHumanReview"`
	CalendarLinkSent   bool      `json:"calendarLinkSent"`
	CalendarLinkSentAt *string   `json:"calendarLinkSentAt,omitempty"`
	IsQualified        bool      `json:"isQualified"`
	IsOptedOut         bool      `json:"isOptedOut"`
	LastMessageAt      *string   `json:"lastMessageAt,omitempty"`
	CreatedAt          string    `json:"createdAt"`
	UpdatedAt          string    `json:"updatedAt"`
}

// MessageResponse is one journal entry, oldest first in lists.
type MessageResponse struct {
	ID             uuid.UUID  `json:"id"`
	Direction      string     `json:"direction"`
	Channel        string     `json:"channel"`
	Content        string     `json:"content"`
	MessageType    string     `json:"messageType"`
	AIGenerated    bool       `json:"aiGenerated"`
	DetectedIntent *string    `json:"detectedIntent,omitempty"`
	ReplyToID      *uuid.UUID `json:"replyToId,omitempty"`
	CreatedAt      string     `json:"createdAt"`
}

// EscalationResponse is a pending request for human involvement.
type EscalationResponse struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"type"`
	Reason          string     `json:"reason"`
	Status          string     `json:"status"`
	SourceMessageID *uuid.UUID `json:"sourceMessageId,omitempty"`
	CreatedAt       string     `json:"createdAt"`
}

// ContactViewResponse bundles a contact with its recent history.
type ContactViewResponse struct {
	Contact            ContactResponse      `json:"contact"`
	Messages           []MessageResponse    `json:"messages"`
	PendingEscalations []EscalationResponse `json:"pendingEscalations"`
}
