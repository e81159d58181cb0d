package domain

import "fmt"

// EscalationType names why a human is pulled into a conversation.
type EscalationType string

const (
	EscalationNeedsReview  EscalationType = "needs_review"
	EscalationCalendarSent EscalationType = "calendar_sent"
	EscalationBooked       EscalationType = "booked"
)

// EscalationStatus is the lifecycle state of an escalation record.
type EscalationStatus string

const (
	EscalationPending   EscalationStatus = "pending"
	EscalationResolved  EscalationStatus = "resolved"
	EscalationDismissed EscalationStatus = "dismissed"
)

const (
	// QuestionEscalationThreshold is the number of lead questions after which a human takes over.
	QuestionEscalationThreshold = 3
	// MessageEscalationThreshold is the conversation length after which a human takes over.
	MessageEscalationThreshold = 12

	reasonExtendedConversation = "extended conversation without booking"
	reasonObjection            = "lead raised an objection"
)

// EscalationDecision is the outcome of the escalation policy.
type EscalationDecision struct {
	Escalate bool
	Type     EscalationType
	Reason   string
}

// DecideEscalation evaluates the escalation rules in priority order; first match wins.
func DecideEscalation(intent Intent, questionsAsked, messageCount int) EscalationDecision {
	switch {
	case questionsAsked >= QuestionEscalationThreshold:
		return EscalationDecision{
			Escalate: true,
			Type:     EscalationNeedsReview,
			Reason:   fmt.Sprintf("lead has asked %d questions", questionsAsked),
		}
	case messageCount >= MessageEscalationThreshold:
		return EscalationDecision{Escalate: true, Type: EscalationNeedsReview, Reason: reasonExtendedConversation}
	case intent == IntentObjection:
		return EscalationDecision{Escalate: true, Type: EscalationNeedsReview, Reason: reasonObjection}
	default:
		return EscalationDecision{}
	}
}

// IsWorkflowType reports whether at most one pending escalation of this type may exist per contact.
func (t EscalationType) IsWorkflowType() bool {
	return t == EscalationCalendarSent || t == EscalationBooked
}
