// Package domain holds the pure decision logic of the conversation engine:
// stages, intents, escalation policy, reply signal detection and business hours.
// Nothing in this package performs I/O.
package domain

// Stage is a contact's position in the conversation lifecycle.
type Stage string

const (
	StageInitial          Stage = "initial"
	StageInConversation   Stage = "in_conversation"
	StageCalendarLinkSent Stage = "calendar_link_sent"
	StageStalled          Stage = "stalled"
	StageBooked           Stage = "booked"
	StageOptedOut         Stage = "opted_out"
)

var allStages = []Stage{
	StageInitial,
	StageInConversation,
	StageCalendarLinkSent,
	StageStalled,
	StageBooked,
	StageOptedOut,
}

// Stages returns every valid stage in lifecycle order.
func Stages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

// IsValid reports whether s is one of the fixed stage values.
func (s Stage) IsValid() bool {
	for _, candidate := range allStages {
		if s == candidate {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the automated pipeline must leave the stage alone.
func (s Stage) IsTerminal() bool {
	return s == StageBooked || s == StageOptedOut
}

// NextStage maps the signals detected in a generated reply to the contact's new stage.
// It is only evaluated for non-terminal contacts.
func NextStage(sig Signals) Stage {
	switch {
	case sig.BookingLink:
		return StageCalendarLinkSent
	case sig.Termination:
		return StageStalled
	case sig.Deferral:
		return StageStalled
	default:
		return StageInConversation
	}
}

// ResolveStage applies a stage produced by the pipeline to the current stage.
// Terminal stages are kept; only explicit events (booking, opt-out) may leave them.
func ResolveStage(current, proposed Stage) Stage {
	if current.IsTerminal() {
		return current
	}
	if !proposed.IsValid() {
		return current
	}
	return proposed
}
