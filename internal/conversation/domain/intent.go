package domain

import "strings"

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	IntentAnswer    Intent = "answer"
	IntentQuestion  Intent = "question"
	IntentObjection Intent = "objection"
	IntentAgreement Intent = "agreement"
	IntentRejection Intent = "rejection"
	IntentUnclear   Intent = "unclear"
)

var allIntents = []Intent{
	IntentAnswer,
	IntentQuestion,
	IntentObjection,
	IntentAgreement,
	IntentRejection,
	IntentUnclear,
}

// Intents returns the closed intent taxonomy.
func Intents() []Intent {
	out := make([]Intent, len(allIntents))
	copy(out, allIntents)
	return out
}

// IsValid reports whether i belongs to the taxonomy.
func (i Intent) IsValid() bool {
	for _, candidate := range allIntents {
		if i == candidate {
			return true
		}
	}
	return false
}

// ParseIntent normalizes a raw classifier label. Surrounding whitespace,
// quotes, brackets and trailing punctuation are ignored, as is case.
// Anything outside the taxonomy yields IntentUnclear and false.
func ParseIntent(raw string) (Intent, bool) {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.Trim(label, " \t\r\n\"'`*[](){}<>.:!")
	label = strings.TrimPrefix(label, "intent:")
	label = strings.TrimSpace(label)

	candidate := Intent(label)
	if candidate.IsValid() {
		return candidate, true
	}
	return IntentUnclear, false
}
