package domain

import "strings"

var optOutKeywords = map[string]struct{}{
	"stop":        {},
	"stopall":     {},
	"stop all":    {},
	"unsubscribe": {},
	"cancel":      {},
	"end":         {},
	"quit":        {},
	"opt out":     {},
	"optout":      {},
	"opt-out":     {},
}

// IsOptOutKeyword reports whether the whole inbound message is a carrier opt-out keyword.
func IsOptOutKeyword(text string) bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	normalized = strings.TrimRight(normalized, ".!")
	_, ok := optOutKeywords[normalized]
	return ok
}
