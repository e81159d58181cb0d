package domain

import (
	"regexp"
	"strings"
)

const (
	// TerminationSentinel is the literal reply the agent emits to end the exchange.
	TerminationSentinel = "END"
	// DeferralPhrase is the literal reply the agent emits when the lead is not ready yet.
	DeferralPhrase = "I'll follow up later"
)

// Signals are the control outcomes detected in a generated reply.
type Signals struct {
	BookingLink bool
	Termination bool
	Deferral    bool
}

// Silent reports whether the reply is a control sentinel rather than text for the lead.
func (s Signals) Silent() bool {
	return s.Termination
}

var bookingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`calendly\.com/`),
	regexp.MustCompile(`(^|[^a-z0-9])cal\.com/`),
	regexp.MustCompile(`savvycal\.com/`),
	regexp.MustCompile(`acuityscheduling\.com`),
	regexp.MustCompile(`meetings\.hubspot\.com/`),
	regexp.MustCompile(`/widget/booking/`),
	regexp.MustCompile(`https?://\S+/(book|booking|schedule)(/|\b)`),
}

var sentinelWrappers = [][2]string{{"[", "]"}, {"(", ")"}, {"{", "}"}, {"<", ">"}, {"**", "**"}, {"\"", "\""}, {"'", "'"}}

// DetectSignals runs every detector over the reply.
func DetectSignals(reply, schedulingLink string) Signals {
	return Signals{
		BookingLink: ContainsBookingLink(reply, schedulingLink),
		Termination: IsTerminationSignal(reply),
		Deferral:    IsDeferralSignal(reply),
	}
}

// ContainsBookingLink reports whether the reply carries the configured scheduling
// URL or a known scheduling-page pattern.
func ContainsBookingLink(reply, schedulingLink string) bool {
	text := strings.ToLower(reply)
	if text == "" {
		return false
	}
	if link := normalizeLink(schedulingLink); link != "" && strings.Contains(text, link) {
		return true
	}
	for _, pattern := range bookingPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// IsTerminationSignal reports whether the whole reply is the termination sentinel,
// optionally wrapped in one pair of markers such as brackets.
func IsTerminationSignal(reply string) bool {
	return strings.EqualFold(unwrapSentinel(reply), TerminationSentinel)
}

// IsDeferralSignal reports whether the reply contains the deferral phrase.
func IsDeferralSignal(reply string) bool {
	return strings.Contains(normalizeApostrophes(strings.ToLower(reply)), strings.ToLower(DeferralPhrase))
}

func unwrapSentinel(reply string) string {
	value := strings.TrimSpace(reply)
	value = strings.TrimRight(value, ".!")
	for _, pair := range sentinelWrappers {
		if len(value) > len(pair[0])+len(pair[1]) && strings.HasPrefix(value, pair[0]) && strings.HasSuffix(value, pair[1]) {
			value = strings.TrimSpace(value[len(pair[0]) : len(value)-len(pair[1])])
			break
		}
	}
	return value
}

func normalizeLink(link string) string {
	value := strings.ToLower(strings.TrimSpace(link))
	for _, prefix := range []string{"https://", "http://"} {
		value = strings.TrimPrefix(value, prefix)
	}
	value = strings.TrimPrefix(value, "www.")
	return strings.TrimRight(value, "/")
}

func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
}
