// Package metrics provides daily conversation counters persisted in Postgres
// and mirrored into Prometheus.
package metrics

// Name is one counter of the fixed reporting vocabulary.
type Name string

const (
	MessagesReceived  Name = "messages_received"
	MessagesSent      Name = "messages_sent"
	BumpsSent         Name = "bumps_sent"
	CalendarLinksSent Name = "calendar_links_sent"
	Bookings          Name = "bookings"
	OptOuts           Name = "opt_outs"
	HumanReviews      Name = "human_reviews"
)

var allNames = []Name{MessagesReceived, MessagesSent, BumpsSent, CalendarLinksSent, Bookings, OptOuts, HumanReviews}

// Names returns the full counter vocabulary.
func Names() []Name {
	out := make([]Name, len(allNames))
	copy(out, allNames)
	return out
}

// IsValid reports whether n is part of the vocabulary.
func (n Name) IsValid() bool {
	for _, candidate := range allNames {
		if n == candidate {
			return true
		}
	}
	return false
}
