package email

const (
	subjectEscalationFmt = "Review needed: %s"
	subjectBookingFmt    = "Booking confirmed: %s"
)
