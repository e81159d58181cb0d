package domain

// Direction of a journalled message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageType tags how a journalled message came to exist.
type MessageType string

const (
	MessageConversation MessageType = "conversation"
	MessageBump         MessageType = "bump"
	MessageCalendarSent MessageType = "calendar_sent"
	MessageOptOut       MessageType = "opt_out"
	MessageManual       MessageType = "manual"
)

// OutboundMessageType picks the journal tag for an AI reply.
func OutboundMessageType(sig Signals) MessageType {
	if sig.BookingLink {
		return MessageCalendarSent
	}
	return MessageConversation
}
