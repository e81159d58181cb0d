package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is a decoded webhook body. Sources disagree on field names, so each
// logical field is read through one ordered alias list; the first non-empty
// value wins. Dotted aliases descend into nested objects.
type Payload map[string]any

var (
	externalIDAliases   = []string{"contact_id", "contactId", "external_id", "externalId", "contact.id", "ghl_contact_id", "lead_id", "leadId"}
	textAliases         = []string{"message", "message_body", "messageBody", "body", "text", "inbound_message", "reply", "customData.message", "message.body"}
	firstMessageAliases = []string{"first_message", "firstMessage", "initial_message", "campaign_message", "customData.first_message"}
	lastMemoryAliases   = []string{"last_memory", "lastMemory", "last_bump", "lastBump", "memory", "customData.last_memory"}
	locationAliases     = []string{"location_id", "locationId", "location.id", "workspace_id", "workspaceId"}
	firstNameAliases    = []string{"first_name", "firstName", "contact.first_name", "contact.firstName"}
	lastNameAliases     = []string{"last_name", "lastName", "contact.last_name", "contact.lastName"}
	emailAliases        = []string{"email", "contact.email", "email_address"}
	phoneAliases        = []string{"phone", "phone_number", "phoneNumber", "contact.phone"}
	channelAliases      = []string{"channel", "message_channel", "messageChannel", "message.type"}
	deliveryIDAliases   = []string{"delivery_id", "deliveryId", "webhook_id", "webhookId", "message_id", "messageId", "event_id", "eventId"}
	noteAliases         = []string{"note", "notes", "appointment_title", "appointmentTitle", "calendar.title"}
)

// ParsePayload decodes a JSON object body.
func ParsePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("decode webhook payload: expected a JSON object")
	}
	return p, nil
}

func (p Payload) ExternalID() string   { return p.first(externalIDAliases) }
func (p Payload) Text() string         { return p.first(textAliases) }
func (p Payload) FirstMessage() string { return p.first(firstMessageAliases) }
func (p Payload) LastMemory() string   { return p.first(lastMemoryAliases) }
func (p Payload) LocationID() string   { return p.first(locationAliases) }
func (p Payload) FirstName() string    { return p.first(firstNameAliases) }
func (p Payload) LastName() string     { return p.first(lastNameAliases) }
func (p Payload) Email() string        { return p.first(emailAliases) }
func (p Payload) Phone() string        { return p.first(phoneAliases) }
func (p Payload) Channel() string      { return p.first(channelAliases) }
func (p Payload) DeliveryID() string   { return p.first(deliveryIDAliases) }
func (p Payload) Note() string         { return p.first(noteAliases) }

// ContactRef extracts the contact identity fields.
func (p Payload) ContactRef() ContactRef {
	return ContactRef{
		ExternalID: p.ExternalID(),
		LocationID: p.LocationID(),
		FirstName:  p.FirstName(),
		LastName:   p.LastName(),
		Email:      p.Email(),
		Phone:      p.Phone(),
	}
}

// InboundEvent extracts an inbound message event.
func (p Payload) InboundEvent() InboundEvent {
	return InboundEvent{
		ContactRef:   p.ContactRef(),
		Text:         p.Text(),
		FirstMessage: p.FirstMessage(),
		LastMemory:   p.LastMemory(),
		Channel:      p.Channel(),
		DeliveryID:   p.DeliveryID(),
	}
}

// MessageEvent extracts a bump or manual reply event.
func (p Payload) MessageEvent() MessageEvent {
	return MessageEvent{
		ContactRef: p.ContactRef(),
		Text:       p.Text(),
		Channel:    p.Channel(),
		DeliveryID: p.DeliveryID(),
	}
}

// BookingEvent extracts a booking confirmation.
func (p Payload) BookingEvent() BookingEvent {
	return BookingEvent{ContactRef: p.ContactRef(), Note: p.Note()}
}

func (p Payload) first(aliases []string) string {
	for _, alias := range aliases {
		if v := stringValue(p.lookup(alias)); v != "" {
			return v
		}
	}
	return ""
}

func (p Payload) lookup(path string) any {
	if v, ok := p[path]; ok {
		return v
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil
	}
	nested, ok := p[head].(map[string]any)
	if !ok {
		return nil
	}
	return Payload(nested).lookup(rest)
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
