// Package notification provides event handlers that alert the operator in
// response to conversation events.
// This module subscribes to events and inverts the dependency: the
// orchestrator does not know about e-mail providers or templates.
package notification

import (
	"context"
	"strings"

	"engagement_backend/internal/email"
	"engagement_backend/internal/events"
	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"
)

type Module struct {
	sender    email.Sender
	recipient string
	log       *logger.Logger
}

// New creates the notification module. Alerts are only e-mailed when an
// alert recipient is configured.
func New(sender email.Sender, cfg config.EmailConfig, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	return &Module{
		sender:    sender,
		recipient: strings.TrimSpace(cfg.GetAlertRecipient()),
		log:       log,
	}
}

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.ConversationEscalated{}.EventName(), m)
	bus.Subscribe(events.BookingConfirmed{}.EventName(), m)
	bus.Subscribe(events.ContactOptedOut{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ConversationEscalated:
		return m.handleConversationEscalated(ctx, e)
	case events.BookingConfirmed:
		return m.handleBookingConfirmed(ctx, e)
	case events.ContactOptedOut:
		m.log.Info("notification: contact opted out", "eventId", e.EventID().String(), "contactId", e.ContactID.String(), "dismissed", e.Dismissed)
		return nil
	default:
		m.log.Warn("notification: unhandled event", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleConversationEscalated(ctx context.Context, e events.ConversationEscalated) error {
	m.log.Info("notification: conversation escalated",
		"eventId", e.EventID().String(),
		"contactId", e.ContactID.String(),
		"escalationId", e.EscalationID.String(),
		"reason", e.Reason,
	)
	if m.recipient == "" {
		return nil
	}

	err := m.sender.SendEscalationAlert(ctx, m.recipient, email.EscalationAlert{
		ContactName: e.ContactName,
		ExternalID:  e.ExternalID,
		Reason:      e.Reason,
		LastInbound: e.LastInbound,
		LastReply:   e.LastReply,
	})
	if err != nil {
		m.log.ExternalCallFailed("smtp", "escalation_alert", err)
	}
	return err
}

func (m *Module) handleBookingConfirmed(ctx context.Context, e events.BookingConfirmed) error {
	m.log.Info("notification: booking confirmed", "contactId", e.ContactID.String())
	if m.recipient == "" {
		return nil
	}

	err := m.sender.SendBookingAlert(ctx, m.recipient, email.BookingAlert{
		ContactName: e.ContactName,
		ExternalID:  e.ExternalID,
		Note:        e.Note,
	})
	if err != nil {
		m.log.ExternalCallFailed("smtp", "booking_alert", err)
	}
	return err
}
