package service

import (
	"context"
	"errors"

	"engagement_backend/internal/conversation/domain"
	"engagement_backend/internal/conversation/repository"
	"engagement_backend/internal/events"
	"engagement_backend/internal/metrics"
	"engagement_backend/platform/apperr"
	"engagement_backend/platform/logger"
	"engagement_backend/platform/sanitize"
)

// LogBump journals a scheduled nudge the messaging provider already sent.
func (s *Service) LogBump(ctx context.Context, ev MessageEvent) (SideChannelResult, error) {
	return s.appendOutbound(ctx, ev, domain.MessageBump, metrics.BumpsSent)
}

// LogManualReply journals a reply written by a human operator.
func (s *Service) LogManualReply(ctx context.Context, ev MessageEvent) (SideChannelResult, error) {
	return s.appendOutbound(ctx, ev, domain.MessageManual, metrics.MessagesSent)
}

func (s *Service) appendOutbound(ctx context.Context, ev MessageEvent, kind domain.MessageType, counter metrics.Name) (SideChannelResult, error) {
	ev.ContactRef = ev.ContactRef.normalized()
	ev.Text = sanitize.Text(ev.Text)
	if ev.ExternalID == "" {
		return SideChannelResult{}, apperr.Validation("external contact id is required")
	}
	if sanitize.IsBlank(ev.Text) {
		return SideChannelResult{}, apperr.Validation("message text is required")
	}

	contact, err := s.resolveContact(ctx, ev.ContactRef)
	if err != nil {
		return SideChannelResult{}, err
	}
	ctx = context.WithValue(ctx, logger.ContactIDKey, contact.ID.String())

	params := repository.AppendParams{
		Message: repository.NewMessage{
			ContactID:   contact.ID,
			Direction:   domain.DirectionOutbound,
			Channel:     normalizeChannel(ev.Channel, s.defaultChannel),
			Content:     ev.Text,
			MessageType: kind,
		},
	}
	if s.dedupe {
		params.Message.DeliveryID = ev.DeliveryID
	}
	if kind == domain.MessageBump {
		params.BumpDelta = 1
	} else {
		params.MessageDelta = 1
	}

	msg, updated, err := s.store.AppendMessage(ctx, params)
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("append_"+string(kind), err)
		return SideChannelResult{}, apperr.Wrap(apperr.KindInternal, "journal message", err)
	}
	s.increment(ctx, ev.LocationID, counter)

	s.log.WithContext(ctx).Info("conversation: message journalled", "type", string(kind))
	return SideChannelResult{
		ContactID: updated.ID,
		Stage:     updated.Stage,
		MessageID: &msg.ID,
	}, nil
}

// LogBooking marks the contact booked, closes the calendar escalation and
// opens a booked one. Repeating it does not double count the booking.
func (s *Service) LogBooking(ctx context.Context, ev BookingEvent) (SideChannelResult, error) {
	ev.ContactRef = ev.ContactRef.normalized()
	ev.Note = sanitize.Field(ev.Note)
	if ev.ExternalID == "" {
		return SideChannelResult{}, apperr.Validation("external contact id is required")
	}

	contact, err := s.resolveContact(ctx, ev.ContactRef)
	if err != nil {
		return SideChannelResult{}, err
	}
	ctx = context.WithValue(ctx, logger.ContactIDKey, contact.ID.String())

	res, err := s.store.ConfirmBooking(ctx, contact.ID, ev.Note)
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("confirm_booking", err)
		return SideChannelResult{}, apperr.Wrap(apperr.KindInternal, "confirm booking", err)
	}

	if !res.AlreadyBooked {
		s.increment(ctx, ev.LocationID, metrics.Bookings)
		if s.bus != nil {
			event := events.BookingConfirmed{
				BaseEvent:   events.NewBaseEvent(),
				ContactID:   contact.ID,
				ExternalID:  contact.ExternalID,
				LocationID:  ev.LocationID,
				ContactName: contactName(res.Contact),
				Note:        ev.Note,
			}
			if res.Escalation != nil {
				event.EscalationID = &res.Escalation.ID
			}
			s.bus.Publish(ctx, event)
		}
	}

	s.log.WithContext(ctx).Info("conversation: booking confirmed", "resolved", res.Resolved, "alreadyBooked", res.AlreadyBooked)
	return SideChannelResult{
		ContactID:      res.Contact.ID,
		Stage:          res.Contact.Stage,
		AlreadyApplied: res.AlreadyBooked,
	}, nil
}

// LogOptOut stops all automation for the contact and dismisses its pending
// escalations. It is idempotent.
func (s *Service) LogOptOut(ctx context.Context, ref ContactRef) (SideChannelResult, error) {
	ref = ref.normalized()
	if ref.ExternalID == "" {
		return SideChannelResult{}, apperr.Validation("external contact id is required")
	}

	contact, err := s.resolveContact(ctx, ref)
	if err != nil {
		return SideChannelResult{}, err
	}
	ctx = context.WithValue(ctx, logger.ContactIDKey, contact.ID.String())

	res, err := s.store.OptOut(ctx, contact.ID, nil)
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("opt_out", err)
		return SideChannelResult{}, apperr.Wrap(apperr.KindInternal, "record opt-out", err)
	}
	s.afterOptOut(ctx, ref.LocationID, res)

	return SideChannelResult{
		ContactID:      res.Contact.ID,
		Stage:          res.Contact.Stage,
		AlreadyApplied: res.AlreadyOptedOut,
	}, nil
}

func (s *Service) afterOptOut(ctx context.Context, locationID string, res repository.OptOutResult) {
	if res.AlreadyOptedOut {
		return
	}
	s.increment(ctx, locationID, metrics.OptOuts)
	if s.bus != nil {
		s.bus.Publish(ctx, events.ContactOptedOut{
			BaseEvent:  events.NewBaseEvent(),
			ContactID:  res.Contact.ID,
			ExternalID: res.Contact.ExternalID,
			LocationID: locationID,
			Dismissed:  res.Dismissed,
		})
	}
	s.log.WithContext(ctx).Info("conversation: contact opted out", "dismissed", res.Dismissed)
}

// GetContact returns the contact with its recent messages and pending escalations.
func (s *Service) GetContact(ctx context.Context, externalID string) (ContactView, error) {
	contact, err := s.store.GetContactByExternalID(ctx, externalID)
	if errors.Is(err, repository.ErrNotFound) {
		return ContactView{}, apperr.NotFound("contact not found")
	}
	if err != nil {
		return ContactView{}, apperr.Wrap(apperr.KindInternal, "load contact", err)
	}

	messages, err := s.store.ListRecentMessages(ctx, contact.ID, contactViewLimit)
	if err != nil {
		return ContactView{}, apperr.Wrap(apperr.KindInternal, "load messages", err)
	}
	escalations, err := s.store.ListPendingEscalations(ctx, contact.ID)
	if err != nil {
		return ContactView{}, apperr.Wrap(apperr.KindInternal, "load escalations", err)
	}

	return ContactView{Contact: contact, Messages: messages, Escalations: escalations}, nil
}

func (s *Service) resolveContact(ctx context.Context, ref ContactRef) (repository.Contact, error) {
	contact, err := s.store.UpsertContact(ctx, ref.upsert())
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("upsert_contact", err)
		return repository.Contact{}, apperr.Wrap(apperr.KindInternal, "resolve contact", err)
	}
	return contact, nil
}
