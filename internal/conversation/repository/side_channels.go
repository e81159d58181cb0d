package repository

import (
	"context"
	"errors"
	"fmt"

	"engagement_backend/internal/conversation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const appendCountersQuery = `
	UPDATE contacts SET
		message_count = message_count + $2,
		bump_count = bump_count + $3,
		last_message_at = GREATEST(last_message_at, now()),
		updated_at = now()
	WHERE id = $1
	RETURNING ` + contactColumns

const confirmBookingQuery = `
	UPDATE contacts SET
		conversation_stage = 'booked',
		stage_updated_at = now(),
		is_qualified = TRUE,
		qualified_at = COALESCE(qualified_at, now()),
		updated_at = now()
	WHERE id = $1
	RETURNING ` + contactColumns

const optOutQuery = `
	UPDATE contacts SET
		conversation_stage = 'opted_out',
		stage_updated_at = now(),
		is_opted_out = TRUE,
		opted_out_at = COALESCE(opted_out_at, now()),
		message_count = message_count + $2,
		last_message_at = CASE WHEN $2 > 0 THEN GREATEST(last_message_at, now()) ELSE last_message_at END,
		updated_at = now()
	WHERE id = $1
	RETURNING ` + contactColumns

// AppendMessage journals a message outside the AI pipeline (bumps, manual replies,
// suppressed inbound) and increments counters in the same transaction.
// A repeated delivery id returns the existing message without touching counters.
func (r *Repository) AppendMessage(ctx context.Context, in AppendParams) (Message, Contact, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Message{}, Contact{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockContact(ctx, tx, in.Message.ContactID); err != nil {
		return Message{}, Contact{}, fmt.Errorf("lock contact: %w", err)
	}

	msg, err := insertMessage(ctx, tx, in.Message)
	if errors.Is(err, pgx.ErrNoRows) && in.Message.DeliveryID != "" {
		existing, findErr := scanMessage(tx.QueryRow(ctx, selectMessageByDeliveryQuery, in.Message.ContactID, in.Message.DeliveryID))
		if findErr != nil {
			return Message{}, Contact{}, findErr
		}
		contact, lockErr := lockContact(ctx, tx, in.Message.ContactID)
		if lockErr != nil {
			return Message{}, Contact{}, lockErr
		}
		return existing, contact, tx.Commit(ctx)
	}
	if err != nil {
		return Message{}, Contact{}, fmt.Errorf("insert message: %w", err)
	}

	contact, err := scanContact(tx.QueryRow(ctx, appendCountersQuery, in.Message.ContactID, in.MessageDelta, in.BumpDelta))
	if err != nil {
		return Message{}, Contact{}, fmt.Errorf("update counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, Contact{}, err
	}
	return msg, contact, nil
}

// ConfirmBooking moves the contact to booked, resolves any pending
// calendar_sent escalation and opens a booked escalation, atomically.
func (r *Repository) ConfirmBooking(ctx context.Context, contactID uuid.UUID, note string) (BookingResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return BookingResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := lockContact(ctx, tx, contactID)
	if err != nil {
		return BookingResult{}, fmt.Errorf("lock contact: %w", err)
	}

	resolved, err := resolvePending(ctx, tx, contactID, domain.EscalationCalendarSent)
	if err != nil {
		return BookingResult{}, fmt.Errorf("resolve calendar escalation: %w", err)
	}

	contact, err := scanContact(tx.QueryRow(ctx, confirmBookingQuery, contactID))
	if err != nil {
		return BookingResult{}, fmt.Errorf("update contact: %w", err)
	}

	if note == "" {
		note = "booking confirmed"
	}
	escalation, err := insertEscalation(ctx, tx, contactID, domain.EscalationBooked, note, nil)
	if err != nil {
		return BookingResult{}, fmt.Errorf("insert booked escalation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return BookingResult{}, err
	}
	return BookingResult{
		Contact:       contact,
		AlreadyBooked: before.Stage == domain.StageBooked,
		Resolved:      resolved,
		Escalation:    escalation,
	}, nil
}

// OptOut moves the contact to opted_out and dismisses every pending escalation.
// When inbound is set the triggering message is journalled in the same transaction.
func (r *Repository) OptOut(ctx context.Context, contactID uuid.UUID, inbound *NewMessage) (OptOutResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return OptOutResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := lockContact(ctx, tx, contactID)
	if err != nil {
		return OptOutResult{}, fmt.Errorf("lock contact: %w", err)
	}

	result := OptOutResult{AlreadyOptedOut: before.IsOptedOut}
	messageDelta := 0
	if inbound != nil {
		msg, err := insertMessage(ctx, tx, *inbound)
		switch {
		case err == nil:
			result.Message = &msg
			messageDelta = 1
		case errors.Is(err, pgx.ErrNoRows):
			// delivery already journalled
		default:
			return OptOutResult{}, fmt.Errorf("insert opt-out message: %w", err)
		}
	}

	result.Dismissed, err = dismissPending(ctx, tx, contactID)
	if err != nil {
		return OptOutResult{}, fmt.Errorf("dismiss escalations: %w", err)
	}

	result.Contact, err = scanContact(tx.QueryRow(ctx, optOutQuery, contactID, messageDelta))
	if err != nil {
		return OptOutResult{}, fmt.Errorf("update contact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return OptOutResult{}, err
	}
	return result, nil
}
