package repository

import (
	"context"
	"errors"
	"fmt"

	"engagement_backend/internal/conversation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const insertReplyQuery = `
	INSERT INTO messages (id, contact_id, direction, channel, content, message_type, ai_generated, reply_to_id)
	VALUES ($1, $2, 'outbound', $3, $4, $5, TRUE, $6)
	ON CONFLICT (reply_to_id) WHERE reply_to_id IS NOT NULL DO NOTHING
	RETURNING ` + messageColumns

// commitExchangeContactQuery increments counters in place. The stage is only
// written when this exchange's inbound is not older than the one that last set
// it, and never when the contact is booked or opted out.
const commitExchangeContactQuery = `
	UPDATE contacts SET
		message_count = message_count + $2,
		questions_asked = questions_asked + $3,
		needs_human_review = needs_human_review OR $4,
		conversation_stage = CASE
			WHEN conversation_stage IN ('booked', 'opted_out') THEN conversation_stage
			WHEN stage_updated_at IS NOT NULL AND stage_updated_at > $6 THEN conversation_stage
			ELSE $5
		END,
		stage_updated_at = CASE
			WHEN conversation_stage IN ('booked', 'opted_out') THEN stage_updated_at
			ELSE GREATEST(stage_updated_at, $6)
		END,
		calendar_link_sent = calendar_link_sent OR $7,
		calendar_link_sent_at = CASE
			WHEN $7 AND calendar_link_sent_at IS NULL THEN now()
			ELSE calendar_link_sent_at
		END,
		last_message_at = GREATEST(last_message_at, now()),
		updated_at = now()
	WHERE id = $1
	RETURNING ` + contactColumns

const calendarEscalationReason = "booking link sent to lead"

// CommitExchange writes the outbound reply, the contact update and any
// escalations in one transaction.
func (r *Repository) CommitExchange(ctx context.Context, in ExchangeCommit) (ExchangeResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ExchangeResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := lockContact(ctx, tx, in.ContactID)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("lock contact: %w", err)
	}
	decision := decideEscalation(before, in)

	inboundID := in.InboundID
	outbound, err := scanMessage(tx.QueryRow(ctx, insertReplyQuery,
		uuid.New(), in.ContactID, in.Channel, in.Reply, string(in.MessageType), &inboundID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return ExchangeResult{}, ErrAlreadyReplied
	}
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("insert reply: %w", err)
	}

	contact, err := scanContact(tx.QueryRow(ctx, commitExchangeContactQuery,
		in.ContactID, in.MessageDelta, in.QuestionDelta, decision.Escalate,
		string(in.Stage), in.InboundAt, in.CalendarLinkSent,
	))
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("update contact: %w", err)
	}

	result := ExchangeResult{Contact: contact, Outbound: outbound, Decision: decision}

	if decision.Escalate {
		result.Escalation, err = insertEscalation(ctx, tx, in.ContactID, decision.Type, decision.Reason, &outbound.ID)
		if err != nil {
			return ExchangeResult{}, fmt.Errorf("insert escalation: %w", err)
		}
	}

	if in.CalendarLinkSent && !before.CalendarLinkSent && !before.Stage.IsTerminal() {
		if _, err := resolvePending(ctx, tx, in.ContactID, domain.EscalationCalendarSent); err != nil {
			return ExchangeResult{}, fmt.Errorf("resolve calendar escalation: %w", err)
		}
		if _, err := insertEscalation(ctx, tx, in.ContactID, domain.EscalationCalendarSent, calendarEscalationReason, &outbound.ID); err != nil {
			return ExchangeResult{}, fmt.Errorf("insert calendar escalation: %w", err)
		}
		result.CalendarLinkFirstSent = true
	}

	if err := tx.Commit(ctx); err != nil {
		return ExchangeResult{}, err
	}
	return result, nil
}

// decideEscalation applies the policy to the counters as they will stand after
// this commit. Contacts that were booked or opted out while the reply was being
// generated are never escalated.
func decideEscalation(before Contact, in ExchangeCommit) domain.EscalationDecision {
	if before.Stage.IsTerminal() {
		return domain.EscalationDecision{}
	}
	return domain.DecideEscalation(in.Intent, before.QuestionsAsked+in.QuestionDelta, before.MessageCount+in.MessageDelta)
}
