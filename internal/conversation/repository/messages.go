package repository

import (
	"context"
	"errors"

	"engagement_backend/internal/conversation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, contact_id, direction, channel, content, message_type,
	ai_generated, detected_intent, delivery_id, reply_to_id, created_at`

const insertMessageQuery = `
	INSERT INTO messages (id, contact_id, direction, channel, content, message_type,
		ai_generated, detected_intent, delivery_id, reply_to_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (contact_id, delivery_id) WHERE delivery_id IS NOT NULL DO NOTHING
	RETURNING ` + messageColumns

const selectMessageByDeliveryQuery = `
	SELECT ` + messageColumns + `
	FROM messages
	WHERE contact_id = $1 AND delivery_id = $2`

// listRecentMessagesQuery returns the newest N messages, oldest first.
const listRecentMessagesQuery = `
	SELECT ` + messageColumns + `
	FROM (
		SELECT ` + messageColumns + `
		FROM messages
		WHERE contact_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	) recent
	ORDER BY created_at ASC, id ASC`

const selectAnchorsQuery = `
	SELECT
		(SELECT content FROM messages
			WHERE contact_id = $1 AND direction = 'outbound'
			ORDER BY created_at ASC LIMIT 1),
		(SELECT content FROM messages
			WHERE contact_id = $1 AND direction = 'outbound' AND upper(btrim(content, ' []')) <> $2
			ORDER BY created_at DESC LIMIT 1),
		(SELECT content FROM messages
			WHERE contact_id = $1 AND direction = 'outbound' AND ai_generated AND upper(btrim(content, ' []')) <> $2
			ORDER BY created_at DESC LIMIT 1)`

const selectReplyQuery = `SELECT ` + messageColumns + ` FROM messages WHERE reply_to_id = $1`

// InsertInbound journals an inbound message. When the delivery id was already
// journalled for the contact, the existing row is returned with created=false.
func (r *Repository) InsertInbound(ctx context.Context, m NewMessage) (Message, bool, error) {
	msg, err := insertMessage(ctx, r.pool, m)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || m.DeliveryID == "" {
		return Message{}, false, err
	}
	existing, err := r.FindInboundByDelivery(ctx, m.ContactID, m.DeliveryID)
	if err != nil {
		return Message{}, false, err
	}
	return existing, false, nil
}

// FindInboundByDelivery returns the journalled message for an upstream delivery id.
func (r *Repository) FindInboundByDelivery(ctx context.Context, contactID uuid.UUID, deliveryID string) (Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, selectMessageByDeliveryQuery, contactID, deliveryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return msg, err
}

// FindReply returns the outbound reply committed for an inbound message.
func (r *Repository) FindReply(ctx context.Context, inboundID uuid.UUID) (Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, selectReplyQuery, inboundID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return msg, err
}

// ListRecentMessages returns the bounded conversation history, oldest first.
func (r *Repository) ListRecentMessages(ctx context.Context, contactID uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, listRecentMessagesQuery, contactID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

// GetAnchors returns the first outbound, latest outbound and latest AI message.
// Termination sentinels are skipped for the latter two.
func (r *Repository) GetAnchors(ctx context.Context, contactID uuid.UUID) (Anchors, error) {
	var first, last, lastAI *string
	err := r.pool.QueryRow(ctx, selectAnchorsQuery, contactID, domain.TerminationSentinel).Scan(&first, &last, &lastAI)
	if err != nil {
		return Anchors{}, err
	}
	return Anchors{FirstOutbound: deref(first), LastOutbound: deref(last), LastAIMessage: deref(lastAI)}, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertMessage(ctx context.Context, q queryRower, m NewMessage) (Message, error) {
	var intent *string
	if m.DetectedIntent != "" {
		v := string(m.DetectedIntent)
		intent = &v
	}
	return scanMessage(q.QueryRow(ctx, insertMessageQuery,
		uuid.New(), m.ContactID, string(m.Direction), m.Channel, m.Content, string(m.MessageType),
		m.AIGenerated, intent, nullableString(m.DeliveryID), m.ReplyToID,
	))
}

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	var direction, messageType string
	var intent *string
	err := row.Scan(
		&msg.ID, &msg.ContactID, &direction, &msg.Channel, &msg.Content, &messageType,
		&msg.AIGenerated, &intent, &msg.DeliveryID, &msg.ReplyToID, &msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	msg.Direction = domain.Direction(direction)
	msg.MessageType = domain.MessageType(messageType)
	if intent != nil {
		v := domain.Intent(*intent)
		msg.DetectedIntent = &v
	}
	return msg, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
