package repository

import (
	"context"
	"errors"

	"engagement_backend/internal/conversation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const escalationColumns = `id, contact_id, escalation_type, reason, status, resolved_by,
	source_message_id, created_at, resolved_at`

const insertEscalationQuery = `
	INSERT INTO escalations (id, contact_id, escalation_type, reason, status, source_message_id)
	VALUES ($1, $2, $3, $4, 'pending', $5)
	ON CONFLICT (contact_id, escalation_type)
		WHERE status = 'pending' AND escalation_type IN ('calendar_sent', 'booked')
		DO NOTHING
	RETURNING ` + escalationColumns

const resolvePendingEscalationsQuery = `
	UPDATE escalations
	SET status = 'resolved', resolved_by = $3, resolved_at = now()
	WHERE contact_id = $1 AND escalation_type = $2 AND status = 'pending'`

const dismissPendingEscalationsQuery = `
	UPDATE escalations
	SET status = 'dismissed', resolved_by = $2, resolved_at = now()
	WHERE contact_id = $1 AND status = 'pending'`

const listPendingEscalationsQuery = `
	SELECT ` + escalationColumns + `
	FROM escalations
	WHERE contact_id = $1 AND status = 'pending'
	ORDER BY created_at ASC`

const selectEscalationBySourceQuery = `
	SELECT ` + escalationColumns + `
	FROM escalations
	WHERE source_message_id = $1 AND escalation_type = 'needs_review'
	LIMIT 1`

// ListPendingEscalations returns the open escalations for a contact.
func (r *Repository) ListPendingEscalations(ctx context.Context, contactID uuid.UUID) ([]Escalation, error) {
	rows, err := r.pool.Query(ctx, listPendingEscalationsQuery, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Escalation, 0)
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// FindReviewEscalation returns the needs_review escalation opened by an outbound message.
func (r *Repository) FindReviewEscalation(ctx context.Context, outboundID uuid.UUID) (Escalation, error) {
	e, err := scanEscalation(r.pool.QueryRow(ctx, selectEscalationBySourceQuery, outboundID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Escalation{}, ErrNotFound
	}
	return e, err
}

// insertEscalation returns nil when a workflow escalation of the same type is already pending.
func insertEscalation(ctx context.Context, tx pgx.Tx, contactID uuid.UUID, kind domain.EscalationType, reason string, source *uuid.UUID) (*Escalation, error) {
	e, err := scanEscalation(tx.QueryRow(ctx, insertEscalationQuery, uuid.New(), contactID, string(kind), reason, source))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func resolvePending(ctx context.Context, tx pgx.Tx, contactID uuid.UUID, kind domain.EscalationType) (int, error) {
	tag, err := tx.Exec(ctx, resolvePendingEscalationsQuery, contactID, string(kind), systemActor)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func dismissPending(ctx context.Context, tx pgx.Tx, contactID uuid.UUID) (int, error) {
	tag, err := tx.Exec(ctx, dismissPendingEscalationsQuery, contactID, systemActor)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanEscalation(row pgx.Row) (Escalation, error) {
	var e Escalation
	var kind, status string
	err := row.Scan(&e.ID, &e.ContactID, &kind, &e.Reason, &status, &e.ResolvedBy, &e.SourceMessageID, &e.CreatedAt, &e.ResolvedAt)
	if err != nil {
		return Escalation{}, err
	}
	e.Type = domain.EscalationType(kind)
	e.Status = domain.EscalationStatus(status)
	return e, nil
}
