package repository

import (
	"context"
	"errors"

	"engagement_backend/internal/conversation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const contactColumns = `id, external_id, location_id, first_name, last_name, email, phone,
	conversation_stage, message_count, questions_asked, bump_count, needs_human_review,
	calendar_link_sent, calendar_link_sent_at, is_qualified, qualified_at,
	is_opted_out, opted_out_at, last_message_at, created_at, updated_at`

// upsertContactQuery fills only columns that are still null or empty.
const upsertContactQuery = `
	INSERT INTO contacts (id, external_id, location_id, first_name, last_name, email, phone)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
	ON CONFLICT (external_id) DO UPDATE SET
		location_id = COALESCE(NULLIF(contacts.location_id, ''), EXCLUDED.location_id),
		first_name = COALESCE(NULLIF(contacts.first_name, ''), EXCLUDED.first_name),
		last_name = COALESCE(NULLIF(contacts.last_name, ''), EXCLUDED.last_name),
		email = COALESCE(NULLIF(contacts.email, ''), EXCLUDED.email),
		phone = COALESCE(NULLIF(contacts.phone, ''), EXCLUDED.phone),
		updated_at = now()
	RETURNING ` + contactColumns

const selectContactByExternalIDQuery = `SELECT ` + contactColumns + ` FROM contacts WHERE external_id = $1`

const selectContactForUpdateQuery = `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 FOR UPDATE`

// UpsertContact resolves or creates the contact for an external id.
func (r *Repository) UpsertContact(ctx context.Context, in ContactUpsert) (Contact, error) {
	row := r.pool.QueryRow(ctx, upsertContactQuery,
		uuid.New(), in.ExternalID, in.LocationID, in.FirstName, in.LastName, in.Email, in.Phone,
	)
	return scanContact(row)
}

// GetContactByExternalID loads a contact.
func (r *Repository) GetContactByExternalID(ctx context.Context, externalID string) (Contact, error) {
	c, err := scanContact(r.pool.QueryRow(ctx, selectContactByExternalIDQuery, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func lockContact(ctx context.Context, tx pgx.Tx, contactID uuid.UUID) (Contact, error) {
	c, err := scanContact(tx.QueryRow(ctx, selectContactForUpdateQuery, contactID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	var stage string
	err := row.Scan(
		&c.ID, &c.ExternalID, &c.LocationID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&stage, &c.MessageCount, &c.QuestionsAsked, &c.BumpCount, &c.NeedsHumanReview,
		&c.CalendarLinkSent, &c.CalendarLinkSentAt, &c.IsQualified, &c.QualifiedAt,
		&c.IsOptedOut, &c.OptedOutAt, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Contact{}, err
	}
	c.Stage = domain.Stage(stage)
	return c, nil
}
