package service

import (
	"context"
	"time"

	"engagement_backend/internal/conversation/agent"
	"engagement_backend/internal/conversation/domain"
	"engagement_backend/internal/conversation/repository"
	"engagement_backend/internal/idempotency"
	"engagement_backend/internal/metrics"
	"engagement_backend/internal/settings"

	"github.com/google/uuid"
)

// Store is the persistence the service needs. *repository.Repository implements it.
type Store interface {
	UpsertContact(ctx context.Context, in repository.ContactUpsert) (repository.Contact, error)
	GetContactByExternalID(ctx context.Context, externalID string) (repository.Contact, error)

	InsertInbound(ctx context.Context, m repository.NewMessage) (repository.Message, bool, error)
	FindInboundByDelivery(ctx context.Context, contactID uuid.UUID, deliveryID string) (repository.Message, error)
	FindReply(ctx context.Context, inboundID uuid.UUID) (repository.Message, error)
	ListRecentMessages(ctx context.Context, contactID uuid.UUID, limit int) ([]repository.Message, error)
	GetAnchors(ctx context.Context, contactID uuid.UUID) (repository.Anchors, error)

	CommitExchange(ctx context.Context, in repository.ExchangeCommit) (repository.ExchangeResult, error)
	AppendMessage(ctx context.Context, in repository.AppendParams) (repository.Message, repository.Contact, error)
	ConfirmBooking(ctx context.Context, contactID uuid.UUID, note string) (repository.BookingResult, error)
	OptOut(ctx context.Context, contactID uuid.UUID, inbound *repository.NewMessage) (repository.OptOutResult, error)

	ListPendingEscalations(ctx context.Context, contactID uuid.UUID) ([]repository.Escalation, error)
	FindReviewEscalation(ctx context.Context, outboundID uuid.UUID) (repository.Escalation, error)
}

// Classifier labels an inbound message. It never fails.
type Classifier interface {
	Classify(ctx context.Context, inbound, lastOutbound string) domain.Intent
}

// Generator produces the agent's reply. Errors are fatal to the exchange.
type Generator interface {
	Generate(ctx context.Context, pc agent.PromptContext, history []agent.Turn, inbound string) (string, error)
}

// ProfileProvider resolves the operator profile for a location.
type ProfileProvider interface {
	Profile(ctx context.Context, locationID string) settings.AgentProfile
}

// MetricsRecorder receives best-effort counter increments.
type MetricsRecorder interface {
	Increment(ctx context.Context, locationID string, name metrics.Name, n int64)
	ObserveIntent(intent string)
	ObserveStep(step string, d time.Duration)
	ExternalError(service string)
}

// ReplySyncer pushes the latest AI reply to the CRM without blocking.
type ReplySyncer interface {
	SyncReply(ctx context.Context, externalID, reply string)
}

// DeliveryGuard serialises concurrent deliveries of the same webhook.
type DeliveryGuard interface {
	Claim(ctx context.Context, scope, deliveryID string) (idempotency.Claim, error)
	Release(ctx context.Context, claim idempotency.Claim) error
}
