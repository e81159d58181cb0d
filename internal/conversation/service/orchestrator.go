// Package service is the orchestration engine: it turns an inbound
// webhook into a classified, answered and committed exchange.
package service

import (
	"context"
	"errors"
	"time"

	"engagement_backend/internal/conversation/agent"
	"engagement_backend/internal/conversation/domain"
	"engagement_backend/internal/conversation/repository"
	"engagement_backend/internal/events"
	"engagement_backend/internal/idempotency"
	"engagement_backend/internal/metrics"
	"engagement_backend/platform/apperr"
	"engagement_backend/platform/logger"
	"engagement_backend/platform/sanitize"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHistoryLimit = 20
	contactViewLimit    = 20
	// exchangeMessageDelta counts the inbound and the outbound of one exchange.
	exchangeMessageDelta = 2
)

// Deps wires the service. Metrics, CRM, Guard and Bus may be nil.
type Deps struct {
	Store          Store
	Classifier     Classifier
	Generator      Generator
	Profiles       ProfileProvider
	Metrics        MetricsRecorder
	CRM            ReplySyncer
	Guard          DeliveryGuard
	Bus            events.Bus
	Log            *logger.Logger
	HistoryLimit   int
	DefaultChannel string
	// DedupeDeliveries turns on delivery-id idempotency. When off, a
	// redelivered webhook is processed as a new message.
	DedupeDeliveries bool
}

// Service runs the inbound pipeline and the side-channel operations.
type Service struct {
	store          Store
	classifier     Classifier
	generator      Generator
	profiles       ProfileProvider
	metrics        MetricsRecorder
	crm            ReplySyncer
	guard          DeliveryGuard
	bus            events.Bus
	log            *logger.Logger
	historyLimit   int
	defaultChannel string
	dedupe         bool
	now            func() time.Time
}

func NewService(d Deps) *Service {
	historyLimit := d.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	channel := d.DefaultChannel
	if channel == "" {
		channel = "sms"
	}
	return &Service{
		store:          d.Store,
		classifier:     d.Classifier,
		generator:      d.Generator,
		profiles:       d.Profiles,
		metrics:        d.Metrics,
		crm:            d.CRM,
		guard:          d.Guard,
		bus:            d.Bus,
		log:            d.Log,
		historyLimit:   historyLimit,
		defaultChannel: channel,
		dedupe:         d.DedupeDeliveries,
		now:            time.Now,
	}
}

// exchange carries the state of one pass through the pipeline.
type exchange struct {
	event   InboundEvent
	contact repository.Contact
	// inbound is set once the inbound message is journalled.
	inbound *repository.Message
}

// HandleInbound processes one inbound message. On success the inbound
// message, the reply and the contact update are durably committed.
func (s *Service) HandleInbound(ctx context.Context, in InboundEvent) (InboundResult, error) {
	in = in.normalized(s.defaultChannel)
	if in.ExternalID == "" {
		return InboundResult{}, apperr.Validation("external contact id is required")
	}
	if sanitize.IsBlank(in.Text) {
		return InboundResult{}, apperr.Validation("inbound message text is required")
	}
	if !s.dedupe {
		in.DeliveryID = ""
	}

	release, err := s.claimDelivery(ctx, in.DeliveryID)
	if err != nil {
		return InboundResult{}, err
	}
	defer release()

	contact, err := s.resolveContact(ctx, in.ContactRef)
	if err != nil {
		return InboundResult{}, err
	}
	ctx = context.WithValue(ctx, logger.ContactIDKey, contact.ID.String())

	ex := &exchange{event: in, contact: contact}

	if in.DeliveryID != "" {
		result, done, err := s.resumeDelivery(ctx, ex)
		if err != nil || done {
			return result, err
		}
	}

	if domain.IsOptOutKeyword(in.Text) {
		return s.optOutFromInbound(ctx, ex)
	}
	if contact.Stage.IsTerminal() {
		return s.suppressInbound(ctx, ex)
	}

	return s.runExchange(ctx, ex)
}

// resumeDelivery handles a delivery id that was seen before. done is true
// when the stored outcome is returned as is.
func (s *Service) resumeDelivery(ctx context.Context, ex *exchange) (InboundResult, bool, error) {
	prior, err := s.store.FindInboundByDelivery(ctx, ex.contact.ID, ex.event.DeliveryID)
	if errors.Is(err, repository.ErrNotFound) {
		return InboundResult{}, false, nil
	}
	if err != nil {
		return InboundResult{}, true, apperr.Wrap(apperr.KindInternal, "look up delivery", err)
	}

	reply, err := s.store.FindReply(ctx, prior.ID)
	switch {
	case err == nil:
		result, err := s.replay(ctx, ex.contact, prior, reply)
		return result, true, err
	case errors.Is(err, repository.ErrNotFound):
	default:
		return InboundResult{}, true, apperr.Wrap(apperr.KindInternal, "look up reply", err)
	}

	if prior.MessageType != domain.MessageConversation || ex.contact.Stage.IsTerminal() {
		// Opt-outs and suppressed messages never get a reply.
		return InboundResult{
			ContactID:  ex.contact.ID,
			Stage:      ex.contact.Stage,
			Suppressed: prior.MessageType == domain.MessageConversation,
			OptedOut:   prior.MessageType == domain.MessageOptOut || ex.contact.IsOptedOut,
			Replayed:   true,
		}, true, nil
	}

	s.log.WithContext(ctx).Info("orchestrator: retrying delivery without reply", "deliveryId", ex.event.DeliveryID)
	ex.inbound = &prior
	return InboundResult{}, false, nil
}

func (s *Service) runExchange(ctx context.Context, ex *exchange) (InboundResult, error) {
	log := s.log.WithContext(ctx)
	in := ex.event
	contact := ex.contact

	var (
		history []repository.Message
		anchors repository.Anchors
	)
	profile := s.profiles.Profile(ctx, in.LocationID)

	loadStart := s.now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = s.store.ListRecentMessages(gctx, contact.ID, s.historyLimit)
		return err
	})
	g.Go(func() error {
		var err error
		anchors, err = s.store.GetAnchors(gctx, contact.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		log.DatabaseError("load_history", err)
		return InboundResult{}, apperr.Wrap(apperr.KindInternal, "load conversation history", err)
	}
	s.observe("load_history", loadStart)

	lastOutbound := anchors.LastOutbound
	if sanitize.IsBlank(lastOutbound) {
		lastOutbound = in.LastMemory
	}

	var intent domain.Intent
	if ex.inbound != nil && ex.inbound.DetectedIntent != nil {
		intent = *ex.inbound.DetectedIntent
	} else {
		classifyStart := s.now()
		intent = s.classifier.Classify(ctx, in.Text, lastOutbound)
		s.observe("classify", classifyStart)
	}

	if ex.inbound == nil {
		inbound, created, err := s.store.InsertInbound(ctx, repository.NewMessage{
			ContactID:      contact.ID,
			Direction:      domain.DirectionInbound,
			Channel:        in.Channel,
			Content:        in.Text,
			MessageType:    domain.MessageConversation,
			DetectedIntent: intent,
			DeliveryID:     in.DeliveryID,
		})
		if err != nil {
			log.DatabaseError("insert_inbound", err)
			return InboundResult{}, apperr.Wrap(apperr.KindInternal, "persist inbound message", err)
		}
		if !created {
			if reply, err := s.store.FindReply(ctx, inbound.ID); err == nil {
				return s.replay(ctx, contact, inbound, reply)
			}
		}
		ex.inbound = &inbound
	}

	pc := agent.PromptContext{
		Profile:          profile,
		ContactFirstName: firstNonEmpty(deref(contact.FirstName), in.FirstName),
		FirstOutbound:    firstNonEmpty(in.FirstMessage, anchors.FirstOutbound),
		LastAIMessage:    anchors.LastAIMessage,
		LastMemory:       in.LastMemory,
		Now:              s.now(),
	}

	generateStart := s.now()
	reply, err := s.generator.Generate(ctx, pc, toTurns(history, ex.inbound.ID), in.Text)
	s.observe("generate", generateStart)
	if err != nil {
		log.ExternalCallFailed("completion", "generate_reply", err)
		if s.metrics != nil {
			s.metrics.ExternalError("completion")
		}
		return InboundResult{}, apperr.Upstream("reply generation failed", err)
	}

	sig := domain.DetectSignals(reply, profile.SchedulingLink)
	stage := domain.NextStage(sig)
	questionDelta := 0
	if intent == domain.IntentQuestion {
		questionDelta = 1
	}

	committed, err := s.store.CommitExchange(ctx, repository.ExchangeCommit{
		ContactID:        contact.ID,
		InboundID:        ex.inbound.ID,
		InboundAt:        ex.inbound.CreatedAt,
		Channel:          in.Channel,
		Reply:            reply,
		MessageType:      domain.OutboundMessageType(sig),
		Stage:            stage,
		MessageDelta:     exchangeMessageDelta,
		QuestionDelta:    questionDelta,
		Intent:           intent,
		CalendarLinkSent: sig.BookingLink,
	})
	if errors.Is(err, repository.ErrAlreadyReplied) {
		existing, findErr := s.store.FindReply(ctx, ex.inbound.ID)
		if findErr != nil {
			return InboundResult{}, apperr.Wrap(apperr.KindInternal, "load committed reply", findErr)
		}
		return s.replay(ctx, contact, *ex.inbound, existing)
	}
	if err != nil {
		log.DatabaseError("commit_exchange", err)
		return InboundResult{}, apperr.Wrap(apperr.KindInternal, "commit exchange", err)
	}

	decision := committed.Decision
	s.recordExchange(ctx, in.LocationID, intent, sig, decision, committed)

	if committed.Escalation != nil && s.bus != nil {
		s.bus.Publish(ctx, events.ConversationEscalated{
			BaseEvent:      events.NewBaseEvent(),
			ContactID:      contact.ID,
			ExternalID:     contact.ExternalID,
			LocationID:     in.LocationID,
			EscalationID:   committed.Escalation.ID,
			EscalationType: string(committed.Escalation.Type),
			Reason:         committed.Escalation.Reason,
			ContactName:    contactName(committed.Contact),
			LastInbound:    in.Text,
			LastReply:      reply,
		})
	}

	if !sig.Silent() && s.crm != nil {
		s.crm.SyncReply(ctx, contact.ExternalID, reply)
	}

	log.Info("orchestrator: exchange committed",
		"intent", string(intent),
		"stage", string(committed.Contact.Stage),
		"escalated", decision.Escalate,
	)

	result := InboundResult{
		ContactID:        contact.ID,
		Reply:            reply,
		ShouldSend:       !sig.Silent(),
		Intent:           intent,
		Stage:            committed.Contact.Stage,
		Escalated:        decision.Escalate,
		EscalationReason: decision.Reason,
	}
	if sig.Silent() {
		result.Reply = ""
	}
	return result, nil
}

func (s *Service) recordExchange(ctx context.Context, locationID string, intent domain.Intent, sig domain.Signals, decision domain.EscalationDecision, committed repository.ExchangeResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveIntent(string(intent))
	s.metrics.Increment(ctx, locationID, metrics.MessagesReceived, 1)
	if !sig.Silent() {
		s.metrics.Increment(ctx, locationID, metrics.MessagesSent, 1)
	}
	if committed.CalendarLinkFirstSent {
		s.metrics.Increment(ctx, locationID, metrics.CalendarLinksSent, 1)
	}
	if decision.Escalate {
		s.metrics.Increment(ctx, locationID, metrics.HumanReviews, 1)
	}
}

// optOutFromInbound journals the opt-out message and stops the conversation.
func (s *Service) optOutFromInbound(ctx context.Context, ex *exchange) (InboundResult, error) {
	in := ex.event
	res, err := s.store.OptOut(ctx, ex.contact.ID, &repository.NewMessage{
		ContactID:   ex.contact.ID,
		Direction:   domain.DirectionInbound,
		Channel:     in.Channel,
		Content:     in.Text,
		MessageType: domain.MessageOptOut,
		DeliveryID:  in.DeliveryID,
	})
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("opt_out", err)
		return InboundResult{}, apperr.Wrap(apperr.KindInternal, "record opt-out", err)
	}

	if res.Message != nil {
		s.increment(ctx, in.LocationID, metrics.MessagesReceived)
	}
	s.afterOptOut(ctx, in.LocationID, res)

	return InboundResult{
		ContactID: ex.contact.ID,
		Stage:     res.Contact.Stage,
		OptedOut:  true,
	}, nil
}

// suppressInbound journals a message from a contact the pipeline no longer talks to.
func (s *Service) suppressInbound(ctx context.Context, ex *exchange) (InboundResult, error) {
	in := ex.event
	_, contact, err := s.store.AppendMessage(ctx, repository.AppendParams{
		Message: repository.NewMessage{
			ContactID:   ex.contact.ID,
			Direction:   domain.DirectionInbound,
			Channel:     in.Channel,
			Content:     in.Text,
			MessageType: domain.MessageConversation,
			DeliveryID:  in.DeliveryID,
		},
		MessageDelta: 1,
	})
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("append_suppressed", err)
		return InboundResult{}, apperr.Wrap(apperr.KindInternal, "persist inbound message", err)
	}
	s.increment(ctx, in.LocationID, metrics.MessagesReceived)

	s.log.WithContext(ctx).Info("orchestrator: inbound suppressed for terminal stage", "stage", string(contact.Stage))
	return InboundResult{
		ContactID:  contact.ID,
		Stage:      contact.Stage,
		Suppressed: true,
		OptedOut:   contact.IsOptedOut,
	}, nil
}

// replay rebuilds the result of an exchange that already committed.
func (s *Service) replay(ctx context.Context, contact repository.Contact, inbound, reply repository.Message) (InboundResult, error) {
	result := InboundResult{
		ContactID:  contact.ID,
		Reply:      reply.Content,
		ShouldSend: !domain.IsTerminationSignal(reply.Content),
		Stage:      contact.Stage,
		Replayed:   true,
	}
	if !result.ShouldSend {
		result.Reply = ""
	}
	if inbound.DetectedIntent != nil {
		result.Intent = *inbound.DetectedIntent
	}

	esc, err := s.store.FindReviewEscalation(ctx, reply.ID)
	switch {
	case err == nil:
		result.Escalated = true
		result.EscalationReason = esc.Reason
	case errors.Is(err, repository.ErrNotFound):
	default:
		return InboundResult{}, apperr.Wrap(apperr.KindInternal, "load escalation", err)
	}

	s.log.WithContext(ctx).Info("orchestrator: delivery replayed", "inboundId", inbound.ID.String())
	return result, nil
}

// claimDelivery takes the in-flight claim for a delivery id. A Redis outage
// degrades to the database-level guarantees rather than failing the webhook.
func (s *Service) claimDelivery(ctx context.Context, deliveryID string) (func(), error) {
	noop := func() {}
	if deliveryID == "" || s.guard == nil {
		return noop, nil
	}

	claim, err := s.guard.Claim(ctx, "inbound", deliveryID)
	if errors.Is(err, idempotency.ErrInFlight) {
		return noop, apperr.Conflict("delivery is already being processed").WithDetails(map[string]string{"deliveryId": deliveryID})
	}
	if err != nil {
		s.log.WithContext(ctx).ExternalCallFailed("redis", "claim_delivery", err)
		return noop, nil
	}

	return func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), claim); err != nil {
			s.log.WithContext(ctx).ExternalCallFailed("redis", "release_delivery", err)
		}
	}, nil
}

func (s *Service) increment(ctx context.Context, locationID string, name metrics.Name) {
	if s.metrics != nil {
		s.metrics.Increment(ctx, locationID, name, 1)
	}
}

func (s *Service) observe(step string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStep(step, s.now().Sub(start))
	}
}

// toTurns converts journal rows to prompt history, skipping the message
// being answered.
func toTurns(history []repository.Message, skip uuid.UUID) []agent.Turn {
	turns := make([]agent.Turn, 0, len(history))
	for _, m := range history {
		if m.ID == skip {
			continue
		}
		if m.Direction == domain.DirectionOutbound && domain.IsTerminationSignal(m.Content) {
			continue
		}
		turns = append(turns, agent.Turn{Direction: m.Direction, Content: m.Content})
	}
	return turns
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if !sanitize.IsBlank(v) {
			return v
		}
	}
	return ""
}
