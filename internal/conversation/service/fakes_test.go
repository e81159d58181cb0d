package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"engagement_backend/internal/conversation/agent"
	"engagement_backend/internal/conversation/domain"
	"engagement_backend/internal/conversation/repository"
	"engagement_backend/internal/idempotency"
	"engagement_backend/internal/metrics"
	"engagement_backend/internal/settings"

	"github.com/google/uuid"
)

// memoryStore mirrors the transactional behaviour of the Postgres repository:
// each write method applies all of its changes or none of them.
type memoryStore struct {
	mu          sync.Mutex
	contacts    map[uuid.UUID]*repository.Contact
	byExternal  map[string]uuid.UUID
	messages    []repository.Message
	escalations []repository.Escalation
	clock       time.Time

	failCommit error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		contacts:   make(map[uuid.UUID]*repository.Contact),
		byExternal: make(map[string]uuid.UUID),
		clock:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func fill(dst **string, v string) {
	if v == "" {
		return
	}
	if *dst == nil || **dst == "" {
		val := v
		*dst = &val
	}
}

func (m *memoryStore) UpsertContact(_ context.Context, in repository.ContactUpsert) (repository.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExternal[in.ExternalID]
	if !ok {
		id = uuid.New()
		now := m.tick()
		m.contacts[id] = &repository.Contact{ID: id, ExternalID: in.ExternalID, Stage: domain.StageInitial, CreatedAt: now, UpdatedAt: now}
		m.byExternal[in.ExternalID] = id
	}
	c := m.contacts[id]
	fill(&c.LocationID, in.LocationID)
	fill(&c.FirstName, in.FirstName)
	fill(&c.LastName, in.LastName)
	fill(&c.Email, in.Email)
	fill(&c.Phone, in.Phone)
	return *c, nil
}

func (m *memoryStore) GetContactByExternalID(_ context.Context, externalID string) (repository.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExternal[externalID]
	if !ok {
		return repository.Contact{}, repository.ErrNotFound
	}
	return *m.contacts[id], nil
}

func (m *memoryStore) insertLocked(nm repository.NewMessage) repository.Message {
	msg := repository.Message{
		ID:          uuid.New(),
		ContactID:   nm.ContactID,
		Direction:   nm.Direction,
		Channel:     nm.Channel,
		Content:     nm.Content,
		MessageType: nm.MessageType,
		AIGenerated: nm.AIGenerated,
		ReplyToID:   nm.ReplyToID,
		CreatedAt:   m.tick(),
	}
	if nm.DetectedIntent != "" {
		intent := nm.DetectedIntent
		msg.DetectedIntent = &intent
	}
	if nm.DeliveryID != "" {
		d := nm.DeliveryID
		msg.DeliveryID = &d
	}
	m.messages = append(m.messages, msg)
	return msg
}

func (m *memoryStore) findDeliveryLocked(contactID uuid.UUID, deliveryID string) (repository.Message, bool) {
	for _, msg := range m.messages {
		if msg.ContactID == contactID && msg.DeliveryID != nil && *msg.DeliveryID == deliveryID {
			return msg, true
		}
	}
	return repository.Message{}, false
}

func (m *memoryStore) InsertInbound(_ context.Context, nm repository.NewMessage) (repository.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if nm.DeliveryID != "" {
		if existing, ok := m.findDeliveryLocked(nm.ContactID, nm.DeliveryID); ok {
			return existing, false, nil
		}
	}
	return m.insertLocked(nm), true, nil
}

func (m *memoryStore) FindInboundByDelivery(_ context.Context, contactID uuid.UUID, deliveryID string) (repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.findDeliveryLocked(contactID, deliveryID); ok {
		return msg, nil
	}
	return repository.Message{}, repository.ErrNotFound
}

func (m *memoryStore) findReplyLocked(inboundID uuid.UUID) (repository.Message, bool) {
	for _, msg := range m.messages {
		if msg.ReplyToID != nil && *msg.ReplyToID == inboundID {
			return msg, true
		}
	}
	return repository.Message{}, false
}

func (m *memoryStore) FindReply(_ context.Context, inboundID uuid.UUID) (repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.findReplyLocked(inboundID); ok {
		return msg, nil
	}
	return repository.Message{}, repository.ErrNotFound
}

func (m *memoryStore) ListRecentMessages(_ context.Context, contactID uuid.UUID, limit int) ([]repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []repository.Message
	for _, msg := range m.messages {
		if msg.ContactID == contactID {
			all = append(all, msg)
		}
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memoryStore) GetAnchors(_ context.Context, contactID uuid.UUID) (repository.Anchors, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var a repository.Anchors
	for _, msg := range m.messages {
		if msg.ContactID != contactID || msg.Direction != domain.DirectionOutbound || domain.IsTerminationSignal(msg.Content) {
			continue
		}
		if a.FirstOutbound == "" {
			a.FirstOutbound = msg.Content
		}
		a.LastOutbound = msg.Content
		if msg.AIGenerated {
			a.LastAIMessage = msg.Content
		}
	}
	return a, nil
}

func (m *memoryStore) addEscalationLocked(contactID uuid.UUID, kind domain.EscalationType, reason string, source *uuid.UUID) *repository.Escalation {
	if kind.IsWorkflowType() {
		for _, e := range m.escalations {
			if e.ContactID == contactID && e.Type == kind && e.Status == domain.EscalationPending {
				return nil
			}
		}
	}
	e := repository.Escalation{
		ID:              uuid.New(),
		ContactID:       contactID,
		Type:            kind,
		Reason:          reason,
		Status:          domain.EscalationPending,
		SourceMessageID: source,
		CreatedAt:       m.tick(),
	}
	m.escalations = append(m.escalations, e)
	return &e
}

func (m *memoryStore) setStatusLocked(contactID uuid.UUID, match func(repository.Escalation) bool, status domain.EscalationStatus) int {
	n := 0
	actor := "system"
	for i := range m.escalations {
		e := &m.escalations[i]
		if e.ContactID == contactID && e.Status == domain.EscalationPending && match(*e) {
			now := m.tick()
			e.Status = status
			e.ResolvedBy = &actor
			e.ResolvedAt = &now
			n++
		}
	}
	return n
}

func (m *memoryStore) CommitExchange(_ context.Context, in repository.ExchangeCommit) (repository.ExchangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCommit != nil {
		return repository.ExchangeResult{}, m.failCommit
	}
	if _, ok := m.findReplyLocked(in.InboundID); ok {
		return repository.ExchangeResult{}, repository.ErrAlreadyReplied
	}

	c := m.contacts[in.ContactID]
	var decision domain.EscalationDecision
	if !c.Stage.IsTerminal() {
		decision = domain.DecideEscalation(in.Intent, c.QuestionsAsked+in.QuestionDelta, c.MessageCount+in.MessageDelta)
	}
	wasTerminal := c.Stage.IsTerminal()
	inboundID := in.InboundID
	out := m.insertLocked(repository.NewMessage{
		ContactID:   in.ContactID,
		Direction:   domain.DirectionOutbound,
		Channel:     in.Channel,
		Content:     in.Reply,
		MessageType: in.MessageType,
		AIGenerated: true,
		ReplyToID:   &inboundID,
	})

	c.MessageCount += in.MessageDelta
	c.QuestionsAsked += in.QuestionDelta
	c.NeedsHumanReview = c.NeedsHumanReview || decision.Escalate
	c.Stage = domain.ResolveStage(c.Stage, in.Stage)
	now := m.tick()
	c.LastMessageAt = &now

	result := repository.ExchangeResult{Outbound: out, Decision: decision}
	if decision.Escalate {
		result.Escalation = m.addEscalationLocked(in.ContactID, decision.Type, decision.Reason, &out.ID)
	}
	if in.CalendarLinkSent && !c.CalendarLinkSent && !wasTerminal {
		c.CalendarLinkSent = true
		c.CalendarLinkSentAt = &now
		result.CalendarLinkFirstSent = true
		m.setStatusLocked(in.ContactID, func(e repository.Escalation) bool { return e.Type == domain.EscalationCalendarSent }, domain.EscalationResolved)
		m.addEscalationLocked(in.ContactID, domain.EscalationCalendarSent, "booking link sent to lead", &out.ID)
	}
	result.Contact = *c
	return result, nil
}

func (m *memoryStore) AppendMessage(_ context.Context, in repository.AppendParams) (repository.Message, repository.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.contacts[in.Message.ContactID]
	if in.Message.DeliveryID != "" {
		if existing, ok := m.findDeliveryLocked(in.Message.ContactID, in.Message.DeliveryID); ok {
			return existing, *c, nil
		}
	}
	msg := m.insertLocked(in.Message)
	c.MessageCount += in.MessageDelta
	c.BumpCount += in.BumpDelta
	return msg, *c, nil
}

func (m *memoryStore) ConfirmBooking(_ context.Context, contactID uuid.UUID, note string) (repository.BookingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.contacts[contactID]
	res := repository.BookingResult{AlreadyBooked: c.Stage == domain.StageBooked}
	res.Resolved = m.setStatusLocked(contactID, func(e repository.Escalation) bool { return e.Type == domain.EscalationCalendarSent }, domain.EscalationResolved)
	if c.Stage != domain.StageOptedOut {
		c.Stage = domain.StageBooked
	}
	if !c.IsQualified {
		now := m.tick()
		c.IsQualified = true
		c.QualifiedAt = &now
	}
	if note == "" {
		note = "booking confirmed"
	}
	res.Escalation = m.addEscalationLocked(contactID, domain.EscalationBooked, note, nil)
	res.Contact = *c
	return res, nil
}

func (m *memoryStore) OptOut(_ context.Context, contactID uuid.UUID, inbound *repository.NewMessage) (repository.OptOutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.contacts[contactID]
	res := repository.OptOutResult{AlreadyOptedOut: c.IsOptedOut}
	if inbound != nil {
		_, dup := m.findDeliveryLocked(contactID, inbound.DeliveryID)
		if inbound.DeliveryID == "" || !dup {
			msg := m.insertLocked(*inbound)
			res.Message = &msg
			c.MessageCount++
		}
	}
	res.Dismissed = m.setStatusLocked(contactID, func(repository.Escalation) bool { return true }, domain.EscalationDismissed)
	c.Stage = domain.StageOptedOut
	if !c.IsOptedOut {
		now := m.tick()
		c.IsOptedOut = true
		c.OptedOutAt = &now
	}
	res.Contact = *c
	return res, nil
}

func (m *memoryStore) ListPendingEscalations(_ context.Context, contactID uuid.UUID) ([]repository.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Escalation
	for _, e := range m.escalations {
		if e.ContactID == contactID && e.Status == domain.EscalationPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) FindReviewEscalation(_ context.Context, outboundID uuid.UUID) (repository.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.escalations {
		if e.Type == domain.EscalationNeedsReview && e.SourceMessageID != nil && *e.SourceMessageID == outboundID {
			return e, nil
		}
	}
	return repository.Escalation{}, repository.ErrNotFound
}

func (m *memoryStore) contact(externalID string) repository.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.contacts[m.byExternal[externalID]]
}

func (m *memoryStore) setContact(externalID string, mutate func(*repository.Contact)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mutate(m.contacts[m.byExternal[externalID]])
}

func (m *memoryStore) countMessages(direction domain.Direction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.Direction == direction {
			n++
		}
	}
	return n
}

func (m *memoryStore) escalationsByStatus(kind domain.EscalationType, status domain.EscalationStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.escalations {
		if e.Type == kind && e.Status == status {
			n++
		}
	}
	return n
}

type fakeClassifier struct {
	mu     sync.Mutex
	intent domain.Intent
	calls  int
	last   string
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, lastOutbound string) domain.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = lastOutbound
	if f.intent == "" {
		return domain.IntentAnswer
	}
	return f.intent
}

// fakeGenerator returns a canned reply. barrier, when set, holds every call
// until all expected calls have arrived; during runs mid-generation.
type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	pc      agent.PromptContext
	history []agent.Turn
	barrier *sync.WaitGroup
	during  func()
}

func (f *fakeGenerator) Generate(_ context.Context, pc agent.PromptContext, history []agent.Turn, _ string) (string, error) {
	if f.barrier != nil {
		f.barrier.Done()
		f.barrier.Wait()
	}
	if f.during != nil {
		f.during()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.pc = pc
	f.history = history
	if f.err != nil {
		return "", f.err
	}
	if f.reply == "" {
		return "Thanks! What kind of property is it?", nil
	}
	return f.reply, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticProfiles struct {
	profile settings.AgentProfile
}

func (s staticProfiles) Profile(context.Context, string) settings.AgentProfile { return s.profile }

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[metrics.Name]int64
	errors map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{counts: make(map[metrics.Name]int64), errors: make(map[string]int)}
}

func (f *fakeMetrics) Increment(_ context.Context, _ string, name metrics.Name, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name] += n
}

func (f *fakeMetrics) ObserveIntent(string)              {}
func (f *fakeMetrics) ObserveStep(string, time.Duration) {}
func (f *fakeMetrics) ExternalError(service string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[service]++
}

func (f *fakeMetrics) count(name metrics.Name) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

type fakeSyncer struct {
	mu      sync.Mutex
	replies []string
}

func (f *fakeSyncer) SyncReply(_ context.Context, _ string, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply)
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

type fakeGuard struct {
	err      error
	released int
}

func (f *fakeGuard) Claim(context.Context, string, string) (idempotency.Claim, error) {
	return idempotency.Claim{}, f.err
}

func (f *fakeGuard) Release(context.Context, idempotency.Claim) error {
	f.released++
	return nil
}

var errProviderDown = errors.New("provider down")
