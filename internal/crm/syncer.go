package crm

import (
	"context"
	"sync"
	"time"

	"engagement_backend/platform/logger"
)

// ReplyPusher writes a reply to the CRM.
type ReplyPusher interface {
	PushReply(ctx context.Context, externalID, reply string) error
}

// RetryQueue schedules a failed push for a later attempt.
type RetryQueue interface {
	EnqueueCRMSync(ctx context.Context, externalID, reply string) error
}

// Syncer runs CRM pushes off the request path. A failed push is handed to
// the retry queue when one is configured, and logged otherwise.
type Syncer struct {
	pusher  ReplyPusher
	queue   RetryQueue
	timeout time.Duration
	log     *logger.Logger
	onError func(service string)
	wg      sync.WaitGroup
}

// NewSyncer creates a syncer. pusher and queue may be nil.
func NewSyncer(pusher ReplyPusher, queue RetryQueue, timeout time.Duration, log *logger.Logger) *Syncer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Syncer{pusher: pusher, queue: queue, timeout: timeout, log: log}
}

// OnError registers a callback invoked for every failed push attempt.
func (s *Syncer) OnError(fn func(service string)) {
	s.onError = fn
}

// SyncReply starts the push in the background and returns immediately.
func (s *Syncer) SyncReply(ctx context.Context, externalID, reply string) {
	if s == nil || s.pusher == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.push(detached, externalID, reply)
	}()
}

// Wait blocks until every push started by SyncReply has finished or been
// handed to the retry queue.
func (s *Syncer) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Push performs one synchronous attempt. It is used by the retry worker.
func (s *Syncer) Push(ctx context.Context, externalID, reply string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pusher.PushReply(ctx, externalID, reply)
}

func (s *Syncer) push(ctx context.Context, externalID, reply string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("crm: push panicked", "externalId", externalID, "panic", r)
		}
	}()

	err := s.Push(ctx, externalID, reply)
	if err == nil {
		return
	}

	s.log.WithContext(ctx).ExternalCallFailed("crm", "push_reply", err)
	if s.onError != nil {
		s.onError("crm")
	}
	if s.queue == nil {
		return
	}
	if qErr := s.queue.EnqueueCRMSync(ctx, externalID, reply); qErr != nil {
		s.log.WithContext(ctx).Error("crm: enqueue retry failed", "externalId", externalID, "error", qErr)
	}
}
