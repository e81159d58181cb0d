package scheduler

import (
	"context"
	"fmt"

	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// ReplyPusher performs one CRM push attempt.
type ReplyPusher interface {
	Push(ctx context.Context, externalID, reply string) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	crm    ReplyPusher
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, crm ReplyPusher, log *logger.Logger) (*Worker, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("scheduler: task failed", "type", task.Type(), "retry", retried, "maxRetry", maxRetry, "error", err)
		}),
	})

	w := &Worker{
		server: server,
		mux:    NewMux(crm, log),
		crm:    crm,
		log:    log,
	}
	return w, nil
}

// NewMux registers the task handlers.
func NewMux(crm ReplyPusher, log *logger.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskCRMSyncReply, handleCRMSyncReply(crm, log))
	return mux
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func handleCRMSyncReply(crm ReplyPusher, log *logger.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParseCRMSyncReplyPayload(task)
		if err != nil {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		if payload.ExternalID == "" {
			return fmt.Errorf("%w: missing external id", asynq.SkipRetry)
		}
		if crm == nil {
			return nil
		}

		if err := crm.Push(ctx, payload.ExternalID, payload.Reply); err != nil {
			return err
		}
		log.Info("scheduler: crm reply synced", "externalId", payload.ExternalID)
		return nil
	}
}
