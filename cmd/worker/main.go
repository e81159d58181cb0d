package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"engagement_backend/internal/crm"
	"engagement_backend/internal/scheduler"
	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pusher scheduler.ReplyPusher
	if client := crm.NewClient(cfg, log); client != nil {
		pusher = crm.NewSyncer(client, nil, cfg.GetCRMTimeout(), log)
	} else {
		log.Warn("CRM_BASE_URL not configured; queued CRM syncs will be dropped")
	}

	worker, err := scheduler.NewWorker(cfg, pusher, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("worker stopped")
}
