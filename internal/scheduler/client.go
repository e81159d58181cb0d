package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"engagement_backend/platform/config"

	"github.com/hibiken/asynq"
)

const (
	crmSyncMaxRetry  = 5
	crmSyncFirstWait = 30 * time.Second
	crmSyncTimeout   = time.Minute
)

// Client enqueues CRM retries. A nil *Client drops everything.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt), queue: queueName(cfg)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueCRMSync schedules a retry of a failed CRM reply push.
func (c *Client) EnqueueCRMSync(ctx context.Context, externalID, reply string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewCRMSyncReplyTask(CRMSyncReplyPayload{ExternalID: externalID, Reply: reply})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(crmSyncMaxRetry),
		asynq.ProcessIn(crmSyncFirstWait),
		asynq.Timeout(crmSyncTimeout),
	)
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return "default"
}

// connOpt parses REDIS_URL with asynq's URI parser (rediss:// turns TLS on).
// REDIS_TLS_INSECURE skips certificate verification for managed Redis with
// self-signed certs.
func connOpt(cfg config.SchedulerConfig) (asynq.RedisConnOpt, error) {
	if cfg.GetRedisURL() == "" {
		return nil, errors.New("redis url not configured")
	}
	opt, err := asynq.ParseRedisURI(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client, ok := opt.(asynq.RedisClientOpt)
	if !ok || !cfg.GetRedisTLSInsecure() {
		return opt, nil
	}
	if client.TLSConfig == nil {
		client.TLSConfig = &tls.Config{}
	} else {
		client.TLSConfig = client.TLSConfig.Clone()
	}
	client.TLSConfig.InsecureSkipVerify = true
	return client, nil
}
