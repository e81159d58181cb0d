package scheduler

import (
	"testing"

	"engagement_backend/platform/config"

	"github.com/hibiken/asynq"
)

func TestConnOpt(t *testing.T) {
	tests := []struct {
		name         string
		cfg          *config.Config
		wantErr      bool
		wantAddr     string
		wantTLS      bool
		wantInsecure bool
	}{
		{name: "missing url", cfg: &config.Config{}, wantErr: true},
		{name: "plain", cfg: &config.Config{RedisURL: "redis://:pw@cache:6379/2"}, wantAddr: "cache:6379"},
		{name: "tls", cfg: &config.Config{RedisURL: "rediss://cache:6380"}, wantAddr: "cache:6380", wantTLS: true},
		{
			name:         "tls insecure",
			cfg:          &config.Config{RedisURL: "rediss://cache:6380", RedisTLSInsecure: true},
			wantAddr:     "cache:6380",
			wantTLS:      true,
			wantInsecure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := connOpt(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			client, ok := opt.(asynq.RedisClientOpt)
			if !ok {
				t.Fatalf("expected RedisClientOpt, got %T", opt)
			}
			if client.Addr != tt.wantAddr {
				t.Fatalf("expected addr %s, got %s", tt.wantAddr, client.Addr)
			}
			if (client.TLSConfig != nil) != tt.wantTLS {
				t.Fatalf("expected tls=%v, got %+v", tt.wantTLS, client.TLSConfig)
			}
			if tt.wantInsecure && !client.TLSConfig.InsecureSkipVerify {
				t.Fatal("expected InsecureSkipVerify")
			}
		})
	}
}

func TestQueueNameDefaults(t *testing.T) {
	if got := queueName(&config.Config{}); got != "default" {
		t.Fatalf("expected default queue, got %q", got)
	}
	if got := queueName(&config.Config{AsynqQueueName: "crm"}); got != "crm" {
		t.Fatalf("expected crm queue, got %q", got)
	}
}
