// Package crm pushes the latest AI reply back into the external CRM record.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("engagement.internal.crm")

// ErrCircuitOpen is returned while the CRM breaker is open.
var ErrCircuitOpen = errors.New("crm circuit open")

type Client struct {
	baseURL  string
	apiKey   string
	fieldKey string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	log      *logger.Logger
}

type customField struct {
	Key        string `json:"key"`
	FieldValue string `json:"field_value"`
}

type updateContactRequest struct {
	CustomFields []customField `json:"customFields"`
}

// NewClient returns nil when the CRM is not configured. A nil client is a
// valid no-op.
func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	if !cfg.IsCRMEnabled() {
		return nil
	}

	timeout := cfg.GetCRMTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		apiKey:   cfg.GetCRMAPIKey(),
		fieldKey: cfg.GetCRMReplyFieldKey(),
		http:     &http.Client{Timeout: timeout},
		breaker:  newBreaker("crm"),
		log:      log,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}

// PushReply writes reply into the configured custom field of the contact
// identified by externalID.
func (c *Client) PushReply(ctx context.Context, externalID, reply string) error {
	if c == nil {
		return nil
	}
	if strings.TrimSpace(externalID) == "" {
		return errors.New("crm: external id is required")
	}

	ctx, span := tracer.Start(ctx, "crm.PushReply")
	defer span.End()
	span.SetAttributes(attribute.String("crm.external_id", externalID))

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.updateContact(ctx, externalID, reply)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrCircuitOpen
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Client) updateContact(ctx context.Context, externalID, reply string) error {
	body, err := json.Marshal(updateContactRequest{
		CustomFields: []customField{{Key: c.fieldKey, FieldValue: reply}},
	})
	if err != nil {
		return fmt.Errorf("marshal crm payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/contacts/%s", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("crm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Debug("crm: reply field updated", "externalId", externalID)
	return nil
}
