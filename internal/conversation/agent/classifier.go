package agent

import (
	"context"
	"fmt"
	"time"

	"engagement_backend/internal/conversation/domain"
	"engagement_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	defaultClassifyTimeout = 5 * time.Second
	maxClassifyInputLength = 1000
)

// IntentClassifier labels inbound messages with one intent from the closed taxonomy.
type IntentClassifier struct {
	llm     model.LLM
	timeout time.Duration
	log     *logger.Logger
}

// NewIntentClassifier creates a classifier bound to a completion provider.
func NewIntentClassifier(llm model.LLM, timeout time.Duration, log *logger.Logger) *IntentClassifier {
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}
	return &IntentClassifier{llm: llm, timeout: timeout, log: log}
}

// Classify never fails: provider errors, timeouts, panics and unrecognised
// labels all degrade to domain.IntentUnclear.
func (c *IntentClassifier) Classify(ctx context.Context, inbound, lastOutbound string) (intent domain.Intent) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithContext(ctx).Error("classifier: provider panicked", "panic", fmt.Sprint(r))
			intent = domain.IntentUnclear
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &model.LLMRequest{
		Config: &genai.GenerateContentConfig{
			SystemInstruction: userContent(classifierSystemPrompt()),
			Temperature:       float32Ptr(0),
		},
		Contents: []*genai.Content{userContent(buildClassifierPrompt(inbound, lastOutbound))},
	}

	raw, err := complete(callCtx, c.llm, req)
	if err != nil {
		c.log.WithContext(ctx).ExternalCallFailed("completion", "classify_intent", err)
		return domain.IntentUnclear
	}

	parsed, ok := domain.ParseIntent(raw)
	if !ok {
		c.log.WithContext(ctx).Warn("classifier: unrecognised label", "label", truncate(raw, 64))
	}
	return parsed
}
