package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"engagement_backend/internal/conversation/domain"
	"engagement_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	defaultReplyTimeout = 30 * time.Second
	replyTemperature    = 0.4
)

// ReplyGenerator produces the agent's next conversational message.
type ReplyGenerator struct {
	llm     model.LLM
	timeout time.Duration
	log     *logger.Logger
}

// NewReplyGenerator creates a reply generator bound to a completion provider.
func NewReplyGenerator(llm model.LLM, timeout time.Duration, log *logger.Logger) *ReplyGenerator {
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	return &ReplyGenerator{llm: llm, timeout: timeout, log: log}
}

// Generate builds the system prompt from pc and asks the provider for a reply
// to inbound given the history. Provider failures are returned to the caller;
// there is no safe default reply.
func (g *ReplyGenerator) Generate(ctx context.Context, pc PromptContext, history []Turn, inbound string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &model.LLMRequest{
		Config: &genai.GenerateContentConfig{
			SystemInstruction: userContent(BuildSystemPrompt(pc)),
			Temperature:       float32Ptr(replyTemperature),
		},
		Contents: buildConversation(history, inbound),
	}

	start := time.Now()
	text, err := complete(callCtx, g.llm, req)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	reply := cleanReply(text)
	if reply == "" {
		return "", fmt.Errorf("generate reply: %w", ErrEmptyCompletion)
	}
	g.log.WithContext(ctx).Debug("responder: reply generated",
		"latency_ms", time.Since(start).Milliseconds(),
		"length", len(reply),
	)
	return reply, nil
}

func buildConversation(history []Turn, inbound string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		text := sanitizeUserInput(turn.Content, maxHistoryMessageLength)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if turn.Direction == domain.DirectionOutbound {
			contents = append(contents, modelContent(text))
			continue
		}
		contents = append(contents, userContent(text))
	}
	return append(contents, userContent(sanitizeUserInput(inbound, maxInboundLength)))
}

// cleanReply strips wrapping quotes and speaker labels some models add.
func cleanReply(text string) string {
	reply := strings.TrimSpace(text)
	for _, label := range []string{"Reply:", "Agent:", "Assistant:"} {
		if strings.HasPrefix(reply, label) {
			reply = strings.TrimSpace(strings.TrimPrefix(reply, label))
		}
	}
	if len(reply) >= 2 && strings.HasPrefix(reply, `"`) && strings.HasSuffix(reply, `"`) {
		reply = strings.TrimSpace(reply[1 : len(reply)-1])
	}
	return reply
}
