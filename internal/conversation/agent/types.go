// Package agent holds the completion-provider backed parts of the engine:
// the intent classifier and the reply generator.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"engagement_backend/internal/conversation/domain"
	"engagement_backend/internal/settings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("completion provider returned no text")

// Turn is one message of the conversation history, oldest first.
type Turn struct {
	Direction domain.Direction
	Content   string
}

// PromptContext carries everything the reply prompt is built from.
type PromptContext struct {
	Profile          settings.AgentProfile
	ContactFirstName string
	// FirstOutbound is the very first message ever sent to the contact. Empty on true first contact.
	FirstOutbound string
	// LastAIMessage is the most recent AI-authored outbound message.
	LastAIMessage string
	// LastMemory is the last bump or system note the CRM sent along with the webhook.
	LastMemory string
	Now        time.Time
}

// IsFirstContact reports whether nothing has ever been sent to the contact.
func (p PromptContext) IsFirstContact() bool {
	return strings.TrimSpace(p.FirstOutbound) == ""
}

func float32Ptr(v float32) *float32 {
	return &v
}

// complete runs a single non-streaming request and concatenates the text parts.
func complete(ctx context.Context, llm model.LLM, req *model.LLMRequest) (string, error) {
	var b strings.Builder
	for resp, err := range llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func userContent(text string) *genai.Content {
	return genai.NewContentFromText(text, genai.RoleUser)
}

func modelContent(text string) *genai.Content {
	return genai.NewContentFromText(text, genai.RoleModel)
}
