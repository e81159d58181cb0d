package agent

import (
	"context"
	"iter"
	"sync"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	panicMsg string
	block    bool
	requests []*model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		f.mu.Lock()
		f.requests = append(f.requests, req)
		reply, err, panicMsg, block := f.reply, f.err, f.panicMsg, f.block
		f.mu.Unlock()

		if panicMsg != "" {
			panic(panicMsg)
		}
		if block {
			<-ctx.Done()
			yield(nil, ctx.Err())
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(reply, genai.RoleModel)}, nil)
	}
}

func (f *fakeLLM) lastRequest() *model.LLMRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}
