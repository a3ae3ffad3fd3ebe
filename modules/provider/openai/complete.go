package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/skillminer/memoryd/internal/provider"
)

// Complete sends a chat completion request and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.config.Model),
		Messages: toMessages(req),
	}

	// Request-level overrides take precedence over config defaults.
	switch {
	case req.MaxTokens > 0:
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	case p.config.MaxTokens > 0:
		params.MaxTokens = openai.Int(int64(p.config.MaxTokens))
	}
	switch {
	case req.Temperature != nil:
		params.Temperature = openai.Float(*req.Temperature)
	case p.config.Temperature != nil:
		params.Temperature = openai.Float(*p.config.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return provider.CompletionResponse{}, fmt.Errorf("%w: empty choices", provider.ErrProviderDown)
	}

	choice := resp.Choices[0]
	return provider.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: toFinishReason(choice.FinishReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// HealthCheck sends a minimal 1-token completion. This tests the full path:
// authentication, model access, and quota.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.config.Model == "" {
		_, err := p.embedder.Embed(ctx, "hi")
		return err
	}
	_, err := p.Complete(ctx, provider.Prompt("hi", 1))
	return err
}

// ModelName returns the configured chat model identifier.
func (p *Provider) ModelName() string {
	return p.config.Model
}

func toMessages(req provider.CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case provider.MessageRoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
