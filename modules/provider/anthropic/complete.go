package anthropic

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/skillminer/memoryd/internal/provider"
)

var tracer = otel.Tracer("github.com/skillminer/memoryd/modules/provider/anthropic")

// Complete runs one Messages API call. Summaries and entity extraction are
// single-shot, so there is no streaming variant.
func (a *Anthropic) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	params := toParams(req, &a.config)

	ctx, span := tracer.Start(ctx, "anthropic.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", a.config.Model),
		attribute.Int64("llm.max_tokens", params.MaxTokens),
		attribute.Int("llm.messages", len(params.Messages)),
	)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		err = mapError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return provider.CompletionResponse{}, err
	}

	resp := fromMessage(msg)
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
		attribute.String("llm.finish_reason", string(resp.FinishReason)),
	)
	return resp, nil
}
