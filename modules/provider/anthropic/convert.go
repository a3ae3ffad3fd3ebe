package anthropic

import (
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/skillminer/memoryd/internal/provider"
)

// toParams maps a completion request onto the Messages API. System text,
// wherever it appears, goes to the System blocks. Consecutive messages of
// one role are merged since the API expects user and assistant turns to
// alternate; empty messages are skipped.
func toParams(req provider.CompletionRequest, cfg *Config) sdkanthropic.MessageNewParams {
	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(cfg.Model),
		MaxTokens: int64(cfg.MaxTokens),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}
	if req.System != "" {
		params.System = append(params.System, sdkanthropic.TextBlockParam{Text: req.System})
	}

	var (
		role  provider.MessageRole
		texts []string
	)
	flush := func() {
		if len(texts) == 0 {
			return
		}
		block := sdkanthropic.NewTextBlock(strings.Join(texts, "\n\n"))
		if role == provider.MessageRoleAssistant {
			params.Messages = append(params.Messages, sdkanthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, sdkanthropic.NewUserMessage(block))
		}
		texts = nil
	}
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == provider.MessageRoleSystem {
			params.System = append(params.System, sdkanthropic.TextBlockParam{Text: m.Content})
			continue
		}
		if m.Role != role {
			flush()
			role = m.Role
		}
		texts = append(texts, m.Content)
	}
	flush()
	return params
}

// fromMessage joins the text blocks of a reply.
func fromMessage(msg *sdkanthropic.Message) provider.CompletionResponse {
	var b strings.Builder
	for _, block := range msg.Content {
		text, ok := block.AsAny().(sdkanthropic.TextBlock)
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text.Text)
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return provider.CompletionResponse{
		Content:      b.String(),
		FinishReason: finishReason(msg.StopReason),
		Usage:        provider.TokenUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}
}

func finishReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	}
	return provider.FinishReasonStop
}
