package anthropic

import (
	"encoding/json"
	"testing"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/skillminer/memoryd/internal/provider"
)

func TestToParams_SystemText(t *testing.T) {
	cfg := &Config{Model: "claude-3-5-haiku-latest", MaxTokens: 512}
	params := toParams(provider.CompletionRequest{
		System: "Summarize the conversation.",
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: "Keep facts."},
			{Role: provider.MessageRoleUser, Content: "User: I write Go."},
			{Role: provider.MessageRoleSystem, Content: "Answer in one paragraph."},
		},
	}, cfg)

	var system []string
	for _, b := range params.System {
		system = append(system, b.Text)
	}
	want := []string{"Summarize the conversation.", "Keep facts.", "Answer in one paragraph."}
	if len(system) != len(want) {
		t.Fatalf("system = %q, want %q", system, want)
	}
	for i := range want {
		if system[i] != want[i] {
			t.Errorf("system[%d] = %q, want %q", i, system[i], want[i])
		}
	}
	if len(params.Messages) != 1 || params.Messages[0].Role != sdkanthropic.MessageParamRoleUser {
		t.Errorf("messages = %+v", params.Messages)
	}
}

func TestToParams_MergesRuns(t *testing.T) {
	params := toParams(provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleUser, Content: "first"},
			{Role: provider.MessageRoleUser, Content: "second"},
			{Role: provider.MessageRoleAssistant, Content: "  "},
			{Role: provider.MessageRoleAssistant, Content: "reply"},
			{Role: provider.MessageRoleUser, Content: "third"},
		},
	}, &Config{Model: "m", MaxTokens: 1})

	roles := []sdkanthropic.MessageParamRole{
		sdkanthropic.MessageParamRoleUser,
		sdkanthropic.MessageParamRoleAssistant,
		sdkanthropic.MessageParamRoleUser,
	}
	if len(params.Messages) != len(roles) {
		t.Fatalf("messages = %d, want %d", len(params.Messages), len(roles))
	}
	for i, r := range roles {
		if params.Messages[i].Role != r {
			t.Errorf("messages[%d].Role = %q, want %q", i, params.Messages[i].Role, r)
		}
	}
	if got := params.Messages[0].Content[0].OfText.Text; got != "first\n\nsecond" {
		t.Errorf("merged text = %q", got)
	}
}

func TestToParams_Limits(t *testing.T) {
	cfg := &Config{Model: "claude-3-5-haiku-latest", MaxTokens: 512}
	if p := toParams(provider.Prompt("x", 0), cfg); p.MaxTokens != 512 || p.Temperature.Valid() {
		t.Errorf("defaults: max_tokens = %d, temperature set = %v", p.MaxTokens, p.Temperature.Valid())
	}
	p := toParams(provider.Prompt("x", 64).Deterministic(), cfg)
	if p.MaxTokens != 64 {
		t.Errorf("max_tokens = %d, want 64", p.MaxTokens)
	}
	if !p.Temperature.Valid() || p.Temperature.Value != 0 {
		t.Errorf("temperature = %+v, want 0", p.Temperature)
	}
}

func TestFromMessage(t *testing.T) {
	msg := &sdkanthropic.Message{
		Content:    []sdkanthropic.ContentBlockUnion{textBlock("Alice writes Go."), textBlock("She lives in Lyon.")},
		StopReason: sdkanthropic.StopReasonMaxTokens,
		Usage:      sdkanthropic.Usage{InputTokens: 120, OutputTokens: 30},
	}

	resp := fromMessage(msg)
	if resp.Content != "Alice writes Go.\nShe lives in Lyon." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.FinishReason != provider.FinishReasonLength {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 150 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestFinishReason(t *testing.T) {
	for in, want := range map[sdkanthropic.StopReason]provider.FinishReason{
		sdkanthropic.StopReasonEndTurn:      provider.FinishReasonStop,
		sdkanthropic.StopReasonStopSequence: provider.FinishReasonStop,
		sdkanthropic.StopReasonMaxTokens:    provider.FinishReasonLength,
		sdkanthropic.StopReasonRefusal:      provider.FinishReasonFiltering,
		"unknown":                           provider.FinishReasonStop,
	} {
		if got := finishReason(in); got != want {
			t.Errorf("finishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func textBlock(text string) sdkanthropic.ContentBlockUnion {
	raw, _ := json.Marshal(map[string]string{"type": "text", "text": text})
	var block sdkanthropic.ContentBlockUnion
	_ = json.Unmarshal(raw, &block)
	return block
}
