package provider

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// FinishReason says why the model stopped. Summaries cut at FinishReasonLength
// are still used; the summarizer prompt asks for fewer tokens than it allows.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
)

// LLMMessage is one message of a completion request.
type LLMMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// CompletionRequest is the input to Provider.Complete. memoryd only sends
// single-shot prompts: a transcript to summarize or a turn to mine for
// entities.
type CompletionRequest struct {
	System      string       `json:"system,omitempty"`
	Messages    []LLMMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

// Prompt builds a request holding a single user message.
func Prompt(content string, maxTokens int) CompletionRequest {
	return CompletionRequest{
		Messages:  []LLMMessage{{Role: MessageRoleUser, Content: content}},
		MaxTokens: maxTokens,
	}
}

// Deterministic returns a copy of req sampled at temperature 0, used where
// the reply is parsed rather than read.
func (req CompletionRequest) Deterministic() CompletionRequest {
	zero := 0.0
	req.Temperature = &zero
	return req
}

// CompletionResponse is the output of Provider.Complete.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// TokenUsage is the provider-reported token count of one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
