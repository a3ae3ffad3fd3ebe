package anthropic

import (
	"context"
	"fmt"
	"time"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
)

// healthTimeout bounds a probe independently of the completion timeout so
// the gateway's /health endpoint answers promptly.
const healthTimeout = 5 * time.Second

// HealthCheck asks the configured model for a single token. The Messages
// API has no status endpoint; this also verifies the key and model name.
func (a *Anthropic) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	_, err := a.client.Messages.New(ctx, sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(a.config.Model),
		MaxTokens: 1,
		Messages: []sdkanthropic.MessageParam{
			sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("probing %s: %w", a.config.Model, mapError(err))
	}
	return nil
}
