package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/openai/openai-go"

	"github.com/skillminer/memoryd/internal/provider"
)

// errAuth is a non-retryable authentication error.
var errAuth = errors.New("openai: authentication failed")

// mapError maps SDK and network errors to provider sentinel errors.
// Context errors pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		switch {
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("%w: %s", errAuth, msg)
		case apiErr.StatusCode == 400 && strings.Contains(strings.ToLower(apiErr.Code+msg), "context_length"):
			return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %s", provider.ErrProviderDown, msg)
		default:
			return fmt.Errorf("openai: HTTP %d: %s", apiErr.StatusCode, msg)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}
