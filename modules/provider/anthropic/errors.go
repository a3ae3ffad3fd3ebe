package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/provider"
)

// statusOverloaded is Anthropic's non-standard "overloaded" status.
const statusOverloaded = 529

// retryableStatus maps statuses after which a later summary or extraction
// attempt may succeed.
var retryableStatus = map[int]error{
	http.StatusTooManyRequests:     provider.ErrRateLimit,
	statusOverloaded:               provider.ErrProviderDown,
	http.StatusInternalServerError: provider.ErrProviderDown,
	http.StatusBadGateway:          provider.ErrProviderDown,
	http.StatusServiceUnavailable:  provider.ErrProviderDown,
	http.StatusGatewayTimeout:      provider.ErrProviderDown,
}

// contextLengthMarkers appear in invalid_request_error messages when the
// transcript handed to the summarizer is too large.
var contextLengthMarkers = []string{"context length", "too many tokens", "token limit", "prompt is too long"}

// mapError classifies an SDK failure. Retryable failures carry both a
// provider sentinel and memory.ErrTransientDependency so the summarizer and
// extractor fall back instead of failing the turn. Rejected credentials are
// reported as a configuration error.
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return memory.Transient("anthropic", fmt.Errorf("%w: %w", provider.ErrProviderDown, err))
		}
		return fmt.Errorf("anthropic: %w", err)
	}

	body := decodeErrorBody(apiErr)
	if sentinel, ok := retryableStatus[apiErr.StatusCode]; ok {
		return memory.Transient("anthropic", fmt.Errorf("%w: %s", sentinel, body.describe(apiErr)))
	}

	switch apiErr.StatusCode {
	case http.StatusBadRequest:
		if body.contextLength() {
			return fmt.Errorf("anthropic: %w: %s", provider.ErrContextLength, body.Error.Message)
		}
		return fmt.Errorf("anthropic: bad request: %s", body.describe(apiErr))
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: anthropic rejected the api key (HTTP %d)", memory.ErrConfiguration, apiErr.StatusCode)
	default:
		return fmt.Errorf("anthropic: HTTP %d: %s", apiErr.StatusCode, body.describe(apiErr))
	}
}

// errorBody is the JSON envelope of an Anthropic API error.
type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeErrorBody(apiErr *sdkanthropic.Error) errorBody {
	var body errorBody
	if err := json.Unmarshal([]byte(apiErr.RawJSON()), &body); err != nil {
		body.Error.Message = apiErr.RawJSON()
	}
	return body
}

func (b errorBody) describe(apiErr *sdkanthropic.Error) string {
	switch {
	case b.Error.Type != "" && b.Error.Message != "":
		return b.Error.Type + ": " + b.Error.Message
	case b.Error.Message != "":
		return b.Error.Message
	default:
		return http.StatusText(apiErr.StatusCode)
	}
}

// contextLength reports whether a 400 body describes an oversized prompt.
// An unparseable body is matched on its raw text.
func (b errorBody) contextLength() bool {
	if b.Error.Type != "" && b.Error.Type != "invalid_request_error" {
		return false
	}
	msg := strings.ToLower(b.Error.Message)
	for _, marker := range contextLengthMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
