package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/security"
)

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps the memory error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, memory.ErrValidation),
		errors.Is(err, security.ErrInvalidID),
		errors.Is(err, security.ErrInvalidJSON),
		errors.Is(err, security.ErrJSONTooDeep):
		return http.StatusBadRequest
	case errors.Is(err, security.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case memory.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads at most limit bytes of JSON into v, rejecting unknown
// fields and excessive nesting.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(limit)+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: max %d bytes", security.ErrBodyTooLarge, limit)
		}
		return fmt.Errorf("%w: reading body: %w", memory.ErrValidation, err)
	}
	if err := security.ValidateBody(data, limit); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", security.ErrInvalidJSON, err)
	}
	return nil
}
