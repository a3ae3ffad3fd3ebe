package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxBodySize  = 1 << 20
	DefaultMaxJSONDepth = 32

	// MaxIDLength bounds owner, session and turn identifiers. They end up
	// as sqlite/postgres keys and chromem collection names.
	MaxIDLength = 256
)

var (
	ErrBodyTooLarge = errors.New("request body too large")
	ErrJSONTooDeep  = errors.New("json nested too deeply")
	ErrInvalidJSON  = errors.New("invalid json")
	ErrInvalidID    = errors.New("invalid identifier")
)

// ValidateBody checks an API request body before it is decoded: at most
// maxSize bytes (DefaultMaxBodySize when <= 0) and at most
// DefaultMaxJSONDepth levels of nesting.
func ValidateBody(data []byte, maxSize int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrBodyTooLarge, len(data), maxSize)
	}
	return checkDepth(data, DefaultMaxJSONDepth)
}

// checkDepth walks the token stream without building values, so a deeply
// nested body is rejected before encoding/json recurses into it.
func checkDepth(data []byte, limit int) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		d, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		if d == '{' || d == '[' {
			if depth++; depth > limit {
				return fmt.Errorf("%w: limit %d", ErrJSONTooDeep, limit)
			}
		} else {
			depth--
		}
	}
}

// ValidateID accepts identifiers that are valid UTF-8, not blank, no longer
// than MaxIDLength and free of control characters and slashes (they appear
// in URL paths).
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: blank", ErrInvalidID)
	case len(id) > MaxIDLength:
		return fmt.Errorf("%w: %d bytes, limit %d", ErrInvalidID, len(id), MaxIDLength)
	case !utf8.ValidString(id):
		return fmt.Errorf("%w: not utf-8", ErrInvalidID)
	}
	if i := strings.IndexFunc(id, func(r rune) bool { return r == '/' || unicode.IsControl(r) }); i >= 0 {
		return fmt.Errorf("%w: %q at byte %d", ErrInvalidID, id[i:i+1], i)
	}
	return nil
}
