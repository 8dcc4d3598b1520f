package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Limits applied to tool arguments submitted over HTTP.
const (
	DefaultMaxPayloadSize = 4 << 20 // markdown bodies can be large
	DefaultMaxJSONDepth   = 32
)

// Validation errors.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// ValidatePayloadSize checks that data does not exceed limit bytes.
// If limit is <= 0, DefaultMaxPayloadSize is used.
func ValidatePayloadSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxPayloadSize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth checks that the JSON in data does not nest deeper
// than limit levels. If limit is <= 0, DefaultMaxJSONDepth is used.
// Empty input is accepted.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}

// ValidateArgs applies both the size and the depth check to raw tool arguments.
func ValidateArgs(data []byte, maxSize, maxDepth int) error {
	if err := ValidatePayloadSize(data, maxSize); err != nil {
		return err
	}
	return ValidateJSONDepth(data, maxDepth)
}
