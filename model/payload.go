package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errPayloadTooDeep = errors.New("payload nesting too deep")

// ValidatePayload checks an opaque JSON column value against size and depth
// limits. Shape is deliberately not validated.
func ValidatePayload(raw []byte, maxBytes, maxDepth int) error {
	if len(raw) == 0 {
		return nil
	}
	if len(raw) > maxBytes {
		return fmt.Errorf("payload exceeds %d bytes", maxBytes)
	}
	if !json.Valid(raw) {
		return errors.New("payload is not valid JSON")
	}
	return checkDepth(raw, maxDepth)
}

func checkDepth(raw []byte, maxDepth int) error {
	depth := 0
	inString := false
	escaped := false
	for _, b := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > maxDepth {
				return errPayloadTooDeep
			}
		case '}', ']':
			depth--
		}
	}
	return nil
}
