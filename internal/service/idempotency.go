package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DefaultDedupWindow is the trailing span during which an identical
// mutation request is treated as a duplicate rather than re-executed. Short
// enough not to block legitimate repeats (liking the same tweet a day
// apart), long enough to absorb retry storms.
const DefaultDedupWindow = 300 // seconds

// ComputeParamsHash returns the stable hex hash of (tool name, params).
// Params are canonicalized per RFC 8785 (JCS) first, so logically identical
// payloads hash identically regardless of key order or whitespace. Empty
// params hash as the empty JSON object.
func ComputeParamsHash(toolName string, params json.RawMessage) (string, error) {
	canonical := []byte("{}")
	if len(params) > 0 {
		c, err := jcs.Transform(params)
		if err != nil {
			return "", fmt.Errorf("canonicalize params: %w", err)
		}
		canonical = c
	}

	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
