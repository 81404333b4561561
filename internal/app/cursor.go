package app

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// EncodeCursor renders a keyset position as an opaque page token.
func EncodeCursor(key CaseKey) string {
	raw := strconv.Itoa(key.Position) + ":" + key.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token means
// the first page and yields nil.
func DecodeCursor(token string) (*CaseKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	posRaw, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	pos, err := strconv.Atoi(posRaw)
	if err != nil || pos < 0 {
		return nil, ErrInvalidCursor
	}
	return &CaseKey{Position: pos, ID: id}, nil
}
