// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
)

// ErrInvalidCursor is returned for tokens not produced by EncodeCursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor renders the keyset position (created_at, id) of the last returned row as
// an opaque URL-safe token. A nil cursor encodes to the empty string.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 36) + "." + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor reverses EncodeCursor. The empty token means "first page".
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	micros, err := strconv.ParseInt(ts, 36, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidCursor
	}
	return &domain.Cursor{CreatedAt: time.UnixMicro(micros).UTC(), ID: id}, nil
}
