package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &domain.Cursor{
		CreatedAt: time.Date(2025, time.March, 10, 5, 0, 0, 123456000, time.UTC),
		ID:        "5f1c2e9a-0d4b-4c8e-9a77-1e2f3a4b5c6d",
	}
	token := EncodeCursor(cursor)
	require.NotContains(t, token, "=")

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, decoded.CreatedAt.Equal(cursor.CreatedAt))
	require.Equal(t, cursor.ID, decoded.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	for _, token := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("zz!.5f1c2e9a-0d4b-4c8e-9a77-1e2f3a4b5c6d")),
		base64.RawURLEncoding.EncodeToString([]byte("1a2b.not-a-uuid")),
	} {
		_, err := DecodeCursor(token)
		require.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}
