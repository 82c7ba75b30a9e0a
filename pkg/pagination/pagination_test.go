package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+10))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseCursor("not base64!")
	assert.ErrorIs(t, err, errMalformedCursor)

	_, err = ParseCursor(base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-03-01T12:00:00Z"}`)))
	assert.ErrorIs(t, err, errMalformedCursor)
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	key := func(id uuid.UUID) Cursor { return Cursor{CreatedAt: base, ID: id} }

	page, next := Trim(ids, 2, key)
	require.Len(t, page, 2)
	cursor, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, ids[1], cursor.ID)

	page, next = Trim(ids[:2], 2, key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
