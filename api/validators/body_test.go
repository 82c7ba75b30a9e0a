package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

type quantityBody struct {
	Quantity int    `json:"quantity" validate:"gte=0,lte=999"`
	Note     string `json:"note" validate:"required"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest quantityBody
	return DecodeJSONBody(req, &dest)
}

func TestDecodeJSONBodyValidatesTags(t *testing.T) {
	require.NoError(t, decode(t, `{"quantity": 3, "note": "gift"}`))

	err := decode(t, `{"quantity": 1000}`)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be at most 999", details["quantity"])
	assert.Equal(t, "is required", details["note"])
}

func TestDecodeJSONBodyHidesRawInput(t *testing.T) {
	err := decode(t, `{"quantity": "4111111111111111", "note": "x"}`)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, details["error"], "4111111111111111")
}

func TestDecodeJSONBodyRejectsTrailingAndOversized(t *testing.T) {
	assert.Error(t, decode(t, `{"quantity": 1, "note": "a"} {"quantity": 2}`))
	assert.Error(t, decode(t, `{"quantity": 1, "note": "a", "extra": true}`))
	assert.Error(t, decode(t, `{"quantity": 1, "note": "`+strings.Repeat("a", maxBodyBytes)+`"}`))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=7&bad=x", nil)
	got, err := ParseQueryInt(req, "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	got, err = ParseQueryInt(req, "missing", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	_, err = ParseQueryInt(req, "bad", 10, 1, 50)
	assert.Error(t, err)
	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=99", nil), "limit", 10, 1, 50)
	assert.Error(t, err)
}
