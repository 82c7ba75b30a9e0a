package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDKeepsWellFormedHeader(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-123")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, "req-123", resp.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad\nid")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.NotEqual(t, "bad\nid", resp.Header().Get(requestIDHeader))
	assert.Len(t, resp.Header().Get(requestIDHeader), 36)
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	resp := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "boom")
}

func TestValidRequestID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{id: "", want: false},
		{id: "req-123", want: true},
		{id: "trace.abc_DEF-9", want: true},
		{id: "bad id", want: false},
		{id: "ação", want: false},
		{id: strings.Repeat("a", maxRequestIDLength), want: true},
		{id: strings.Repeat("a", maxRequestIDLength+1), want: false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, validRequestID(tc.id), tc.id)
	}
}
