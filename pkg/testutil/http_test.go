package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONRequest(t *testing.T) {
	req := NewJSONRequest(t, http.MethodPost, "/x", map[string]string{"a": "b"}, map[string]string{"X-Test": "1"})
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, string(body))
	assert.Equal(t, "1", req.Header.Get("X-Test"))

	req = NewJSONRequest(t, http.MethodPost, "/x", "not json", nil)
	body, err = io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "not json", string(body))
}

func TestAssertWireError(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":159,"error":"Duplicate request"}`))
	})
	rr := DoRequest(h, NewJSONRequest(t, http.MethodGet, "/", nil, nil))
	body := AssertWireError(t, rr, http.StatusBadRequest, 159)
	assert.Equal(t, "Duplicate request", body.Error)
}
