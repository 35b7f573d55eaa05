package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenLiquidity/internal/model"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/thing", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"name":"pool"}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	client := NewClient(srv.URL+"/v1/", nil, 0).WithAPIKey("k")
	require.NoError(t, client.GetJSON(context.Background(), "/thing", &out))
	assert.Equal(t, "pool", out.Name)
}

func TestPostJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		http.Error(w, "insufficient funds", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, nil, 0).PostJSON(context.Background(), "/send", map[string]string{"a": "b"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCollaborator)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := NewClient(srv.URL, nil, 0).GetJSON(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, model.ErrCollaborator)
}
