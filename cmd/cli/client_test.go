package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RefreshesExpiredSession(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/refresh":
			refreshes.Add(1)
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "refresh-1", body["refreshToken"])
			_ = json.NewEncoder(w).Encode(map[string]any{"session": map[string]string{
				"userId": "usr_1", "userType": "writer", "accessToken": "access-2", "refreshToken": "refresh-2",
			}})
		case "/bids/mine":
			if r.Header.Get("Authorization") != "Bearer access-2" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "session expired, please refresh", "code": "session_expired"})
				return
			}
			_ = json.NewEncoder(w).Encode([]map[string]string{{"bidId": "BID-1", "status": "pending"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, saveCredentials(path, &credentials{UserID: "usr_1", AccessToken: "access-1", RefreshToken: "refresh-1"}))

	c := newClient(srv.URL, path)
	var bids []bidRow
	require.NoError(t, c.do(context.Background(), http.MethodGet, "/bids/mine", nil, &bids))
	require.Len(t, bids, 1)
	assert.Equal(t, "BID-1", bids[0].BidID)
	assert.Equal(t, int32(1), refreshes.Load())

	saved, err := loadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "access-2", saved.AccessToken)
	assert.Equal(t, "refresh-2", saved.RefreshToken)
}

func TestClient_ReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "this bid has already been accepted", "code": "already_accepted"})
	}))
	defer srv.Close()

	c := newClient(srv.URL, filepath.Join(t.TempDir(), "session.json"))
	err := c.do(context.Background(), http.MethodPost, "/bids/BID-1/accept", nil, nil)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "already_accepted", apiErr.Code)
}

func TestClient_ForgetRemovesCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	require.NoError(t, saveCredentials(path, &credentials{AccessToken: "a"}))

	c := newClient("http://unused", path)
	require.NotNil(t, c.creds)
	require.NoError(t, c.forget())
	require.NoError(t, c.forget())

	_, err := loadCredentials(path)
	assert.Error(t, err)
}
