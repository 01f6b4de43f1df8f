package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientForServer(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return NewClient(u.Hostname(), uint16(port), token, 5*time.Second)
}

func TestClient_GetVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/version", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "1.8.4"})
	}))
	defer srv.Close()

	client := clientForServer(t, srv, "secret")

	version, err := client.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.8.4", version)
}

func TestClient_TransportFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := clientForServer(t, srv, "")
	srv.Close()

	_, err := client.GetVersion(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_AddUserConflictIsUserExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := clientForServer(t, srv, "")

	err := client.AddUser(context.Background(), "alice", nil)
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestClient_RemoveUnknownUserSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := clientForServer(t, srv, "")

	assert.NoError(t, client.RemoveUser(context.Background(), "ghost"))
}

func TestClient_GetUserStatsPassesReset(t *testing.T) {
	var gotReset string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stats/users", r.URL.Path)
		gotReset = r.URL.Query().Get("reset")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"stats": []UserStat{
				{Username: "alice", Uplink: 100, Downlink: 200},
			},
		})
	}))
	defer srv.Close()

	client := clientForServer(t, srv, "")

	stats, err := client.GetUserStats(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "true", gotReset)
	require.Len(t, stats, 1)
	assert.Equal(t, "alice", stats[0].Username)
	assert.Equal(t, uint64(100), stats[0].Uplink)
	assert.Equal(t, uint64(200), stats[0].Downlink)
}

func TestClient_GetOutboundStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stats/outbound", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("reset"))
		_ = json.NewEncoder(w).Encode(OutboundStat{Uplink: 42, Downlink: 7})
	}))
	defer srv.Close()

	client := clientForServer(t, srv, "")

	stats, err := client.GetOutboundStats(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), stats.Uplink)
	assert.Equal(t, uint64(7), stats.Downlink)
}

func TestClient_StartSendsOpaqueConfig(t *testing.T) {
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/start", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	client := clientForServer(t, srv, "")

	require.NoError(t, client.Start(context.Background(), Config(`{"inbounds":[]}`)))
	assert.JSONEq(t, `{"inbounds":[]}`, string(gotBody["config"]))
}

func TestClient_ServerErrorIsNotUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := clientForServer(t, srv, "")

	_, err := client.GetVersion(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnreachable)
	assert.Contains(t, err.Error(), "500")
}
