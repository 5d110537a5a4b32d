package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadhunter/pkg/auth"
	"leadhunter/pkg/config"
	lherrors "leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
)

func testConfig(loginURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Target.LoginURL = loginURL
	cfg.Session.MaxAuthFailures = 2
	return cfg
}

func TestGetLogsInOnce(t *testing.T) {
	var logins int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins++
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hunter@example.com", body["email"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "session-token",
			"expires_in": 3600,
		})
	}))
	defer server.Close()

	account := &auth.Account{Name: "primary", Email: "hunter@example.com", Password: "secret"}
	manager := NewManager(account, testConfig(server.URL), logger.NewNopLogger())

	session, err := manager.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-token", session.Token)
	assert.True(t, session.Valid())
	assert.Equal(t, Active, manager.State())

	// Second Get reuses the session without a second login
	again, err := manager.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, session, again)
	assert.Equal(t, 1, logins)
}

func TestGetAPIKeyOnlySkipsLogin(t *testing.T) {
	account := &auth.Account{Name: "primary", APIKey: "api-key"}
	manager := NewManager(account, config.DefaultConfig(), logger.NewNopLogger())

	session, err := manager.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "api-key", session.APIKey)
	assert.Empty(t, session.Token)
	assert.Equal(t, Active, manager.State())
}

func TestGetNoCredentials(t *testing.T) {
	manager := NewManager(&auth.Account{Name: "empty"}, config.DefaultConfig(), logger.NewNopLogger())

	_, err := manager.Get(context.Background())
	require.Error(t, err)

	var classified *lherrors.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, lherrors.ErrorTypeAuth, classified.Type)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var logins int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": "token"})
	}))
	defer server.Close()

	account := &auth.Account{Name: "primary", Email: "hunter@example.com", Password: "secret"}
	manager := NewManager(account, testConfig(server.URL), logger.NewNopLogger())

	_, err := manager.Get(context.Background())
	require.NoError(t, err)

	manager.Invalidate()
	assert.Equal(t, Expired, manager.State())

	_, err = manager.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, logins)
}

func TestLockedAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	account := &auth.Account{Name: "primary", Email: "hunter@example.com", Password: "wrong"}
	manager := NewManager(account, testConfig(server.URL), logger.NewNopLogger())

	_, err := manager.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, manager.State())

	_, err = manager.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, Locked, manager.State())

	// Locked is terminal: no further login attempts are made
	server.Close()
	_, err = manager.Get(context.Background())
	require.Error(t, err)

	var classified *lherrors.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, lherrors.ErrorTypeAuth, classified.Type)
}

func TestNetworkFailureDoesNotCountTowardLockout(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close() // connection refused

	account := &auth.Account{Name: "primary", Email: "hunter@example.com", Password: "secret"}
	manager := NewManager(account, testConfig(server.URL), logger.NewNopLogger())

	for i := 0; i < 5; i++ {
		_, err := manager.Get(context.Background())
		require.Error(t, err)
	}

	assert.Equal(t, Unauthenticated, manager.State())
}
