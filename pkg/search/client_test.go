package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadhunter/pkg/config"
	lherrors "leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
	"leadhunter/pkg/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig()
	cfg.Target.SearchURL = server.URL
	return NewClient(cfg, logger.NewNopLogger()), server
}

func TestSearchSendsQueryAndHeaders(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `site:linkedin.com/in ("Editor") "Acme"`, body["q"])
		assert.Equal(t, float64(2), body["page"])

		json.NewEncoder(w).Encode(map[string]interface{}{"organic": []string{}})
	})

	query := models.Query{Keywords: []string{"Editor"}, Site: "linkedin.com/in", Company: "Acme", Page: 2, PageSize: 10}
	sess := &session.Session{APIKey: "secret-key", Token: "tok"}

	raw, err := client.Search(context.Background(), query, sess)
	require.NoError(t, err)
	assert.Equal(t, 200, raw.StatusCode)
	assert.Equal(t, query, raw.Query)
	assert.NotEmpty(t, raw.Body)
	assert.False(t, raw.FetchedAt.IsZero())
}

func TestSearchClassifiesStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		header   http.Header
		body     string
		wantType lherrors.ErrorType
	}{
		{"rate limited", 429, nil, "", lherrors.ErrorTypeRateLimit},
		{"auth required", 401, nil, "", lherrors.ErrorTypeAuth},
		{"forbidden", 403, nil, "", lherrors.ErrorTypeAuth},
		{"blocked header", 403, http.Header{"X-Blocked": []string{"1"}}, "", lherrors.ErrorTypeBlocked},
		{"blocked body", 403, nil, "please solve this CAPTCHA to continue", lherrors.ErrorTypeBlocked},
		{"challenge on 200", 200, nil, "<html>detected unusual traffic</html>", lherrors.ErrorTypeBlocked},
		{"not found", 404, nil, "", lherrors.ErrorTypeNotFound},
		{"server error", 503, nil, "", lherrors.ErrorTypeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, vs := range tt.header {
					for _, v := range vs {
						w.Header().Set(k, v)
					}
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Search(context.Background(), models.Query{}, &session.Session{APIKey: "k"})
			require.Error(t, err)

			var classified *lherrors.Error
			require.ErrorAs(t, err, &classified)
			assert.Equal(t, tt.wantType, classified.Type)
		})
	}
}

func TestSearchNetworkError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Target.SearchURL = "http://127.0.0.1:1/search"
	client := NewClient(cfg, logger.NewNopLogger())

	_, err := client.Search(context.Background(), models.Query{}, nil)
	require.Error(t, err)

	var classified *lherrors.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, lherrors.ErrorTypeNetwork, classified.Type)
}
