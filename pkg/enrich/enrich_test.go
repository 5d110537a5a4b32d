package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadhunter/pkg/config"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

func TestSplitName(t *testing.T) {
	tests := []struct {
		name  string
		first string
		last  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane", "Jane", ""},
		{"Jane Q. Doe", "Jane", "Doe"},
		{"Jane D", "Jane", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		first, last := SplitName(tt.name)
		assert.Equal(t, tt.first, first, tt.name)
		assert.Equal(t, tt.last, last, tt.name)
	}
}

func newTestFinder(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&config.EnrichConfig{
		APIKey:  "enrich-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, logger.NewNopLogger())
}

func TestFindEmail(t *testing.T) {
	client := newTestFinder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email-finder", r.URL.Path)
		assert.Equal(t, "acme.com", r.URL.Query().Get("domain"))
		assert.Equal(t, "Jane", r.URL.Query().Get("first_name"))
		assert.Equal(t, "Doe", r.URL.Query().Get("last_name"))
		assert.Equal(t, "enrich-key", r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"email": "jane.doe@acme.com"},
		})
	})

	email, err := client.FindEmail(context.Background(), "Jane Doe", "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@acme.com", email)
}

func TestFindEmailNotFoundIsNotAnError(t *testing.T) {
	client := newTestFinder(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{}})
	})

	email, err := client.FindEmail(context.Background(), "Jane Doe", "acme.com")
	require.NoError(t, err)
	assert.Empty(t, email)
}

func TestFindEmailAPIFailure(t *testing.T) {
	client := newTestFinder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	})

	_, err := client.FindEmail(context.Background(), "Jane Doe", "acme.com")
	assert.Error(t, err)
}

func TestDomainSearch(t *testing.T) {
	client := newTestFinder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/domain-search", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"domain": "acme.com",
				"emails": []map[string]string{
					{
						"value":      "jane.doe@acme.com",
						"first_name": "Jane",
						"last_name":  "Doe",
						"position":   "Editor in Chief",
						"linkedin":   "https://www.linkedin.com/in/jane-doe",
					},
					{"first_name": "Ghost", "last_name": "Entry"},
				},
			},
		})
	})

	records, err := client.DomainSearch(context.Background(), "acme.com", 3)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Jane Doe", records[0].Name)
	assert.Equal(t, "jane.doe@acme.com", records[0].Email)
	assert.Equal(t, "www.linkedin.com/in/jane-doe", records[0].IdentityKey)
	assert.Equal(t, "domain_search", records[0].Source)
	assert.NotEmpty(t, records[0].EmailAddedAt)
}

// stubFinder resolves emails from a fixed map
type stubFinder struct {
	mu     sync.Mutex
	emails map[string]string
	errs   map[string]error
	calls  int
}

func (s *stubFinder) FindEmail(ctx context.Context, name, domain string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[name]; err != nil {
		return "", err
	}
	return s.emails[name], nil
}

func enrichConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Enrich.APIKey = "key"
	cfg.Enrich.Workers = 2
	cfg.Enrich.RequestsPerWindow = 1000
	cfg.Search.CompanyURL = "acme.com"
	return cfg
}

func TestEnrichFillsEmails(t *testing.T) {
	finder := &stubFinder{emails: map[string]string{"Jane Doe": "jane@acme.com"}}
	enricher := New(finder, enrichConfig(), logger.NewNopLogger())

	records := []models.CandidateRecord{
		{IdentityKey: "a", Name: "Jane Doe"},
		{IdentityKey: "b", Name: "John Roe"},
	}

	out, enriched := enricher.Enrich(context.Background(), records)
	require.Len(t, out, 2)
	assert.Equal(t, 1, enriched)
	assert.Equal(t, "jane@acme.com", out[0].Email)
	assert.NotEmpty(t, out[0].EmailAddedAt)
	assert.Empty(t, out[1].Email)

	// Input slice is untouched
	assert.Empty(t, records[0].Email)
}

func TestEnrichLookupFailureIsNonFatal(t *testing.T) {
	finder := &stubFinder{
		emails: map[string]string{"John Roe": "john@acme.com"},
		errs:   map[string]error{"Jane Doe": context.DeadlineExceeded},
	}
	enricher := New(finder, enrichConfig(), logger.NewNopLogger())

	out, enriched := enricher.Enrich(context.Background(), []models.CandidateRecord{
		{IdentityKey: "a", Name: "Jane Doe"},
		{IdentityKey: "b", Name: "John Roe"},
	})
	assert.Equal(t, 1, enriched)
	assert.Empty(t, out[0].Email)
	assert.Equal(t, "john@acme.com", out[1].Email)
}

func TestEnrichWithoutDomainIsNoop(t *testing.T) {
	cfg := enrichConfig()
	cfg.Search.CompanyURL = ""
	finder := &stubFinder{emails: map[string]string{"Jane Doe": "jane@acme.com"}}
	enricher := New(finder, cfg, logger.NewNopLogger())

	out, enriched := enricher.Enrich(context.Background(), []models.CandidateRecord{
		{IdentityKey: "a", Name: "Jane Doe"},
	})
	assert.Zero(t, enriched)
	assert.Empty(t, out[0].Email)
	assert.Zero(t, finder.calls)
}
