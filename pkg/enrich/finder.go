package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"leadhunter/pkg/config"
	"leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Finder resolves an email address for a person at a domain
type Finder interface {
	FindEmail(ctx context.Context, name, domain string) (string, error)
}

// Client talks to an email-finder API
type Client struct {
	http    *resty.Client
	baseURL string
	apiKey  string
	logger  logger.Logger
}

// NewClient creates an email-finder client from enrichment configuration
func NewClient(cfg *config.EnrichConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		http:    resty.New().SetTimeout(cfg.Timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  log,
	}
}

type finderResponse struct {
	Data struct {
		Email string `json:"email"`
	} `json:"data"`
}

// FindEmail looks up an email for a display name at a domain. A lookup
// that finds nothing returns ("", nil); only transport and API failures
// are errors.
func (c *Client) FindEmail(ctx context.Context, name, domain string) (string, error) {
	first, last := SplitName(name)
	if first == "" {
		return "", nil
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("domain", domain).
		SetQueryParam("first_name", first).
		SetQueryParam("api_key", c.apiKey)
	if last != "" {
		req.SetQueryParam("last_name", last)
	}

	var body finderResponse
	resp, err := req.SetResult(&body).Get(c.baseURL + "/email-finder")
	if err != nil {
		return "", errors.New(errors.ErrorTypeNetwork, 0, "email finder request failed: %v", err)
	}
	if resp.StatusCode() != 200 {
		return "", errors.New(errors.ErrorTypeServerError, resp.StatusCode(),
			"email finder returned status %d", resp.StatusCode())
	}

	return body.Data.Email, nil
}

type domainSearchResponse struct {
	Data struct {
		Domain string `json:"domain"`
		Emails []struct {
			Value     string `json:"value"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Position  string `json:"position"`
			LinkedIn  string `json:"linkedin"`
		} `json:"emails"`
	} `json:"data"`
}

// DomainSearch lists known contacts at a domain. Used as a fallback when
// profile enrichment found no emails at all.
func (c *Client) DomainSearch(ctx context.Context, domain string, limit int) ([]models.CandidateRecord, error) {
	var body domainSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("domain", domain).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetQueryParam("api_key", c.apiKey).
		SetResult(&body).
		Get(c.baseURL + "/domain-search")
	if err != nil {
		return nil, errors.New(errors.ErrorTypeNetwork, 0, "domain search request failed: %v", err)
	}
	if resp.StatusCode() != 200 {
		return nil, errors.New(errors.ErrorTypeServerError, resp.StatusCode(),
			"domain search returned status %d", resp.StatusCode())
	}

	now := time.Now()
	var records []models.CandidateRecord
	for _, e := range body.Data.Emails {
		if e.Value == "" {
			continue
		}
		record := models.CandidateRecord{
			Name:         strings.TrimSpace(e.FirstName + " " + e.LastName),
			Position:     e.Position,
			Company:      body.Data.Domain,
			Email:        e.Value,
			EmailAddedAt: now.Format("2006-01-02"),
			ProfileURL:   e.LinkedIn,
			SourceURL:    domain,
			Source:       "domain_search",
			ExtractedAt:  now,
		}
		if e.LinkedIn != "" {
			if key, err := models.IdentityKeyFromURL(e.LinkedIn); err == nil {
				record.IdentityKey = key
			}
		}
		if record.IdentityKey == "" {
			// No profile URL; the email itself is the stable identity
			record.IdentityKey = "mailto:" + strings.ToLower(e.Value)
		}
		records = append(records, record)
	}

	return records, nil
}

// SplitName splits a display name into first and last parts the way the
// finder API expects. Single-letter last names are dropped (initials do
// not resolve).
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch {
	case len(parts) >= 2:
		first, last = parts[0], parts[len(parts)-1]
		if len(last) <= 1 {
			last = ""
		}
	case len(parts) == 1:
		first = parts[0]
	}
	return first, last
}
