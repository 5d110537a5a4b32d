package search

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"leadhunter/pkg/config"
	"leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
	"leadhunter/pkg/session"
)

// Client performs search requests against the configured target.
// It does no retrying or rate limiting itself; the fetcher layers those on.
type Client struct {
	http   *resty.Client
	target *config.TargetConfig
	logger logger.Logger
}

// NewClient creates a search client from the target configuration
func NewClient(cfg *config.Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	http := resty.New().
		SetTimeout(cfg.Target.Timeout).
		SetHeader("User-Agent", cfg.Target.UserAgent).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   http,
		target: &cfg.Target,
		logger: log,
	}
}

// Search executes one page of the query and returns the raw response.
// The body is returned unparsed so parsing failures stay distinct from
// transport failures.
func (c *Client) Search(ctx context.Context, query models.Query, sess *session.Session) (*models.RawResponse, error) {
	req := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"q":    query.Expression(),
			"num":  query.PageSize,
			"page": query.Page,
		})

	if sess != nil {
		if sess.APIKey != "" {
			req.SetHeader("X-API-KEY", sess.APIKey)
		}
		if sess.Token != "" {
			req.SetHeader("Authorization", "Bearer "+sess.Token)
		}
	}

	start := time.Now()
	resp, err := req.Post(c.target.SearchURL)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("search request failed", map[string]interface{}{
			"url":      c.target.SearchURL,
			"page":     query.Page,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.New(errors.ErrorTypeNetwork, 0, "search request failed: %v", err)
	}

	c.logger.DebugWithFields("search request completed", map[string]interface{}{
		"url":      c.target.SearchURL,
		"page":     query.Page,
		"status":   resp.StatusCode(),
		"duration": duration,
	})

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	return &models.RawResponse{
		Query:      query,
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
		FetchedAt:  time.Now(),
	}, nil
}

// classifyStatus maps an HTTP response to the pipeline error taxonomy.
// Blocked detection is checked before the generic auth mapping: a 403
// carrying a challenge marker means the target has flagged the client,
// not that the session merely expired.
func classifyStatus(resp *resty.Response) error {
	code := resp.StatusCode()

	switch {
	case code == 200:
		if isChallengePage(resp.Body()) {
			return errors.New(errors.ErrorTypeBlocked, code, "challenge page in response body")
		}
		return nil
	case code == 429:
		return errors.New(errors.ErrorTypeRateLimit, code, "rate limited by target")
	case code == 403:
		if isBlockedResponse(resp) {
			return errors.New(errors.ErrorTypeBlocked, code, "request blocked by target")
		}
		return errors.New(errors.ErrorTypeAuth, code, "access forbidden")
	case code == 401:
		return errors.New(errors.ErrorTypeAuth, code, "authentication required")
	case code == 404:
		return errors.New(errors.ErrorTypeNotFound, code, "search endpoint not found")
	case code >= 500:
		return errors.New(errors.ErrorTypeServerError, code, "server returned status %d", code)
	default:
		return errors.New(errors.ErrorTypeUnknown, code, "unexpected status %d", code)
	}
}

// blockedMarkers are body fragments that indicate a bot-detection response
// rather than an ordinary error page.
var blockedMarkers = []string{
	"captcha",
	"unusual traffic",
	"automated queries",
	"access denied",
}

func isBlockedResponse(resp *resty.Response) bool {
	if resp.Header().Get("X-Blocked") != "" {
		return true
	}
	lower := strings.ToLower(string(resp.Body()))
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isChallengePage detects an interstitial served in place of results.
// Only HTML bodies are scanned: result snippets in a JSON payload may
// legitimately contain the marker words.
func isChallengePage(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	lower := strings.ToLower(trimmed)
	if !strings.Contains(lower, "captcha") && !strings.Contains(lower, "unusual traffic") {
		return false
	}
	return true
}
