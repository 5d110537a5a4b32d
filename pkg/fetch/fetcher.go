package fetch

import (
	"context"
	"errors"
	"fmt"

	"leadhunter/pkg/config"
	lherrors "leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
	"leadhunter/pkg/ratelimit"
	"leadhunter/pkg/retry"
	"leadhunter/pkg/session"
)

// SearchClient executes a single search request
type SearchClient interface {
	Search(ctx context.Context, query models.Query, sess *session.Session) (*models.RawResponse, error)
}

// SessionProvider supplies valid sessions and accepts invalidation
type SessionProvider interface {
	Get(ctx context.Context) (*session.Session, error)
	Invalidate()
}

// Fetcher is the single gateway for outbound requests. Every fetch passes
// through the rate limiter first, carries the current session, and runs
// under the retry policy. Blocked responses are never retried.
type Fetcher struct {
	client   SearchClient
	sessions SessionProvider
	limiter  ratelimit.Limiter
	retrier  *retry.HTTPRetrier
	logger   logger.Logger
}

// New creates a fetcher wiring the limiter, session provider and retry policy
func New(client SearchClient, sessions SessionProvider, limiter ratelimit.Limiter, cfg *config.Config, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		client:   client,
		sessions: sessions,
		limiter:  limiter,
		retrier:  retry.NewHTTPRetrier(cfg.Retry.MaxAttempts, log),
		logger:   log,
	}
}

// NewWithRetrier creates a fetcher around an explicit retry policy
func NewWithRetrier(client SearchClient, sessions SessionProvider, limiter ratelimit.Limiter, retrier *retry.HTTPRetrier, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		client:   client,
		sessions: sessions,
		limiter:  limiter,
		retrier:  retrier,
		logger:   log,
	}
}

// Fetch retrieves one page of results. Network, rate-limit and server
// errors are retried with per-class backoff; an auth error forces a
// session refresh and one more attempt; blocked errors surface untouched.
func (f *Fetcher) Fetch(ctx context.Context, query models.Query) (*models.RawResponse, error) {
	raw, err := f.fetchWithRetry(ctx, query)
	if err != nil && isAuthError(err) {
		f.logger.WarnWithFields("auth rejected, refreshing session", map[string]interface{}{
			"page": query.Page,
		})
		f.sessions.Invalidate()
		raw, err = f.fetchWithRetry(ctx, query)
	}
	return raw, err
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, query models.Query) (*models.RawResponse, error) {
	var raw *models.RawResponse

	err := f.retrier.WithContext(ctx).Do(func() error {
		if err := f.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		sess, err := f.sessions.Get(ctx)
		if err != nil {
			return err
		}

		resp, err := f.client.Search(ctx, query, sess)
		if err != nil {
			return err
		}

		raw = resp
		return nil
	})

	return raw, err
}

func isAuthError(err error) bool {
	var classified *lherrors.Error
	if !errors.As(err, &classified) {
		return false
	}
	return classified.Type == lherrors.ErrorTypeAuth
}
