package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"leadhunter/pkg/auth"
	"leadhunter/pkg/config"
	"leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
)

// State tracks the session lifecycle
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Active
	Expired
	// Locked is terminal: too many consecutive login failures. Every
	// subsequent Get fails immediately without contacting the target.
	Locked
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Active:
		return "active"
	case Expired:
		return "expired"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Session is an authenticated context for requests against the target
type Session struct {
	Token         string
	APIKey        string
	EstablishedAt time.Time
	ExpiresAt     time.Time
}

// Valid reports whether the session can still be used
func (s *Session) Valid() bool {
	if s == nil {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Before(s.ExpiresAt)
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Manager maintains a valid session, logging in and refreshing as needed
type Manager struct {
	mu       sync.Mutex
	state    State
	session  *Session
	failures int

	client  *resty.Client
	account *auth.Account
	cfg     *config.SessionConfig
	target  *config.TargetConfig
	logger  logger.Logger
}

// NewManager creates a session manager for the given account.
// API-key-only accounts skip the login flow entirely.
func NewManager(account *auth.Account, cfg *config.Config, log logger.Logger) *Manager {
	client := resty.New().
		SetTimeout(cfg.Target.Timeout).
		SetHeader("User-Agent", cfg.Target.UserAgent)

	return &Manager{
		state:   Unauthenticated,
		client:  client,
		account: account,
		cfg:     &cfg.Session,
		target:  &cfg.Target,
		logger:  log,
	}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Get returns a valid session, transparently logging in or refreshing
// when the current one is expired or was invalidated.
func (m *Manager) Get(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Locked {
		return nil, errors.New(errors.ErrorTypeAuth, 0,
			"session locked after %d consecutive login failures", m.cfg.MaxAuthFailures)
	}

	if m.state == Active {
		if m.session.Valid() {
			return m.session, nil
		}
		m.state = Expired
		m.logger.DebugWithFields("session expired", map[string]interface{}{
			"established_at": m.session.EstablishedAt,
		})
	}

	return m.authenticate(ctx)
}

// Invalidate marks the current session as expired, forcing a fresh login
// on the next Get. Called by the fetcher on 401/403-class responses.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Active {
		m.state = Expired
		m.logger.Info("session invalidated by caller")
	}
}

// authenticate performs the login flow. Caller holds the lock.
func (m *Manager) authenticate(ctx context.Context) (*Session, error) {
	// API-key accounts need no login handshake
	if m.account.Email == "" || m.target.LoginURL == "" {
		if m.account.APIKey == "" && m.target.APIKey == "" {
			return nil, errors.New(errors.ErrorTypeAuth, 0, "no credentials available")
		}
		m.session = &Session{
			APIKey:        m.apiKey(),
			EstablishedAt: time.Now(),
		}
		m.state = Active
		return m.session, nil
	}

	m.state = Authenticating
	m.logger.InfoWithFields("logging in", map[string]interface{}{
		"login_url": m.target.LoginURL,
		"account":   m.account.Name,
	})

	var body loginResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"email":    m.account.Email,
			"password": m.account.Password,
		}).
		SetResult(&body).
		Post(m.target.LoginURL)

	if err != nil {
		// Network failures during login do not count toward lockout
		m.state = Unauthenticated
		return nil, errors.New(errors.ErrorTypeNetwork, 0, "login request failed: %v", err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK:
		m.failures = 0
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, m.recordFailure(resp.StatusCode())
	default:
		m.state = Unauthenticated
		return nil, errors.New(errors.ErrorTypeServerError, resp.StatusCode(),
			"login returned unexpected status")
	}

	if body.Token == "" {
		return nil, m.recordFailure(resp.StatusCode())
	}

	now := time.Now()
	session := &Session{
		Token:         body.Token,
		APIKey:        m.apiKey(),
		EstablishedAt: now,
	}
	if body.ExpiresIn > 0 {
		session.ExpiresAt = now.Add(time.Duration(body.ExpiresIn) * time.Second)
	} else if m.cfg.TokenTTL > 0 {
		session.ExpiresAt = now.Add(m.cfg.TokenTTL)
	}

	m.session = session
	m.state = Active
	m.logger.InfoWithFields("session established", map[string]interface{}{
		"expires_at": session.ExpiresAt,
	})

	return session, nil
}

// recordFailure counts a rejected login and locks the manager once the
// consecutive-failure budget is exhausted. Caller holds the lock.
func (m *Manager) recordFailure(statusCode int) error {
	m.failures++
	m.logger.WarnWithFields("login rejected", map[string]interface{}{
		"status_code": statusCode,
		"failures":    m.failures,
		"max":         m.cfg.MaxAuthFailures,
	})

	if m.failures >= m.cfg.MaxAuthFailures {
		m.state = Locked
		m.logger.Error(fmt.Sprintf("session locked after %d consecutive login failures", m.failures))
		return errors.New(errors.ErrorTypeAuth, statusCode,
			"session locked after %d consecutive login failures", m.failures)
	}

	m.state = Unauthenticated
	return errors.New(errors.ErrorTypeAuth, statusCode, "login rejected")
}

// apiKey prefers the credential store's key over the config one
func (m *Manager) apiKey() string {
	if m.account.APIKey != "" {
		return m.account.APIKey
	}
	return m.target.APIKey
}
