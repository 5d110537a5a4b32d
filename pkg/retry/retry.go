package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadhunter/pkg/config"
	errs "leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// FromConfig builds a retry configuration from the application config
func FromConfig(rc *config.RetryConfig, log logger.Logger) *Config {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Config{
		MaxAttempts: rc.MaxAttempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:    rc.BaseDelay,
			MaxDelay:     rc.MaxDelay,
			Multiplier:   rc.Multiplier,
			JitterFactor: rc.JitterFactor,
		},
		RetryIf: DefaultRetryIf,
		Context: context.Background(),
		Logger:  log,
	}
}

// DefaultRetryIf is the default retry predicate
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var classified *errs.Error
	if errors.As(err, &classified) {
		return errs.IsRetryable(classified.Type)
	}

	// Context errors are never retried
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Default to retrying unknown errors
	return true
}

// Do executes an operation with retry logic
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	attempt := 0

	for {
		attempt++

		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt - 1,
					"last_error": lastErr.Error(),
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		err := op()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return err
		}

		delay := cfg.Backoff.NextDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := Wait(cfg.Context, delay); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retry cancelled", map[string]interface{}{
					"attempt": attempt,
					"reason":  err.Error(),
				})
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)

	return result, err
}

// HTTPRetrier provides retry logic with error-type specific backoff
type HTTPRetrier struct {
	config           *Config
	errorTypeBackoff *ErrorTypeBackoff
}

// NewHTTPRetrier creates a new HTTP-specific retrier
func NewHTTPRetrier(maxAttempts int, log logger.Logger) *HTTPRetrier {
	errorTypeBackoff := NewErrorTypeBackoff()

	return &HTTPRetrier{
		config: &Config{
			MaxAttempts: maxAttempts,
			Backoff:     errorTypeBackoff.DefaultBackoff,
			RetryIf:     DefaultRetryIf,
			Context:     context.Background(),
			Logger:      log,
		},
		errorTypeBackoff: errorTypeBackoff,
	}
}

// WithBackoffSchedule overrides the per-error-type schedule
func (hr *HTTPRetrier) WithBackoffSchedule(schedule *ErrorTypeBackoff) *HTTPRetrier {
	hr.errorTypeBackoff = schedule
	hr.config.Backoff = schedule.DefaultBackoff
	return hr
}

// WithContext returns a retrier bound to the given context
func (hr *HTTPRetrier) WithContext(ctx context.Context) *HTTPRetrier {
	newConfig := *hr.config
	newConfig.Context = ctx
	return &HTTPRetrier{
		config:           &newConfig,
		errorTypeBackoff: hr.errorTypeBackoff,
	}
}

// Do executes an operation, switching backoff schedule by error type
func (hr *HTTPRetrier) Do(op Operation) error {
	cfg := *hr.config
	cfg.Backoff = &errorAwareBackoff{
		fallback: hr.config.Backoff,
		byType:   hr.errorTypeBackoff,
	}
	eab := cfg.Backoff.(*errorAwareBackoff)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		var classified *errs.Error
		if errors.As(err, &classified) {
			eab.setType(string(classified.Type))
		}
	}
	return Do(op, &cfg)
}

// errorAwareBackoff delegates to the schedule matching the last error type.
// setType runs before NextDelay is consulted for the following wait.
type errorAwareBackoff struct {
	fallback BackoffStrategy
	byType   *ErrorTypeBackoff
	current  BackoffStrategy
}

func (b *errorAwareBackoff) setType(errorType string) {
	b.current = b.byType.GetBackoffForError(errorType)
}

func (b *errorAwareBackoff) NextDelay(attempt int) time.Duration {
	if b.current != nil {
		return b.current.NextDelay(attempt)
	}
	return b.fallback.NextDelay(attempt)
}
