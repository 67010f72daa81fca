package analyze

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/observability"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the retry configuration for n retries
func DefaultRetryConfig(n int) RetryConfig {
	return RetryConfig{
		MaxRetries:     n,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

type retryingAnalyzer struct {
	next   domain.Analyzer
	cfg    RetryConfig
	logger *observability.Logger
}

// WithRetry wraps an analyzer so that rate limits, server errors and transport
// failures are retried with exponential backoff. With zero retries next is
// returned unchanged.
func WithRetry(next domain.Analyzer, cfg RetryConfig, logger *observability.Logger) domain.Analyzer {
	if cfg.MaxRetries <= 0 {
		return next
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = maxBackoff
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &retryingAnalyzer{next: next, cfg: cfg, logger: logger.WithComponent("retry")}
}

func (r *retryingAnalyzer) Analyze(ctx context.Context, images []domain.PageImage, mode domain.Mode) (*domain.Analysis, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.InitialBackoff
	exp.MaxInterval = r.cfg.MaxBackoff
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.cfg.MaxRetries)), ctx)

	var result *domain.Analysis
	attempt := 0
	op := func() error {
		attempt++
		res, err := r.next.Analyze(ctx, images, mode)
		if err != nil {
			if !shouldRetry(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).Int("attempt", attempt).Int("max_retries", r.cfg.MaxRetries).
			Dur("backoff", wait).Msg("Analysis failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return result, nil
}

// shouldRetry determines if an error is retryable
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var de *domain.DomainError
	if !errors.As(err, &de) || de.Type != domain.ErrorTypeAPI {
		return false
	}

	switch de.StatusCode {
	case 0: // transport failure
		return true
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

type limitedAnalyzer struct {
	next    domain.Analyzer
	limiter *rate.Limiter
}

// WithRateLimit spaces out requests to at most perMinute per minute. A value of
// zero or less returns next unchanged.
func WithRateLimit(next domain.Analyzer, perMinute int) domain.Analyzer {
	if perMinute <= 0 {
		return next
	}
	return &limitedAnalyzer{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (l *limitedAnalyzer) Analyze(ctx context.Context, images []domain.PageImage, mode domain.Mode) (*domain.Analysis, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Analyze(ctx, images, mode)
}
