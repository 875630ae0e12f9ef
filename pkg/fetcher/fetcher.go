// Package fetcher issues outbound requests under a process-wide concurrency
// cap with randomized pacing, retrying transient failures with exponential
// backoff and classifying terminal failures.
package fetcher

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/lisanmuaddib/steam-harvest/pkg/metrics"
)

// Default configuration values
const (
	// DefaultMaxConcurrency is the default number of requests allowed in flight
	DefaultMaxConcurrency = 10

	// DefaultRequestTimeout bounds a single request attempt
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the base of the exponential backoff
	DefaultRetryBackoff = time.Second

	// DefaultMaxBackoff caps a single backoff wait
	DefaultMaxBackoff = 30 * time.Second
)

// Config holds the pacing and retry parameters. It is read once and never
// changed while the Fetcher is in use.
type Config struct {
	// MaxConcurrency is the number of calls that may hold a slot at once
	MaxConcurrency int
	// RequestTimeout bounds each attempt
	RequestTimeout time.Duration
	// MaxRetries is how many times a transient failure is retried
	MaxRetries int
	// MinDelay and MaxDelay bound the random pause before every attempt
	MinDelay time.Duration
	MaxDelay time.Duration
	// RetryBackoff is the base backoff, doubled on every retry
	RetryBackoff time.Duration
	// MaxBackoff caps a single backoff wait
	MaxBackoff time.Duration
	// RequestsPerSecond enables a token bucket when positive
	RequestsPerSecond float64
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		MinDelay:       time.Second,
		MaxDelay:       3 * time.Second,
		RetryBackoff:   DefaultRetryBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Validate checks the configuration:
//   - MaxConcurrency must be positive
//   - RequestTimeout must be positive
//   - MaxRetries cannot be negative
//   - MinDelay cannot exceed MaxDelay and neither can be negative
func (c Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("fetcher: max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher: request timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("fetcher: max retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("fetcher: delays cannot be negative")
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("fetcher: min delay %v exceeds max delay %v", c.MinDelay, c.MaxDelay)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("fetcher: requests per second cannot be negative")
	}
	return nil
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithMetrics reports request outcomes to m.
func WithMetrics(m *metrics.Collector) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithRandom replaces the [0,1) source used for delays and jitter.
func WithRandom(random func() float64) Option {
	return func(f *Fetcher) {
		if random != nil {
			f.random = random
		}
	}
}

// Fetcher is safe for concurrent use. One Fetcher is shared by every job of a
// process so the concurrency cap is global.
type Fetcher struct {
	config   Config
	slots    chan struct{}
	limiter  *rate.Limiter
	logger   *logrus.Logger
	metrics  *metrics.Collector
	random   func() float64
	inflight atomic.Int64
	peak     atomic.Int64
	attempts atomic.Int64
}

// New creates a Fetcher from a validated configuration.
func New(config Config, logger *logrus.Logger, opts ...Option) (*Fetcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultMaxBackoff
	}
	if logger == nil {
		logger = logrus.New()
	}

	f := &Fetcher{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrency),
		logger: logger,
		random: rand.Float64,
	}
	if config.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(f)
	}

	logger.WithFields(logrus.Fields{
		"max_concurrency": config.MaxConcurrency,
		"max_retries":     config.MaxRetries,
		"min_delay":       config.MinDelay.String(),
		"max_delay":       config.MaxDelay.String(),
		"request_timeout": config.RequestTimeout.String(),
		"rps":             config.RequestsPerSecond,
	}).Debug("Created fetcher")

	return f, nil
}

// Config returns the configuration in use.
func (f *Fetcher) Config() Config {
	return f.config
}

// InFlight returns the number of calls currently holding a slot.
func (f *Fetcher) InFlight() int {
	return int(f.inflight.Load())
}

// PeakInFlight returns the highest InFlight value observed.
func (f *Fetcher) PeakInFlight() int {
	return int(f.peak.Load())
}

// Attempts returns the total number of request attempts made.
func (f *Fetcher) Attempts() int64 {
	return f.attempts.Load()
}

// Fetch runs call under a concurrency slot, pacing and retrying it. Callers
// only see the final outcome: the result, a terminal *FetchError carrying the
// attempt count, or ErrAborted when ctx ended before anything was sent.
//
// Once an attempt is on the wire it runs until it completes or hits the
// request timeout, even if ctx is cancelled; cancellation only stops further
// retries, and the terminal error then has Interrupted set.
func Fetch[T any](ctx context.Context, f *Fetcher, key string, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	release, err := f.acquire(ctx)
	if err != nil {
		return zero, err
	}
	defer release()

	log := f.logger.WithField("key", key)

	var last *FetchError
	attempts := 0
	interrupted := false
	maxAttempts := f.config.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := f.backoff(attempt-1, last)
			log.WithFields(logrus.Fields{
				"retry":   attempt - 1,
				"backoff": wait.String(),
				"kind":    last.Kind,
			}).Info("Scheduling fetch retry")
			f.metrics.IncRetry(string(last.Kind))
			if err := sleepContext(ctx, wait); err != nil {
				interrupted = true
				break
			}
		}

		if err := f.pace(ctx); err != nil {
			if attempt == 1 {
				return zero, fmt.Errorf("%w: %v", ErrAborted, err)
			}
			interrupted = true
			break
		}

		attempts++
		result, err := runAttempt(ctx, f, call)
		if err == nil {
			if attempt > 1 {
				log.WithField("attempts", attempts).Debug("Fetch succeeded after retry")
			}
			return result, nil
		}

		last = Classify(err)
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"kind":    last.Kind,
			"error":   last.Error(),
		}).Debug("Fetch attempt failed")

		if !last.Kind.Transient() {
			break
		}
	}

	terminal := *last
	terminal.Attempts = attempts
	terminal.Interrupted = interrupted
	if interrupted {
		log.WithField("attempts", attempts).Debug("Retries cut short by cancellation")
	}
	return zero, &terminal
}

// runAttempt makes one request detached from ctx cancellation but bounded by
// the request timeout.
func runAttempt[T any](ctx context.Context, f *Fetcher, call func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.config.RequestTimeout)
	defer cancel()

	f.attempts.Add(1)
	start := time.Now()
	result, err := call(attemptCtx)

	outcome := "success"
	if err != nil {
		outcome = string(Classify(err).Kind)
	}
	f.metrics.ObserveRequest(outcome, time.Since(start))

	return result, err
}

func (f *Fetcher) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAborted, err)
	}
	select {
	case f.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}

	n := f.inflight.Add(1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	f.metrics.SetInFlight(int(n))

	return func() {
		n := f.inflight.Add(-1)
		f.metrics.SetInFlight(int(n))
		<-f.slots
	}, nil
}

// pace waits the random inter-request delay and, when configured, for a token.
func (f *Fetcher) pace(ctx context.Context) error {
	if d := f.randomDelay(); d > 0 {
		if err := sleepContext(ctx, d); err != nil {
			return err
		}
	}
	if f.limiter != nil {
		return f.limiter.Wait(ctx)
	}
	return ctx.Err()
}

func (f *Fetcher) randomDelay() time.Duration {
	span := f.config.MaxDelay - f.config.MinDelay
	return f.config.MinDelay + time.Duration(f.random()*float64(span))
}

// backoff computes the wait before the given retry, stretching it to a
// server-provided Retry-After when that is longer.
func (f *Fetcher) backoff(retry int, last *FetchError) time.Duration {
	wait := calculateBackoff(retry, f.config.RetryBackoff, f.config.MaxBackoff)
	wait += time.Duration(f.random() * float64(f.config.RetryBackoff))
	if last != nil && last.RetryAfter > wait {
		wait = last.RetryAfter
	}
	if wait > f.config.MaxBackoff {
		wait = f.config.MaxBackoff
	}
	return wait
}

// calculateBackoff returns base * 2^(retry-1), capped at max.
func calculateBackoff(retry int, base, max time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	backoff := base
	for i := 1; i < retry; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
