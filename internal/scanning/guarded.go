package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// CallObserver is notified after every vision call that reached the model
// or was rejected by the breaker.
type CallObserver interface {
	ObserveVisionCall(provider string, duration time.Duration, err error)
}

// GuardConfig configures the circuit breaker and rate limiter in front of a
// Scanner. Calls are never retried: a failed call falls through to the
// pipeline's weaker extractors instead.
type GuardConfig struct {
	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// RatePerSecond limits outbound calls. Zero disables the limiter.
	RatePerSecond float64
	Burst         int
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 1,

		RatePerSecond: 2,
		Burst:         4,
	}
}

func (c GuardConfig) normalize() GuardConfig {
	out := c
	def := DefaultGuardConfig()

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	if out.RatePerSecond < 0 {
		out.RatePerSecond = 0
	}
	if out.Burst <= 0 {
		out.Burst = 1
	}
	return out
}

// Guarded wraps a Scanner with a circuit breaker and a rate limiter.
type Guarded struct {
	next     Scanner
	provider string
	breaker  *gobreaker.CircuitBreaker[string]
	limiter  *rate.Limiter
	observer CallObserver
}

// NewGuarded wraps next. observer may be nil.
func NewGuarded(next Scanner, provider string, cfg GuardConfig, observer CallObserver) *Guarded {
	cfg = cfg.normalize()

	g := &Guarded{
		next:     next,
		provider: provider,
		observer: observer,
	}

	if cfg.RatePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}

	if cfg.BreakerEnabled {
		g.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        provider,
			MaxRequests: cfg.BreakerHalfOpenMaxCalls,
			Timeout:     cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.BreakerMinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.BreakerFailureRatio
			},
			IsSuccessful: func(err error) bool {
				// A caller giving up says nothing about the model's health
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				slog.Warn("Vision circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return g
}

// Generate waits for the rate limiter and calls the wrapped Scanner through
// the breaker. An open breaker fails fast with an error matching
// IsCircuitOpen.
func (g *Guarded) Generate(ctx context.Context, image []byte, contentType string, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for %s rate limit: %w", g.provider, err)
		}
	}

	call := func() (string, error) {
		return g.next.Generate(ctx, image, contentType, prompt)
	}

	start := time.Now()
	var (
		text string
		err  error
	)
	if g.breaker != nil {
		text, err = g.breaker.Execute(call)
	} else {
		text, err = call()
	}
	if g.observer != nil {
		g.observer.ObserveVisionCall(g.provider, time.Since(start), err)
	}
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", g.provider, err)
	}
	return text, nil
}

func (g *Guarded) Close() error {
	return g.next.Close()
}

// IsCircuitOpen reports whether err came from an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
