package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes a circuit breaker around an external dependency.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state counter reset period
	Timeout      time.Duration // open-state duration
	MinRequests  uint32
	FailureRatio float64
	// Ignore lists errors that describe the request, not the dependency.
	// They never count toward tripping.
	Ignore []error
}

// NewBreaker builds a gobreaker.CircuitBreaker that trips once MinRequests
// have been seen and the failure ratio reaches FailureRatio.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return !CountsAsDependencyFailure(err, cfg.Ignore...)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// CountsAsDependencyFailure reports whether err says something about the
// dependency's health. Missing objects, rejected input and caller
// cancellation are properties of one job and stay out of the failure ratio.
func CountsAsDependencyFailure(err error, ignore ...error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput), errors.Is(err, context.Canceled):
		return false
	}
	for _, target := range ignore {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}

// BreakerError maps open/half-open rejections to ErrUnavailable.
func BreakerError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %v", name, ErrUnavailable, err)
	}
	return err
}
