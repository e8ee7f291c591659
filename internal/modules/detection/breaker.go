package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrDetectorUnavailable is returned while the breaker is open.
var ErrDetectorUnavailable = errors.New("detector unavailable")

// Breaker stops calling a remote detector after repeated failures and
// probes it again once the breaker timeout passed.
type Breaker struct {
	inner Detector
	cb    *gobreaker.CircuitBreaker
}

func NewBreaker(inner Detector, cfg config.BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("DetectorBreaker")
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// a cancelled request says nothing about the remote side
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Name() string { return b.inner.Name() }

// State exposes the breaker state for health reporting.
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Detect(ctx context.Context, in Input) (models.Signals, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Detect(ctx, in)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %w", ErrDetectorUnavailable, b.inner.Name(), err)
		}
		return nil, err
	}
	sigs, _ := res.(models.Signals)
	return sigs, nil
}
