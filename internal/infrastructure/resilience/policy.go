package resilience

import (
	"context"
	"time"
)

type BackoffStrategy string

const (
	// BackoffLinear waits attempt×initial between tries, the policy used
	// for durable blob uploads.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential multiplies the wait each try, capped at max.
	BackoffExponential BackoffStrategy = "exponential"
)

// SleepFunc is a cancellable wait. Tests inject a fake so the
// timeout-vs-retry race runs without wall-clock delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Config struct {
	RetryMaxAttempts    int
	RetryBackoff        BackoffStrategy
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	Sleep SleepFunc
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryBackoff:        BackoffExponential,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryBackoff != BackoffLinear && out.RetryBackoff != BackoffExponential {
		out.RetryBackoff = def.RetryBackoff
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

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

	if out.Sleep == nil {
		out.Sleep = timerSleep
	}

	return out
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
