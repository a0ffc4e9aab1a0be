package inference

import (
	"math"
	"time"
)

// RetryPolicy bounds the attempts of one call. It is immutable per client call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy returns three attempts starting at one second, doubling each retry.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

// Delay returns the wait before the given retry. Retry starts at 1 (the second attempt).
// Formula: BaseDelay * Multiplier^(retry-1)
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(retry-1))
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
