package resilience

import (
	"strings"
	"time"
)

// Config holds the executor-wide retry and breaker settings. Operations
// narrows the retry budget of individual calls.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// Operations is keyed by an operation name ("ollama.generate") or by a
	// family prefix ending in a dot ("worker.").
	Operations map[string]OperationPolicy
}

// OperationPolicy overrides the retry budget of one operation. Zero fields
// inherit the executor-wide values.
type OperationPolicy struct {
	MaxAttempts int
	// AttemptTimeout bounds a single attempt; zero leaves only the caller deadline.
	AttemptTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
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

func positiveOr[T int | uint32 | float64 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c

	out.RetryMaxAttempts = positiveOr(c.RetryMaxAttempts, def.RetryMaxAttempts)
	out.RetryInitialBackoff = positiveOr(c.RetryInitialBackoff, def.RetryInitialBackoff)
	out.RetryMaxBackoff = max(positiveOr(c.RetryMaxBackoff, def.RetryMaxBackoff), out.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	out.BreakerMinRequests = positiveOr(c.BreakerMinRequests, def.BreakerMinRequests)
	out.BreakerOpenTimeout = positiveOr(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	out.BreakerHalfOpenMaxCalls = positiveOr(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}

	out.Operations = make(map[string]OperationPolicy, len(c.Operations))
	for name, p := range c.Operations {
		out.Operations[name] = OperationPolicy{
			MaxAttempts:    max(p.MaxAttempts, 0),
			AttemptTimeout: max(p.AttemptTimeout, 0),
		}
	}
	return out
}

// policyFor resolves the retry budget of operation: an exact entry wins over
// the longest matching family prefix, which wins over the executor defaults.
func (c Config) policyFor(operation string) OperationPolicy {
	out := OperationPolicy{MaxAttempts: c.RetryMaxAttempts}

	override, ok := c.Operations[operation]
	if !ok {
		longest := 0
		for key, p := range c.Operations {
			if strings.HasSuffix(key, ".") && strings.HasPrefix(operation, key) && len(key) > longest {
				override, longest = p, len(key)
			}
		}
	}
	if override.MaxAttempts > 0 {
		out.MaxAttempts = override.MaxAttempts
	}
	out.AttemptTimeout = override.AttemptTimeout
	return out
}
