package resilience

import "time"

// Config is a complete retry and circuit breaker policy. Build one with
// PublishPolicy or IngestPolicy; zero fields fall back to the publish policy.
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

	// OnRetry observes every attempt that is about to be retried.
	OnRetry func(operation string, attempt int, err error)
}

// RetrySettings are the operator-tunable parts of a policy. Non-positive
// values keep the policy default.
type RetrySettings struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// publishPolicy runs inside the upload request, so it gives up quickly and
// trips the breaker once NATS is clearly down; the pending sweep re-sends
// whatever this drops.
var publishPolicy = Config{
	RetryMaxAttempts:    3,
	RetryInitialBackoff: 100 * time.Millisecond,
	RetryMaxBackoff:     400 * time.Millisecond,
	RetryMultiplier:     2,

	BreakerEnabled:          true,
	BreakerMinRequests:      10,
	BreakerFailureRatio:     0.5,
	BreakerOpenTimeout:      30 * time.Second,
	BreakerHalfOpenMaxCalls: 2,
}

// ingestPolicy waits for a catalog record or blob that has not landed yet.
// A missing record is expected there, so it never feeds a breaker.
var ingestPolicy = Config{
	RetryMaxAttempts:    6,
	RetryInitialBackoff: 250 * time.Millisecond,
	RetryMaxBackoff:     4 * time.Second,
	RetryMultiplier:     2,
}

func PublishPolicy(settings RetrySettings, breaker bool) Config {
	cfg := settings.applyTo(publishPolicy)
	cfg.BreakerEnabled = breaker
	return cfg
}

func IngestPolicy(settings RetrySettings) Config {
	return settings.applyTo(ingestPolicy)
}

func (s RetrySettings) applyTo(cfg Config) Config {
	if s.MaxAttempts > 0 {
		cfg.RetryMaxAttempts = s.MaxAttempts
	}
	if s.InitialBackoff > 0 {
		cfg.RetryInitialBackoff = s.InitialBackoff
	}
	if s.MaxBackoff > 0 {
		cfg.RetryMaxBackoff = s.MaxBackoff
	}
	return cfg.normalize()
}

func (c Config) normalize() Config {
	out := c
	def := publishPolicy

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if !out.BreakerEnabled {
		return out
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
	return out
}
