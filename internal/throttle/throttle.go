// Package throttle caps the rate at which producers hand envelopes to
// the transport, using a token bucket from golang.org/x/time. This is a
// client-side guard against flooding the queue during error storms; it
// is independent of the server-imposed limits tracked by ratelimit.
package throttle

import (
	"golang.org/x/time/rate"
)

// Config holds throttle settings.
type Config struct {
	// EnvelopesPerSecond is the sustained outbound rate. Zero disables
	// the throttle.
	EnvelopesPerSecond float64
	// Burst is the number of envelopes allowed above the sustained rate.
	Burst int
}

// Throttle is a non-blocking token bucket over envelope submissions.
type Throttle struct {
	limiter *rate.Limiter
	enabled bool
}

// New creates a throttle. A zero or negative rate yields a disabled
// throttle that admits everything.
func New(config Config) *Throttle {
	if config.EnvelopesPerSecond <= 0 {
		return &Throttle{enabled: false}
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Limit(config.EnvelopesPerSecond), burst),
		enabled: true,
	}
}

// Allow reports whether one more envelope may be submitted now. It
// never blocks; a denied envelope is dropped by the caller.
func (t *Throttle) Allow() bool {
	if !t.enabled {
		return true
	}
	return t.limiter.Allow()
}

// Enabled reports whether the throttle is active.
func (t *Throttle) Enabled() bool {
	return t.enabled
}
