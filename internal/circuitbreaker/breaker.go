// Package circuitbreaker provides fail-fast protection for envelope
// submissions using Sony's gobreaker. When the ingestion endpoint is
// hard down, the open breaker sheds deliveries immediately instead of
// tying up the worker in connection timeouts.
package circuitbreaker

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"telemetry-courier/internal/common/errors"
	"telemetry-courier/internal/common/logging"
)

// Config holds the configuration for a circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures int
	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration
	// MaxConcurrentRequests is the number of probe requests allowed half-open
	MaxConcurrentRequests int
}

// DefaultConfig returns the configuration used for envelope submission.
// A telemetry endpoint that refuses three deliveries in a row is treated
// as down; probing resumes after thirty seconds.
func DefaultConfig() Config {
	return Config{
		MaxFailures:           3,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.MaxFailures <= 0 {
		return fmt.Errorf("MaxFailures must be positive, got %d", c.MaxFailures)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MaxConcurrentRequests must be positive, got %d", c.MaxConcurrentRequests)
	}
	return nil
}

// Breaker wraps Sony's gobreaker for the submission path.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

// New creates a circuit breaker. An invalid config falls back to
// defaults rather than failing transport construction.
func New(name string, config Config, logger logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if err := config.Validate(); err != nil {
		logger.Warn("Invalid circuit breaker config, using defaults",
			logging.Err(err),
			logging.String("name", name),
		)
		config = DefaultConfig()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.MaxConcurrentRequests),
		Interval:    time.Minute,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.MaxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Only network-level failures count against the breaker;
			// a reachable endpoint returning errors is still up.
			return !errors.IsType(err, errors.ErrTypeConnection)
		},
	}

	return &Breaker{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Execute runs fn within the circuit breaker.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.ConnectionError(fmt.Sprintf("circuit breaker %q is open", b.name), err)
	}

	return err
}

// IsOpen returns true if the circuit breaker is open
func (b *Breaker) IsOpen() bool {
	return b.breaker.State() == gobreaker.StateOpen
}

// Counts returns the current counts from gobreaker
func (b *Breaker) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
