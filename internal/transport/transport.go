// Package transport implements the background envelope delivery
// pipeline: a facade producers call, a single-goroutine delivery worker
// that owns the pending queue, a submission adapter that performs the
// HTTP call, and the rate-limiter wiring that interprets server
// throttle responses.
//
// Delivery is fire-and-forget by contract: SendEnvelope never blocks
// beyond the queue's drop-newest policy and never reports delivery
// outcomes back to the producer. Failures are visible only through the
// injected logger and Observer.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"telemetry-courier/internal/circuitbreaker"
	"telemetry-courier/internal/common/logging"
	"telemetry-courier/internal/dsn"
	"telemetry-courier/internal/envelope"
	"telemetry-courier/internal/ratelimit"
	"telemetry-courier/internal/spool"
	"telemetry-courier/internal/throttle"
)

const (
	// DefaultQueueSize bounds the pending queue when unset.
	DefaultQueueSize = 128
	// DefaultRequestTimeout bounds each submission when unset.
	DefaultRequestTimeout = 30 * time.Second
	// defaultClientName identifies this SDK in the auth header.
	defaultClientName = "telemetry-courier/0.1.0"
)

// Options configures a Transport. Everything here is resolved once at
// construction; the transport never re-reads it.
type Options struct {
	// DSN is the ingestion endpoint descriptor. Required.
	DSN string
	// ClientName identifies the SDK in the auth header.
	ClientName string
	// Logger receives transport diagnostics. Defaults to the global logger.
	Logger logging.Logger
	// Observer receives delivery outcome callbacks. Defaults to a no-op.
	Observer Observer
	// HTTPSProxy is the proxy preferred for secure destinations.
	HTTPSProxy string
	// HTTPProxy is the general fallback proxy.
	HTTPProxy string
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	// RequestTimeout bounds each HTTP submission.
	RequestTimeout time.Duration
	// QueueSize bounds the pending queue (drop-newest when full).
	QueueSize int
	// Throttle caps the producer-side submission rate. Zero disables it.
	Throttle throttle.Config
	// EnableBreaker adds fail-fast shedding when the endpoint is down.
	EnableBreaker bool
	// BreakerFactory builds the breaker when EnableBreaker is set.
	// Defaults to the circuit breaker package with its default config.
	BreakerFactory func(logger logging.Logger) breakerExecutor
	// Spool captures envelopes rejected at capacity for later replay.
	// Nil disables spooling.
	Spool *spool.Spool
	// LimitStore shares rate-limit state across cooperating processes.
	// Nil keeps limits process-local.
	LimitStore ratelimit.Store
	// HTTPTransport overrides the HTTP round tripper; proxy and TLS
	// settings are ignored when set. Used by tests.
	HTTPTransport http.RoundTripper
}

// defaultBreakerFactory wires the stock circuit breaker around the
// submission path.
func defaultBreakerFactory(logger logging.Logger) breakerExecutor {
	return circuitbreaker.New("envelope-submission", circuitbreaker.DefaultConfig(), logger)
}

// Transport is the public delivery contract: SendEnvelope, Flush,
// Shutdown. One background goroutine per Transport drains the queue.
type Transport struct {
	dest      Destination
	limits    *ratelimit.Limiter
	worker    *worker
	submitter *submitter
	throttle  *throttle.Throttle
	spool     *spool.Spool
	logger    logging.Logger
	observer  Observer
}

// New resolves the destination, builds the delivery pipeline, and
// starts the background worker. Only an unusable DSN fails
// construction; an invalid proxy string merely disables the proxy.
func New(opts Options) (*Transport, error) {
	parsed, err := dsn.Parse(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot construct transport: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	if opts.ClientName == "" {
		opts.ClientName = defaultClientName
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	dest := resolveDestination(parsed, opts, logger)
	client := newHTTPClient(dest, requestTimeout, opts.HTTPTransport)

	limits := ratelimit.New(logger)
	if opts.LimitStore != nil {
		limits.AttachStore(opts.LimitStore)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := limits.SyncFromStore(ctx); err != nil {
			logger.Debug("failed to load shared rate limits", logging.Err(err))
		}
		cancel()
	}

	var breaker breakerExecutor
	if opts.EnableBreaker {
		if opts.BreakerFactory != nil {
			breaker = opts.BreakerFactory(logger)
		} else {
			breaker = defaultBreakerFactory(logger)
		}
	}

	sub := &submitter{
		client:     client,
		url:        dest.URL,
		authHeader: dest.AuthHeader,
		limits:     limits,
		breaker:    breaker,
		logger:     logger,
		observer:   observer,
	}

	t := &Transport{
		dest:      dest,
		limits:    limits,
		submitter: sub,
		throttle:  throttle.New(opts.Throttle),
		spool:     opts.Spool,
		logger:    logger,
		observer:  observer,
	}
	t.worker = newWorker(queueSize, sub.deliver, logger, observer)
	t.worker.start()

	logger.Debug("transport started",
		logging.String("url", dest.URL),
		logging.Bool("proxy", dest.ProxyURL != nil),
		logging.Int("queue_size", queueSize),
	)
	return t, nil
}

// SendEnvelope hands an envelope to the delivery worker and returns
// immediately. The enqueue outcome is deliberately discarded: producers
// treat telemetry as fire-and-forget and must never stall on it.
func (t *Transport) SendEnvelope(env *envelope.Envelope) {
	if !t.throttle.Allow() {
		t.logger.Debug("outbound throttle exceeded, dropping envelope")
		t.observer.EnvelopeDropped(DropReasonThrottled)
		return
	}

	status := t.worker.enqueue(env)
	if status == enqueueRejectedFull && t.spool != nil {
		body, err := env.Serialize()
		if err != nil {
			t.logger.Debug("cannot spool malformed envelope", logging.Err(err))
			return
		}
		if err := t.spool.Add(body); err != nil {
			t.logger.Warn("failed to spool rejected envelope", logging.Err(err))
			return
		}
		t.logger.Debug("spooled rejected envelope")
	}
}

// Flush blocks until every envelope enqueued before the call has been
// attempted, or the timeout elapses. Returns true iff the queue
// drained in time. A failed flush leaves the transport usable and can
// be retried.
func (t *Transport) Flush(timeout time.Duration) bool {
	return t.worker.flush(timeout)
}

// Shutdown flushes up to the timeout, then stops the transport
// regardless of the flush outcome. Subsequent SendEnvelope calls are
// accepted syntactically but dropped; they never reach the network.
func (t *Transport) Shutdown(timeout time.Duration) bool {
	return t.worker.shutdown(timeout)
}

// Disabled reports whether the server currently throttles the given
// category. Producers poll this before building expensive envelopes.
func (t *Transport) Disabled(category ratelimit.Category) bool {
	return t.limits.Disabled(category)
}

// LimitDeadline returns the reset instant for the category, zero when
// unlimited.
func (t *Transport) LimitDeadline(category ratelimit.Category) time.Time {
	return t.limits.Deadline(category)
}

// ReplaySpool re-enqueues up to max spooled envelopes, oldest first. It
// stops as soon as the queue rejects one, leaving the remainder
// spooled. Returns the number of envelopes re-enqueued.
func (t *Transport) ReplaySpool(max int) (int, error) {
	if t.spool == nil {
		return 0, nil
	}
	return t.spool.Drain(max, func(body []byte) bool {
		return t.worker.enqueue(envelope.FromBytes(body)) == enqueueAccepted
	})
}
