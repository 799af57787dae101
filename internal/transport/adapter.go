package transport

import (
	"bytes"
	"io"
	"net/http"
	"time"

	cerrors "telemetry-courier/internal/common/errors"
	"telemetry-courier/internal/common/logging"
	"telemetry-courier/internal/envelope"
	"telemetry-courier/internal/ratelimit"
)

const contentType = "application/x-sentry-envelope"

// submitter performs a single envelope delivery: serialize, POST,
// interpret the response. It is only ever invoked from the worker
// goroutine, one delivery at a time, so rate-limiter updates are
// strictly ordered.
type submitter struct {
	client     *http.Client
	url        string
	authHeader string
	limits     *ratelimit.Limiter
	breaker    breakerExecutor
	logger     logging.Logger
	observer   Observer
}

// breakerExecutor is the slice of the circuit breaker the submitter
// needs; nil means no breaker.
type breakerExecutor interface {
	Execute(fn func() error) error
}

// deliver attempts one submission. It never returns anything to the
// producer: failures are logged and observed, a dropped envelope is
// accepted data loss. There is no retry at this layer.
func (s *submitter) deliver(env *envelope.Envelope) {
	body, err := env.Serialize()
	if err != nil {
		serr := cerrors.SerializationError("failed to serialize envelope", err)
		s.logger.Warn("dropping malformed envelope", logging.Err(serr))
		s.observer.EnvelopeDropped(DropReasonSerialize)
		return
	}

	start := time.Now()
	var resp *http.Response
	do := func() error {
		req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return cerrors.InternalError("failed to build submission request", err)
		}
		req.Header.Set("X-Sentry-Auth", s.authHeader)
		req.Header.Set("Content-Type", contentType)

		r, err := s.client.Do(req)
		if err != nil {
			return cerrors.ConnectionError("envelope submission failed", err)
		}
		resp = r
		return nil
	}

	if s.breaker != nil {
		err = s.breaker.Execute(do)
	} else {
		err = do()
	}
	if err != nil {
		// Transport-level failure: no rate limiter action, no retry.
		s.logger.Debug("failed to send envelope", logging.Err(err))
		s.observer.EnvelopeDropped(DropReasonNetwork)
		return
	}
	defer resp.Body.Close()

	limited := s.limits.UpdateFromResponse(resp.StatusCode, resp.Header)
	for _, category := range limited {
		s.logger.Debug("server throttled category",
			logging.String("category", category.String()),
		)
		s.observer.RateLimited(category.String())
	}

	// Drain the body for connection hygiene; the content is diagnostic
	// only.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		s.logger.Debug("failed to read submission response", logging.Err(err))
	}

	s.observer.EnvelopeDelivered(resp.StatusCode, time.Since(start))
	s.logger.Debug("envelope delivered",
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", time.Since(start)),
	)
}
