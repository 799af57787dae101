// Package ingestmock is a stand-in ingestion endpoint for local
// development and tests. It accepts envelope submissions on the real
// URL shape and can be told to answer with rate-limit headers, a
// Retry-After, or a bare 429, which makes it a convenient peer for
// exercising the transport's throttle handling end to end.
package ingestmock

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"

	"telemetry-courier/internal/common/logging"
)

// Behavior controls how the mock endpoint answers submissions.
type Behavior struct {
	// StatusCode is the response status. Zero means 200.
	StatusCode int
	// RateLimitHeader, when set, is returned as X-Sentry-Rate-Limits.
	RateLimitHeader string
	// RetryAfter, when set, is returned as Retry-After.
	RetryAfter string
	// LimitEvery answers every Nth request with the throttle response
	// instead of 200. Zero throttles according to the fields above on
	// every request.
	LimitEvery int
}

// Server is the mock ingestion endpoint.
type Server struct {
	router   *mux.Router
	logger   logging.Logger
	received atomic.Int64

	mu       sync.Mutex
	behavior Behavior
	bodies   [][]byte
}

// NewServer creates a mock endpoint with the given initial behavior.
func NewServer(behavior Behavior, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		logger:   logger,
		behavior: behavior,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/{project}/envelope/", s.handleEnvelope).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP handler, for mounting in tests or a server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetBehavior swaps the response behavior at runtime.
func (s *Server) SetBehavior(behavior Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behavior = behavior
}

// Received returns how many envelopes arrived so far.
func (s *Server) Received() int64 {
	return s.received.Load()
}

// Bodies returns copies of all received envelope bodies in arrival order.
func (s *Server) Bodies() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.bodies))
	copy(out, s.bodies)
	return out
}

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	n := s.received.Add(1)

	s.mu.Lock()
	s.bodies = append(s.bodies, body)
	behavior := s.behavior
	s.mu.Unlock()

	s.logger.Debug("envelope received",
		logging.String("project", project),
		logging.Int("bytes", len(body)),
		logging.String("auth", r.Header.Get("X-Sentry-Auth")),
	)

	throttle := behavior.LimitEvery == 0 || n%int64(behavior.LimitEvery) == 0
	if !throttle {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
		return
	}

	if behavior.RateLimitHeader != "" {
		w.Header().Set("X-Sentry-Rate-Limits", behavior.RateLimitHeader)
	}
	if behavior.RetryAfter != "" {
		w.Header().Set("Retry-After", behavior.RetryAfter)
	}
	status := behavior.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	fmt.Fprint(w, `{}`)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
