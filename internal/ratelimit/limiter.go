// Package ratelimit tracks server-imposed throttle windows per category.
// The limiter is a pure state machine: the submission adapter feeds it
// every response, producers poll it before enqueuing. A category is
// limited iff the current time is before its recorded reset instant;
// expired entries are inert and need no eager cleanup.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"telemetry-courier/internal/common/logging"
)

// DefaultRetryAfter is the blanket backoff applied when the server
// answers 429 without any informative header.
const DefaultRetryAfter = 60 * time.Second

const (
	headerRateLimits = "X-Sentry-Rate-Limits"
	headerRetryAfter = "Retry-After"
)

// Limiter records, per category, the instant at which submissions may
// resume. It is safe for concurrent use: the delivery worker mutates it
// while producers poll it.
type Limiter struct {
	mu     sync.RWMutex
	limits map[Category]time.Time
	now    func() time.Time
	store  Store
	logger logging.Logger
}

// New creates an empty limiter.
func New(logger logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Limiter{
		limits: make(map[Category]time.Time),
		now:    time.Now,
		logger: logger,
	}
}

// NewWithClock creates a limiter with an injected clock for tests.
func NewWithClock(logger logging.Logger, now func() time.Time) *Limiter {
	l := New(logger)
	l.now = now
	return l
}

// AttachStore connects a shared limit store. Every update is written
// through best-effort; store failures are logged and never surface.
func (l *Limiter) AttachStore(store Store) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store = store
}

// directiveKind tags the outcome of classifying a response. The
// precedence rule (structured limits header, then retry-after, then a
// bare 429) lives entirely in classify so it stays visible to tests.
type directiveKind int

const (
	directiveNone directiveKind = iota
	directiveCategories
	directiveRetryAfter
	directiveTooMany
)

// directive is the tagged result of classify.
type directive struct {
	kind   directiveKind
	limits map[Category]time.Duration
	delay  time.Duration
}

// classify inspects a response and returns the single directive that
// applies. The first matching source wins; later ones are not consulted.
// Presence of the structured header ends the chain even when nothing in
// it parses, so a header full of unknown categories imposes no limit.
func classify(status int, header http.Header, now time.Time) directive {
	if raw := header.Get(headerRateLimits); raw != "" {
		return directive{kind: directiveCategories, limits: ParseLimits(raw)}
	}
	if raw := header.Get(headerRetryAfter); raw != "" {
		if delay, err := ParseRetryAfter(raw, now); err == nil {
			return directive{kind: directiveRetryAfter, delay: delay}
		}
	}
	if status == http.StatusTooManyRequests {
		return directive{kind: directiveTooMany}
	}
	return directive{kind: directiveNone}
}

// UpdateFromResponse merges the throttle information of one response
// into the limiter state and returns the categories it limited, if any.
func (l *Limiter) UpdateFromResponse(status int, header http.Header) []Category {
	now := l.now()
	d := classify(status, header, now)

	var limited []Category
	l.mu.Lock()
	switch d.kind {
	case directiveCategories:
		for category, retryAfter := range d.limits {
			l.limits[category] = now.Add(retryAfter)
			limited = append(limited, category)
		}
	case directiveRetryAfter:
		l.limits[CategoryAll] = now.Add(d.delay)
		limited = append(limited, CategoryAll)
	case directiveTooMany:
		l.limits[CategoryAll] = now.Add(DefaultRetryAfter)
		limited = append(limited, CategoryAll)
	case directiveNone:
		l.mu.Unlock()
		return nil
	}
	store := l.store
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.logger.Debug("rate limits updated",
		logging.Int("categories", len(snapshot)),
	)

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.Save(ctx, snapshot); err != nil {
			l.logger.Debug("failed to persist rate limits to shared store",
				logging.Err(err),
			)
		}
	}

	return limited
}

// Disabled reports whether submissions for the category are currently
// throttled, either directly or through the wildcard bucket.
func (l *Limiter) Disabled(category Category) bool {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	if now.Before(l.limits[CategoryAll]) {
		return true
	}
	return now.Before(l.limits[category])
}

// Deadline returns the reset instant for the category, taking the
// wildcard bucket into account. The zero time means not limited.
func (l *Limiter) Deadline(category Category) time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	deadline := l.limits[category]
	if all := l.limits[CategoryAll]; all.After(deadline) {
		deadline = all
	}
	return deadline
}

// Snapshot returns a copy of all non-expired limits.
func (l *Limiter) Snapshot() map[Category]time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Limiter) snapshotLocked() map[Category]time.Time {
	now := l.now()
	out := make(map[Category]time.Time, len(l.limits))
	for category, deadline := range l.limits {
		if now.Before(deadline) {
			out[category] = deadline
		}
	}
	return out
}

// SyncFromStore merges limits recorded by cooperating processes. Local
// deadlines win when they are later, so syncing never shortens a window.
func (l *Limiter) SyncFromStore(ctx context.Context) error {
	l.mu.RLock()
	store := l.store
	l.mu.RUnlock()
	if store == nil {
		return nil
	}

	shared, err := store.Load(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for category, deadline := range shared {
		if deadline.After(l.limits[category]) {
			l.limits[category] = deadline
		}
	}
	return nil
}

// ParseLimits parses the structured rate-limit header. Entries are
// comma-separated; each entry is colon-separated with the retry delay in
// seconds first and a semicolon-separated category list second. An empty
// category list throttles everything. Malformed entries and unknown
// categories are skipped.
func ParseLimits(raw string) map[Category]time.Duration {
	limits := make(map[Category]time.Duration)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		seconds, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil || seconds < 0 {
			continue
		}
		retryAfter := time.Duration(seconds * float64(time.Second))

		if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
			limits[CategoryAll] = retryAfter
			continue
		}
		for _, token := range strings.Split(fields[1], ";") {
			category, ok := parseCategory(token)
			if !ok {
				continue
			}
			limits[category] = retryAfter
		}
	}
	return limits
}

// ParseRetryAfter parses a Retry-After value, either a delay in seconds
// or an HTTP-date. Negative results clamp to zero.
func ParseRetryAfter(raw string, now time.Time) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}

	at, err := http.ParseTime(raw)
	if err != nil {
		return 0, err
	}
	delay := at.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return delay, nil
}
