package transport

import (
	"sync"
	"time"

	"telemetry-courier/internal/common/logging"
	"telemetry-courier/internal/envelope"
)

// workerState tracks the delivery worker lifecycle:
// Running → Draining → Stopped.
type workerState int

const (
	stateRunning workerState = iota
	stateDraining
	stateStopped
)

func (s workerState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// enqueueStatus is the internal outcome of an enqueue attempt.
type enqueueStatus int

const (
	enqueueAccepted enqueueStatus = iota
	enqueueRejectedFull
	enqueueRejectedStopped
)

// task is one unit of work for the worker loop: either an envelope to
// deliver or a flush barrier to acknowledge.
type task struct {
	env     *envelope.Envelope
	barrier chan struct{}
}

// worker owns the pending queue and the single background goroutine
// that drains it. Exactly one delivery is in flight at any instant,
// which is what guarantees FIFO order and strictly ordered rate-limiter
// updates.
//
// The queue is a bounded channel with a drop-newest policy: when it is
// full, enqueue rejects immediately rather than blocking the producer.
type worker struct {
	tasks    chan task
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.RWMutex
	state workerState

	deliver  func(*envelope.Envelope)
	logger   logging.Logger
	observer Observer
}

func newWorker(queueSize int, deliver func(*envelope.Envelope), logger logging.Logger, observer Observer) *worker {
	return &worker{
		tasks:    make(chan task, queueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		state:    stateRunning,
		deliver:  deliver,
		logger:   logger,
		observer: observer,
	}
}

// start launches the background delivery goroutine.
func (w *worker) start() {
	go w.loop()
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		select {
		case t := <-w.tasks:
			w.handle(t)
		case <-w.quit:
			return
		}
	}
}

func (w *worker) handle(t task) {
	if t.barrier != nil {
		// Report before releasing the barrier so a caller returning from
		// flush observes the refreshed gauge.
		w.observer.QueueDepth(len(w.tasks))
		close(t.barrier)
		return
	}
	w.deliver(t.env)
	w.observer.QueueDepth(len(w.tasks))
}

// enqueue hands an envelope to the worker. It never blocks: a full
// queue rejects the envelope, a draining or stopped worker drops it.
func (w *worker) enqueue(env *envelope.Envelope) enqueueStatus {
	w.mu.RLock()
	state := w.state
	w.mu.RUnlock()

	if state != stateRunning {
		w.logger.Debug("transport not running, dropping envelope",
			logging.String("state", state.String()),
		)
		w.observer.EnvelopeDropped(DropReasonStopped)
		return enqueueRejectedStopped
	}

	select {
	case w.tasks <- task{env: env}:
		w.observer.EnvelopeEnqueued()
		w.observer.QueueDepth(len(w.tasks))
		return enqueueAccepted
	default:
		w.logger.Debug("delivery queue full, dropping envelope")
		w.observer.EnvelopeDropped(DropReasonQueueFull)
		return enqueueRejectedFull
	}
}

// flush blocks until everything queued before the call has been
// attempted, or the timeout elapses. A timed-out flush leaves the
// worker fully usable; the in-flight delivery is never aborted.
func (w *worker) flush(timeout time.Duration) bool {
	w.mu.RLock()
	state := w.state
	w.mu.RUnlock()
	if state == stateStopped {
		return false
	}

	barrier := make(chan struct{})
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case w.tasks <- task{barrier: barrier}:
	case <-timer.C:
		return false
	case <-w.done:
		return false
	}

	select {
	case <-barrier:
		return true
	case <-timer.C:
		return false
	case <-w.done:
		return false
	}
}

// shutdown stops accepting new envelopes immediately, drains what is
// already queued up to the deadline, then transitions to Stopped
// regardless of the flush outcome. Envelopes still queued after a
// timed-out drain are abandoned.
func (w *worker) shutdown(timeout time.Duration) bool {
	w.mu.Lock()
	if w.state == stateStopped {
		w.mu.Unlock()
		return true
	}
	w.state = stateDraining
	w.mu.Unlock()

	flushed := w.flush(timeout)

	w.mu.Lock()
	w.state = stateStopped
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.quit) })

	if abandoned := len(w.tasks); abandoned > 0 {
		w.logger.Warn("shutdown abandoned queued envelopes",
			logging.Int("count", abandoned),
		)
	}
	return flushed
}

// currentState returns the worker state for tests and diagnostics.
func (w *worker) currentState() workerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}
