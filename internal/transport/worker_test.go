package transport

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-courier/internal/common/logging"
	"telemetry-courier/internal/envelope"
)

// recordingObserver captures observer callbacks for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	enqueued  int
	drops     map[string]int
	delivered []int
	limited   []string
	depths    []int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{drops: make(map[string]int)}
}

func (o *recordingObserver) EnvelopeEnqueued() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enqueued++
}

func (o *recordingObserver) EnvelopeDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops[reason]++
}

func (o *recordingObserver) EnvelopeDelivered(statusCode int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, statusCode)
}

func (o *recordingObserver) RateLimited(category string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.limited = append(o.limited, category)
}

func (o *recordingObserver) QueueDepth(depth int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.depths = append(o.depths, depth)
}

func (o *recordingObserver) depthReports() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.depths...)
}

func (o *recordingObserver) dropCount(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drops[reason]
}

func (o *recordingObserver) enqueuedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enqueued
}

func (o *recordingObserver) deliveredStatuses() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.delivered...)
}

func (o *recordingObserver) limitedCategories() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.limited...)
}

func TestWorker_DeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	deliver := func(env *envelope.Envelope) {
		mu.Lock()
		seen = append(seen, env.Header.EventID)
		mu.Unlock()
	}

	w := newWorker(32, deliver, logging.NewDefaultLogger(), NopObserver{})
	w.start()
	defer w.shutdown(time.Second)

	want := []string{"a", "b", "c", "d", "e"}
	for _, id := range want {
		require.Equal(t, enqueueAccepted, w.enqueue(envelope.New(id)))
	}
	require.True(t, w.flush(time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen)
}

func TestWorker_OneDeliveryInFlight(t *testing.T) {
	var active, overlapped int32
	deliver := func(*envelope.Envelope) {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
	}

	w := newWorker(64, deliver, logging.NewDefaultLogger(), NopObserver{})
	w.start()
	defer w.shutdown(time.Second)

	for i := 0; i < 20; i++ {
		w.enqueue(envelope.New("x"))
	}
	require.True(t, w.flush(5*time.Second))
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlapped))
}

func TestWorker_FlushTimesOutAndRecovers(t *testing.T) {
	gate := make(chan struct{})
	deliver := func(*envelope.Envelope) { <-gate }

	w := newWorker(8, deliver, logging.NewDefaultLogger(), NopObserver{})
	w.start()
	defer w.shutdown(time.Second)

	w.enqueue(envelope.New("blocked"))

	// The in-flight delivery is stuck, so the barrier cannot be reached.
	assert.False(t, w.flush(50*time.Millisecond))

	close(gate)
	assert.True(t, w.flush(time.Second))
	assert.Equal(t, stateRunning, w.currentState())
}

func TestWorker_DropsNewestWhenFull(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	deliver := func(*envelope.Envelope) {
		started <- struct{}{}
		<-gate
	}

	obs := newRecordingObserver()
	w := newWorker(1, deliver, logging.NewDefaultLogger(), obs)
	w.start()
	defer w.shutdown(time.Second)

	require.Equal(t, enqueueAccepted, w.enqueue(envelope.New("in-flight")))
	<-started

	require.Equal(t, enqueueAccepted, w.enqueue(envelope.New("queued")))
	assert.Equal(t, enqueueRejectedFull, w.enqueue(envelope.New("rejected")))
	assert.Equal(t, 1, obs.dropCount(DropReasonQueueFull))

	close(gate)
	require.True(t, w.flush(time.Second))
	assert.Equal(t, 2, obs.enqueuedCount())
}

func TestWorker_FlushRefreshesQueueDepth(t *testing.T) {
	obs := newRecordingObserver()
	w := newWorker(8, func(*envelope.Envelope) {}, logging.NewDefaultLogger(), obs)
	w.start()
	defer w.shutdown(time.Second)

	w.enqueue(envelope.New("x"))
	require.True(t, w.flush(time.Second))

	// The barrier itself reports depth, so an idle flush still lands the
	// gauge at zero.
	reports := obs.depthReports()
	require.NotEmpty(t, reports)
	assert.Equal(t, 0, reports[len(reports)-1])
}

func TestWorker_ShutdownDrainsQueue(t *testing.T) {
	var delivered int32
	deliver := func(*envelope.Envelope) { atomic.AddInt32(&delivered, 1) }

	w := newWorker(16, deliver, logging.NewDefaultLogger(), NopObserver{})
	w.start()

	for i := 0; i < 5; i++ {
		w.enqueue(envelope.New("x"))
	}
	assert.True(t, w.shutdown(time.Second))
	assert.Equal(t, int32(5), atomic.LoadInt32(&delivered))
	assert.Equal(t, stateStopped, w.currentState())
}

func TestWorker_EnqueueAfterShutdownIsDropped(t *testing.T) {
	obs := newRecordingObserver()
	w := newWorker(16, func(*envelope.Envelope) {}, logging.NewDefaultLogger(), obs)
	w.start()
	require.True(t, w.shutdown(time.Second))

	assert.Equal(t, enqueueRejectedStopped, w.enqueue(envelope.New("late")))
	assert.Equal(t, 1, obs.dropCount(DropReasonStopped))

	// Flush on a stopped worker reports failure without blocking.
	assert.False(t, w.flush(time.Second))
}

func TestWorker_ShutdownIsIdempotent(t *testing.T) {
	w := newWorker(16, func(*envelope.Envelope) {}, logging.NewDefaultLogger(), NopObserver{})
	w.start()

	assert.True(t, w.shutdown(time.Second))
	assert.True(t, w.shutdown(time.Second))
}

func TestWorker_ShutdownTimeoutAbandonsQueue(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	deliver := func(*envelope.Envelope) { <-gate }

	w := newWorker(8, deliver, logging.NewDefaultLogger(), NopObserver{})
	w.start()

	for i := 0; i < 3; i++ {
		w.enqueue(envelope.New("stuck"))
	}
	assert.False(t, w.shutdown(50*time.Millisecond))
	assert.Equal(t, stateStopped, w.currentState())
}
