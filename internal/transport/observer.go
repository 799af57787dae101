package transport

import "time"

// Drop reasons reported to the Observer.
const (
	DropReasonQueueFull = "queue_full"
	DropReasonThrottled = "throttled"
	DropReasonStopped   = "stopped"
	DropReasonNetwork   = "network"
	DropReasonSerialize = "serialize"
)

// Observer is the injected observability sink for the transport. All
// delivery outcomes are side effects; producers never see them, so the
// observer is the only window into what happened to an envelope after
// SendEnvelope returned.
type Observer interface {
	// EnvelopeEnqueued is called when an envelope is accepted into the queue.
	EnvelopeEnqueued()
	// EnvelopeDropped is called when an envelope is lost, with the reason.
	EnvelopeDropped(reason string)
	// EnvelopeDelivered is called after a response was received.
	EnvelopeDelivered(statusCode int, duration time.Duration)
	// RateLimited is called for each category newly throttled by a response.
	RateLimited(category string)
	// QueueDepth reports the queue length after enqueue and dequeue.
	QueueDepth(depth int)
}

// NopObserver discards all observations. It is the default sink.
type NopObserver struct{}

func (NopObserver) EnvelopeEnqueued()                    {}
func (NopObserver) EnvelopeDropped(string)               {}
func (NopObserver) EnvelopeDelivered(int, time.Duration) {}
func (NopObserver) RateLimited(string)                   {}
func (NopObserver) QueueDepth(int)                       {}

// Ensure NopObserver implements Observer
var _ Observer = NopObserver{}
