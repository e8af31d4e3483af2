package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/retry"
)

// Recorder accepts events without blocking and writes them in the
// background. Business operations never wait on, or fail because of,
// the audit trail.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	queue   chan *Event
	done    chan struct{}
	once    sync.Once
	dropped func() // metrics hook, may be nil
	notify  func(*Event)
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithDroppedHook registers a callback invoked once per dropped event
// (used to bump a metrics counter).
func WithDroppedHook(fn func()) RecorderOption {
	return func(r *Recorder) { r.dropped = fn }
}

// WithBroadcast registers a callback invoked after each successful
// write, e.g. to push the event onto a realtime feed.
func WithBroadcast(fn func(*Event)) RecorderOption {
	return func(r *Recorder) { r.notify = fn }
}

// NewRecorder creates a Recorder with the given queue capacity and
// starts its background writer.
func NewRecorder(sink Sink, logger *slog.Logger, queueSize int, opts ...RecorderOption) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Recorder{
		sink:   sink,
		logger: logger,
		queue:  make(chan *Event, queueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Record validates and enqueues one event. Invalid events and queue
// overflow are dropped with a log line; the caller never sees an error.
func (r *Recorder) Record(e *Event) {
	if !KnownEvent(e.EventType) {
		r.drop("unknown event type", e)
		return
	}
	if e.ActorID == "" {
		r.drop("missing actor", e)
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case r.queue <- e:
	default:
		r.drop("queue full", e)
	}
}

// Close stops the writer after draining everything already enqueued.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.queue)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		// The writer is detached from the request that produced the
		// event, so it carries its own timeout. Brief sink outages are
		// retried; an event is dropped only once retries are exhausted.
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := retry.Do(ctx, 3, 100*time.Millisecond, func() error {
			return r.sink.Append(ctx, e)
		})
		cancel()
		if err != nil {
			r.drop("sink write failed", e)
			continue
		}
		if r.notify != nil {
			r.notify(e)
		}
	}
}

func (r *Recorder) drop(reason string, e *Event) {
	if r.dropped != nil {
		r.dropped()
	}
	r.logger.Warn("audit event dropped",
		"reason", reason,
		"event_type", string(e.EventType),
		"actor_id", e.ActorID,
		"target_id", e.TargetID,
	)
}

// Snapshot marshals v into the compact JSON form stored in
// OldData/NewData. Marshal failures degrade to "{}" rather than
// propagating.
func Snapshot(v interface{}) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
