package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"
	"livesession/pkg/circuitbreaker"
	"livesession/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is one applied session event as mirrored to Redis.
type Event struct {
	ID         string           `json:"id"`
	Type       domain.EventKind `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	StreamID   domain.StreamID  `json:"stream_id,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// Publisher is the part of a redis client the bus needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// EventBus mirrors session events onto Redis pub/sub. Emit never blocks the
// session loop: events are queued and published by a worker, and dropped
// when the queue is full or while the breaker is open after repeated
// publish failures.
type EventBus struct {
	client     Publisher
	instanceID string
	prefix     string
	timeout    time.Duration
	logger     *zap.SugaredLogger
	breaker    *circuitbreaker.CircuitBreaker

	queue   chan *Event
	dropped atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

var _ ports.EventSink = (*EventBus)(nil)

func NewEventBus(
	client Publisher,
	instanceID string,
	prefix string,
	queueSize int,
	logger *zap.SugaredLogger,
) *EventBus {
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("redis mirror circuit changed", "from", from.String(), "to", to.String())
	})

	return &EventBus{
		client:     client,
		instanceID: instanceID,
		prefix:     prefix,
		timeout:    3 * time.Second,
		logger:     logger,
		breaker:    breaker,
		queue:      make(chan *Event, queueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Channel is the pub/sub channel for one stream.
func (eb *EventBus) Channel(streamID domain.StreamID) string {
	if streamID == "" {
		return eb.prefix + ":events"
	}
	return fmt.Sprintf("%s:events:%s", eb.prefix, streamID)
}

// Emit queues ev for publishing.
func (eb *EventBus) Emit(streamID domain.StreamID, ev domain.Event) {
	event := &Event{
		ID:         utils.GenerateID("evt"),
		Type:       ev.Kind(),
		InstanceID: eb.instanceID,
		Timestamp:  time.Now(),
		StreamID:   streamID,
		Payload:    domain.Payload(ev),
	}

	select {
	case eb.queue <- event:
	default:
		if n := eb.dropped.Add(1); n == 1 || n%100 == 0 {
			eb.logger.Warnw("event mirror queue full, dropping events", "dropped_total", n)
		}
	}
}

// Dropped returns how many events were discarded on a full queue.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

// Start launches the publishing worker.
func (eb *EventBus) Start(ctx context.Context) {
	eb.startOnce.Do(func() {
		go eb.run(ctx)
	})
}

func (eb *EventBus) run(ctx context.Context) {
	defer close(eb.done)
	for {
		select {
		case event := <-eb.queue:
			eb.publish(ctx, event)
		case <-eb.stop:
			eb.flush(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

// flush publishes whatever is still queued.
func (eb *EventBus) flush(ctx context.Context) {
	for {
		select {
		case event := <-eb.queue:
			eb.publish(ctx, event)
		default:
			return
		}
	}
}

// Publish publishes one event synchronously.
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, eb.timeout)
	defer cancel()

	if err := eb.client.Publish(ctx, eb.Channel(event.StreamID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (eb *EventBus) publish(ctx context.Context, event *Event) {
	err := eb.breaker.Execute(func() error {
		return eb.Publish(ctx, event)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		eb.dropped.Add(1)
		return
	}
	if err != nil {
		eb.logger.Warnw("failed to mirror session event",
			"type", event.Type,
			"stream_id", event.StreamID,
			"error", err,
		)
		return
	}
	eb.logger.Debugw("mirrored session event",
		"type", event.Type,
		"stream_id", event.StreamID,
	)
}

// Close stops the worker after publishing queued events.
func (eb *EventBus) Close() error {
	eb.stopOnce.Do(func() { close(eb.stop) })
	// never started: nothing to wait for
	eb.startOnce.Do(func() { close(eb.done) })

	select {
	case <-eb.done:
		return nil
	case <-time.After(eb.timeout):
		return fmt.Errorf("event bus did not stop within %s", eb.timeout)
	}
}
