package notify

import (
	"context"
	"sync"
	"time"

	"github.com/user/topomon/internal/util"
)

// Sink delivers one event to a destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(e Event)
}

// Dispatcher queues events and delivers them from a single background
// worker. Publish never blocks: a full queue drops the event. Failed
// deliveries are logged and dropped.
type Dispatcher struct {
	sinks []Sink
	queue chan Event

	mu      sync.Mutex
	closed  bool
	dropped int
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewDispatcher creates a dispatcher with the given queue size.
func NewDispatcher(queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{sinks: sinks, queue: make(chan Event, queueSize)}
}

// Sinks returns the configured destination count.
func (d *Dispatcher) Sinks() int {
	return len(d.sinks)
}

// drainTimeout bounds how long Close waits for queued events.
const drainTimeout = 15 * time.Second

// Start launches the delivery worker. Cancelling ctx does not stop the
// worker; queued events are delivered until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range d.queue {
			d.deliver(ctx, e)
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		if err := s.Send(ctx, e); err != nil {
			util.Warn("Notification to %s failed: %v", s.Name(), err)
		}
	}
}

// Publish enqueues e. It is a no-op without sinks or after Close.
func (d *Dispatcher) Publish(e Event) {
	if d == nil || len(d.sinks) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- e:
	default:
		d.dropped++
		util.Warn("Notification queue full, dropping %s event", e.Source)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops accepting events, drains the queue and waits for the worker.
// Deliveries still pending after drainTimeout are abandoned.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		util.Warn("Notification drain timed out, abandoning %d queued events", len(d.queue))
		d.cancel()
		<-done
	}
	if d.cancel != nil {
		d.cancel()
	}
}

// FromConfig builds a dispatcher with every destination cfg enables.
func FromConfig(cfg util.NotifyConfig) *Dispatcher {
	var sinks []Sink
	if cfg.ElasticsearchURL != "" {
		sinks = append(sinks, NewElasticsearchSink(cfg.ElasticsearchURL, cfg.ElasticsearchPrefix))
	}
	if cfg.GraylogAddr != "" {
		sinks = append(sinks, NewGraylogSink(cfg.GraylogAddr))
	}
	if cfg.DiscordWebhook != "" {
		sinks = append(sinks, NewDiscordSink(cfg.DiscordWebhook))
	}
	return NewDispatcher(cfg.QueueSize, sinks...)
}
