// Package dispatcher routes inbound datagrams to per-topic handlers. A topic
// is handled inline unless it was registered with Buffered, in which case a
// dedicated goroutine drains its queue.
package dispatcher

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Queued is the result returned for events accepted by a buffered topic.
const Queued = "queued"

var (
	ErrNoHandler = errors.New("no handler for topic")
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned by buffered topics after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Event is one inbound message addressed to a topic.
type Event struct {
	Topic     string
	Payload   []byte
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is the structured logger the dispatcher reports through.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type route struct {
	handle HandlerFunc
	queue  *queue // nil for inline topics
}

// Dispatcher maps topics to handlers. Register everything before the first
// Dispatch; the route table is not guarded.
type Dispatcher struct {
	routes map[string]route
	logger Logger
	inst   *instruments

	mu     sync.RWMutex
	queues map[string]*queue
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		routes: make(map[string]route),
		queues: make(map[string]*queue),
		logger: logger,
	}
	inst, err := newInstruments(d.queueDepths)
	if err != nil {
		return nil, err
	}
	d.inst = inst
	return d, nil
}

// Register installs h for topic, replacing any earlier handler.
func (d *Dispatcher) Register(topic string, h HandlerFunc, opts ...Option) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	r := route{handle: h}
	if s.logged {
		r.handle = d.logged(topic, r.handle)
	}
	if s.bufferSize > 0 {
		r.queue = d.startQueue(topic, s.bufferSize, s.blocking, r.handle)
	}
	d.routes[topic] = r
}

// Dispatch runs or enqueues e on its topic's handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	r, ok := d.routes[e.Topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, e.Topic)
	}
	if r.queue == nil {
		return r.handle(e)
	}
	if err := d.enqueue(r.queue, e); err != nil {
		return nil, err
	}
	return Queued, nil
}

// HasHandler reports whether topic has a handler.
func (d *Dispatcher) HasHandler(topic string) bool {
	_, ok := d.routes[topic]
	return ok
}

// Topics returns the registered topics in sorted order.
func (d *Dispatcher) Topics() []string {
	out := make([]string, 0, len(d.routes))
	for topic := range d.routes {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Close stops accepting buffered events and waits until every queued event
// has been handled. Inline topics keep working.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q.events)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) startQueue(topic string, size int, blocking bool, h HandlerFunc) *queue {
	q := newQueue(topic, size, blocking)

	d.mu.Lock()
	d.queues[topic] = q
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		q.drain(func(e Event) {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "topic", topic, "error", err)
			}
			d.inst.processed(q.attr)
		})
	}()
	return q
}

// enqueue holds the read lock across the send so Close cannot close the
// channel underneath a blocked sender.
func (d *Dispatcher) enqueue(q *queue, e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if q.push(e) {
		return nil
	}
	d.inst.dropped(q.attr)
	return fmt.Errorf("%w: %s", ErrQueueFull, q.topic)
}

func (d *Dispatcher) queueDepths(observe func(topic string, depth int)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for topic, q := range d.queues {
		observe(topic, len(q.events))
	}
}

func (d *Dispatcher) logged(topic string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "topic", topic, "bytes", len(e.Payload))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "topic", topic, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "topic", topic, "duration", time.Since(start))
		return result, nil
	}
}
