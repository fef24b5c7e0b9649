package dispatcher

import "go.opentelemetry.io/otel/attribute"

type queue struct {
	topic    string
	attr     attribute.KeyValue
	events   chan Event
	blocking bool
}

func newQueue(topic string, size int, blocking bool) *queue {
	return &queue{
		topic:    topic,
		attr:     attribute.String("topic", topic),
		events:   make(chan Event, size),
		blocking: blocking,
	}
}

// push reports false when the queue is full and not blocking.
func (q *queue) push(e Event) bool {
	if q.blocking {
		q.events <- e
		return true
	}
	select {
	case q.events <- e:
		return true
	default:
		return false
	}
}

// drain calls fn for every event until the channel is closed and empty.
func (q *queue) drain(fn func(Event)) {
	for e := range q.events {
		fn(e)
	}
}
