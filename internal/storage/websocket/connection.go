package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/ballbot/robot-ai/pkg/messages"
	ws "github.com/gorilla/websocket"
)

const (
	outboxSize   = 1024
	ackBuffer    = 16
	maxReconnect = 10
	writeWait    = 5 * time.Second
	ackTimeout   = 5 * time.Second
)

var errStopped = errors.New("collector connection closed")

// connection keeps one collector socket alive. After dial a supervisor
// goroutine owns the socket: it writes queued frames, redials with backoff
// when the socket breaks and replays the session hello on the new socket.
type connection struct {
	target string
	outbox chan []byte
	acks   chan messages.AckMessage
	done   chan struct{}

	mu      sync.Mutex
	current *ws.Conn
	hello   []byte
	closing bool

	minBackoff time.Duration
	maxBackoff time.Duration

	log *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		outbox:     make(chan []byte, outboxSize),
		acks:       make(chan messages.AckMessage, ackBuffer),
		done:       make(chan struct{}),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		log:        logger,
	}
}

// collectorURL adds the shared secret to the query string.
func collectorURL(raw, secret string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// dial connects once and starts the supervisor. The first dial is not retried.
func (c *connection) dial(rawURL, secret string) error {
	target, err := collectorURL(rawURL, secret)
	if err != nil {
		return err
	}
	c.target = target

	sock, err := c.open()
	if err != nil {
		return err
	}
	go c.supervise(sock)
	return nil
}

func (c *connection) open() (*ws.Conn, error) {
	sock, _, err := ws.DefaultDialer.Dial(c.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return sock, nil
}

func (c *connection) supervise(sock *ws.Conn) {
	for {
		err := c.serve(sock)
		select {
		case <-c.done:
			return
		default:
		}
		if errors.Is(err, errStopped) {
			return
		}
		c.log.Warn("Collector connection lost", "error", err)
		_ = sock.Close()

		if sock = c.redial(); sock == nil {
			return
		}
	}
}

// serve writes frames from the outbox to sock until the socket fails or the
// connection is closed.
func (c *connection) serve(sock *ws.Conn) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = sock.Close()
		return errStopped
	}
	c.current = sock
	c.mu.Unlock()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readAcks(sock) }()

	for {
		select {
		case <-c.done:
			return errStopped
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case frame := <-c.outbox:
			// A frame that fails to write is lost; the rest wait for the next socket.
			if err := writeFrame(sock, frame); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func writeFrame(sock *ws.Conn, frame []byte) error {
	if err := sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return sock.WriteMessage(ws.TextMessage, frame)
}

// readAcks forwards collector acks until the socket fails.
func (c *connection) readAcks(sock *ws.Conn) error {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			return err
		}
		var ack messages.AckMessage
		if json.Unmarshal(raw, &ack) != nil || ack.Type != "ack" {
			c.log.Debug("Ignoring collector message", "raw", string(raw))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.log.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// redial returns a fresh socket with the hello already replayed, or nil when
// the connection was closed or every attempt failed.
func (c *connection) redial() *ws.Conn {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	wait := c.minBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return nil
		case <-time.After(wait):
		}
		wait = min(wait*2, c.maxBackoff)

		sock, err := c.open()
		if err != nil {
			c.log.Warn("Collector redial failed", "attempt", attempt, "error", err)
			continue
		}
		c.mu.Lock()
		hello := c.hello
		c.mu.Unlock()
		if hello != nil {
			if err := writeFrame(sock, hello); err != nil {
				c.log.Warn("Session replay failed", "attempt", attempt, "error", err)
				_ = sock.Close()
				continue
			}
		}
		c.log.Info("Collector reconnected", "attempt", attempt)
		return sock
	}
	c.log.Error("Giving up on collector", "attempts", maxReconnect)
	return nil
}

// send queues a frame without blocking; it is dropped when the outbox is full.
func (c *connection) send(frame []byte) {
	select {
	case c.outbox <- frame:
	default:
		c.log.Warn("Collector outbox full, dropping frame")
	}
}

// sendAndWait queues a frame and waits for the collector to ack topic.
func (c *connection) sendAndWait(frame []byte, topic string, timeout time.Duration) error {
	c.send(frame)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.acks:
			if ack.For == topic {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", topic)
		case <-c.done:
			return fmt.Errorf("%w while waiting for ack of %q", errStopped, topic)
		}
	}
}

func (c *connection) setHello(frame []byte) {
	c.mu.Lock()
	c.hello = frame
	c.mu.Unlock()
}

func (c *connection) close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	close(c.done)
	sock := c.current
	c.current = nil
	c.mu.Unlock()

	if sock == nil {
		return nil
	}
	_ = sock.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return sock.Close()
}
