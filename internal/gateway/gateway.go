// Package gateway is the UDP pub/sub transport between the AI and the rest of
// the robot. Every datagram carries one JSON envelope. Delivery is best-effort:
// there are no acknowledgements, ordering guarantees or retries.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/dispatcher"
	"github.com/ballbot/robot-ai/pkg/messages"
)

const defaultReadBuffer = 64 * 1024

// Handler receives one inbound event per accepted datagram.
type Handler func(dispatcher.Event)

// Gateway owns one UDP socket used both to receive and to publish.
type Gateway struct {
	conn  *net.UDPConn
	peers []*net.UDPAddr
	log   *slog.Logger
	buf   int

	mu     sync.RWMutex
	topics map[string]bool
}

// New binds the listen address and resolves the publish peers.
func New(cfg config.GatewayConfig, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	laddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving listen address %q: %w", cfg.ListenAddr, err)
	}
	peers := make([]*net.UDPAddr, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		addr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			return nil, fmt.Errorf("resolving peer %q: %w", p, err)
		}
		peers = append(peers, addr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}

	buf := cfg.ReadBuffer
	if buf <= 0 {
		buf = defaultReadBuffer
	}
	return &Gateway{
		conn:   conn,
		peers:  peers,
		log:    logger,
		buf:    buf,
		topics: make(map[string]bool),
	}, nil
}

// Addr returns the bound local address.
func (g *Gateway) Addr() net.Addr {
	return g.conn.LocalAddr()
}

// Subscribe adds topics to the set Listen delivers. With no subscriptions
// every inbound topic is delivered.
func (g *Gateway) Subscribe(topics ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range topics {
		g.topics[t] = true
	}
}

func (g *Gateway) subscribed(topic string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.topics) == 0 {
		return messages.IsInbound(topic)
	}
	return g.topics[topic]
}

// Publish encodes payload in an envelope and sends it to every peer. A peer
// that cannot be reached is logged and skipped.
func (g *Gateway) Publish(topic string, payload any) error {
	data, err := messages.Encode(topic, payload)
	if err != nil {
		return err
	}
	var errs []error
	for _, peer := range g.peers {
		if _, err := g.conn.WriteToUDP(data, peer); err != nil {
			errs = append(errs, fmt.Errorf("sending %s to %s: %w", topic, peer, err))
		}
	}
	return errors.Join(errs...)
}

// Listen reads datagrams until ctx is cancelled or the socket is closed.
// Malformed datagrams and unsubscribed topics are dropped.
func (g *Gateway) Listen(ctx context.Context, handle Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = g.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, g.buf)
	for {
		n, from, err := g.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading datagram: %w", err)
		}

		env, err := messages.ParseEnvelope(buf[:n])
		if err != nil {
			g.log.Warn("Dropping datagram", "from", from.String(), "error", err)
			continue
		}
		if !g.subscribed(env.Topic) {
			continue
		}
		handle(dispatcher.Event{
			Topic:     env.Topic,
			Payload:   env.Payload,
			Timestamp: time.Now(),
		})
	}
}

// Close releases the socket, ending Listen.
func (g *Gateway) Close() error {
	return g.conn.Close()
}
