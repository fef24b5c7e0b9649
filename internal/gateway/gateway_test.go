package gateway

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/dispatcher"
	"github.com/ballbot/robot-ai/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (recv, send *Gateway) {
	t.Helper()
	recv, err := New(config.GatewayConfig{ListenAddr: "127.0.0.1:0"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = recv.Close() })

	send, err = New(config.GatewayConfig{
		ListenAddr: "127.0.0.1:0",
		Peers:      []string{recv.Addr().String()},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = send.Close() })
	return recv, send
}

func listen(t *testing.T, g *Gateway) (<-chan dispatcher.Event, context.CancelFunc) {
	t.Helper()
	events := make(chan dispatcher.Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, g.Listen(ctx, func(e dispatcher.Event) { events <- e }))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return events, cancel
}

func receive(t *testing.T, events <-chan dispatcher.Event) dispatcher.Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no datagram received")
		return dispatcher.Event{}
	}
}

func TestPublishListen_Loopback(t *testing.T) {
	recv, send := newPair(t)
	events, _ := listen(t, recv)

	require.NoError(t, send.Publish(messages.TopicVision, messages.Vision{
		Balls: []messages.VisionBall{{CX: 10, CY: 20, W: 5, H: 5}},
	}))

	e := receive(t, events)
	assert.Equal(t, messages.TopicVision, e.Topic)
	v, err := messages.Decode[messages.Vision](e.Payload)
	require.NoError(t, err)
	require.Len(t, v.Balls, 1)
	assert.Equal(t, 10.0, v.Balls[0].CX)
}

func TestListen_DropsMalformedAndUnsubscribed(t *testing.T) {
	recv, send := newPair(t)
	recv.Subscribe(messages.TopicAiCommand)
	events, _ := listen(t, recv)

	raw, err := net.Dial("udp", recv.Addr().String())
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Write([]byte("not json"))
	require.NoError(t, err)

	require.NoError(t, send.Publish(messages.TopicVision, messages.Vision{}))
	require.NoError(t, send.Publish(messages.TopicAiCommand, messages.AiCommand{
		Command: messages.CommandSetManualControl,
		State:   json.RawMessage("true"),
	}))

	e := receive(t, events)
	assert.Equal(t, messages.TopicAiCommand, e.Topic)
}

func TestListen_DefaultsToInboundTopics(t *testing.T) {
	recv, send := newPair(t)
	events, _ := listen(t, recv)

	require.NoError(t, send.Publish(messages.TopicAiState, map[string]int{"tick": 1}))
	require.NoError(t, send.Publish(messages.TopicMainboardFeedback, messages.MainboardFeedback{Ball1: true}))

	e := receive(t, events)
	assert.Equal(t, messages.TopicMainboardFeedback, e.Topic)
}

func TestListen_ReturnsOnCancel(t *testing.T) {
	g, err := New(config.GatewayConfig{ListenAddr: "127.0.0.1:0"}, nil)
	require.NoError(t, err)
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Listen(ctx, func(dispatcher.Event) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestNew_RejectsBadPeer(t *testing.T) {
	_, err := New(config.GatewayConfig{ListenAddr: "127.0.0.1:0", Peers: []string{"no-port"}}, nil)
	assert.Error(t, err)
}

func TestPublish_WithoutPeersIsNoop(t *testing.T) {
	g, err := New(config.GatewayConfig{ListenAddr: "127.0.0.1:0"}, nil)
	require.NoError(t, err)
	defer g.Close()

	assert.NoError(t, g.Publish(messages.TopicAiEvent, messages.AiEvent{Event: messages.EventAiStarted}))
}
