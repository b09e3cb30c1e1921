package messaging

import (
	"context"
	"fmt"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haul-truck-service/internal/logger"
)

func startBroker(t *testing.T, port int) {
	t.Helper()

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: fmt.Sprintf("localhost:%d", port),
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())

	t.Cleanup(func() { server.Close() })
}

func newTestClient(t *testing.T, port int, clientID string) *Client {
	t.Helper()
	l := logger.NewLogger(nil, logger.LogLevelError)
	c := New(Config{Host: "localhost", Port: port, ClientID: clientID}, l)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPublishBeforeConnectFails(t *testing.T) {
	c := newTestClient(t, 19001, "early")
	err := c.Publish(context.Background(), "atr/1/o_aceleracao", 1, []byte("0"))
	assert.Error(t, err)
}

func TestSubscribePublishRoundtrip(t *testing.T) {
	const port = 19002
	startBroker(t, port)

	received := make(chan string, 1)

	sub := newTestClient(t, port, "roundtrip-sub")
	sub.Subscribe("atr/1/sensor/i_temperatura", func(topic string, payload []byte) {
		assert.Equal(t, "atr/1/sensor/i_temperatura", topic)
		received <- string(payload)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sub.Connect(ctx))

	pub := newTestClient(t, port, "roundtrip-pub")
	require.NoError(t, pub.Connect(ctx))

	require.NoError(t, pub.Publish(ctx, "atr/1/sensor/i_temperatura", 1, []byte("87")))

	select {
	case got := <-received:
		assert.Equal(t, "87", got)
	case <-time.After(5 * time.Second):
		t.Fatal("message never delivered")
	}
}

func TestLateSubscribeDelivers(t *testing.T) {
	const port = 19003
	startBroker(t, port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := newTestClient(t, port, "late-sub")
	require.NoError(t, c.Connect(ctx))

	received := make(chan string, 1)
	c.Subscribe("atr/1/operador", func(_ string, payload []byte) {
		received <- string(payload)
	})

	pub := newTestClient(t, port, "late-pub")
	require.NoError(t, pub.Connect(ctx))
	require.NoError(t, pub.Publish(ctx, "atr/1/operador", 1, []byte(`{"manual":true}`)))

	select {
	case got := <-received:
		assert.Equal(t, `{"manual":true}`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("message never delivered")
	}
}

func TestUnhandledTopicIsDropped(t *testing.T) {
	const port = 19004
	startBroker(t, port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := newTestClient(t, port, "dropper")
	require.NoError(t, c.Connect(ctx))

	// Dispatching a frame with no registered handler must not panic.
	c.dispatch("atr/9/unknown", []byte("x"))
}

func TestConnectTimesOutWithoutBroker(t *testing.T) {
	c := newTestClient(t, 19005, "nobody-home")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := c.Connect(ctx)
	assert.Error(t, err)
}
