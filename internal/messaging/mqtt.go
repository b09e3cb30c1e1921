// Package messaging wraps the MQTT session against the broker. It owns
// reconnection (autopaho reconnects, and the client re-subscribes every
// registered topic on each connection), dispatches inbound publishes to
// per-topic handlers, and
// asserts that no shared mutex is held across any bus call.
package messaging

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"haul-truck-service/internal/guard"
	"haul-truck-service/internal/logger"
)

// Handler receives one inbound publish. It runs on the client's receive
// goroutine and must not block on the bus.
type Handler func(topic string, payload []byte)

type Config struct {
	Host     string
	Port     int
	ClientID string

	// KeepAlive in seconds; zero means 30.
	KeepAlive uint16
}

type Client struct {
	cfg Config
	log *logger.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	cm       *autopaho.ConnectionManager
	cancel   context.CancelFunc
}

func New(cfg Config, l *logger.Logger) *Client {
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}
	return &Client{
		cfg:      cfg,
		log:      l.WithTag("mqtt"),
		handlers: make(map[string]Handler),
	}
}

// Subscribe registers a handler for an exact topic. Registrations made
// before Connect are subscribed on every (re)connection; later ones are
// subscribed immediately as well.
func (c *Client) Subscribe(topic string, h Handler) {
	c.assertNoLocksHeld("subscribe")

	c.mu.Lock()
	c.handlers[topic] = h
	cm := c.cm
	c.mu.Unlock()

	if cm != nil {
		if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
		}); err != nil {
			c.log.Warnf("Late subscribe to %s failed: %v", topic, err)
		}
	}
}

// Connect establishes the session and blocks until the first connection is
// up or ctx expires. ctx only bounds the wait: the session itself lives
// until Close. Reconnection afterwards is automatic.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(fmt.Sprintf("mqtt://%s:%d", c.cfg.Host, c.cfg.Port))
	if err != nil {
		return fmt.Errorf("broker url: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.log.Infof("Connected to broker %s", u.Host)
			c.subscribeAll(cm)
		},
		OnConnectError: func(err error) {
			c.log.Warnf("Connection attempt failed: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.dispatch(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				c.log.Errorf("Client error: %v", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.log.Warnf("Server disconnect, reason code %d", d.ReasonCode)
			},
		},
	}

	cm, err := autopaho.NewConnection(sessionCtx, cliCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("starting mqtt session: %w", err)
	}

	if err := cm.AwaitConnection(ctx); err != nil {
		cancel()
		return fmt.Errorf("broker %s not reachable: %w", u.Host, err)
	}

	c.mu.Lock()
	c.cm = cm
	c.cancel = cancel
	c.mu.Unlock()
	return nil
}

func (c *Client) subscribeAll(cm *autopaho.ConnectionManager) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		topics = append(topics, t)
	}
	c.mu.Unlock()

	if len(topics) == 0 {
		return
	}
	subs := make([]paho.SubscribeOptions, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, paho.SubscribeOptions{Topic: t, QoS: 1})
	}
	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: subs}); err != nil {
		c.log.Errorf("Subscribing %d topics failed: %v", len(topics), err)
		return
	}
	c.log.Infof("Subscribed %d topics", len(topics))
}

func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()

	if h == nil {
		c.log.Debugf("No handler for topic %s, dropping frame", topic)
		return
	}
	h(topic, payload)
}

// Publish sends payload to topic. QoS 1 publishes block until the broker
// acknowledges or ctx expires.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	c.assertNoLocksHeld("publish")

	c.mu.Lock()
	cm := c.cm
	c.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("publish to %s before connect", topic)
	}

	_, err := cm.Publish(ctx, &paho.Publish{
		QoS:     qos,
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects cleanly and ends the session.
func (c *Client) Close() error {
	c.mu.Lock()
	cm := c.cm
	cancel := c.cancel
	c.cm = nil
	c.cancel = nil
	c.mu.Unlock()
	if cm == nil {
		return nil
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelWait()
	err := cm.Disconnect(ctx)
	cancel()
	return err
}

// assertNoLocksHeld aborts if the calling goroutine owns a shared mutex
// counted by package guard (the blackboard or the notifier).
// Holding the blackboard or a queue lock across bus I/O is a programming
// error, not a recoverable condition.
func (c *Client) assertNoLocksHeld(op string) {
	if n := guard.HeldByCaller(); n > 0 {
		c.log.Fatalf("%s called with %d shared mutex(es) held", op, n)
	}
}
