package core

import (
	"context"
	"sync"

	"haul-truck-service/internal/guard"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/messaging"
	"haul-truck-service/internal/types"
)

// Mock bus: records publishes, lets tests inject inbound frames, and counts
// publishes made while the caller owns a shared mutex.
type mockBus struct {
	mu              sync.Mutex
	handlers        map[string]messaging.Handler
	published       map[string][]string
	guardViolations int
}

func newMockBus() *mockBus {
	return &mockBus{
		handlers:  make(map[string]messaging.Handler),
		published: make(map[string][]string),
	}
}

func (b *mockBus) Subscribe(topic string, h messaging.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
}

func (b *mockBus) Publish(_ context.Context, topic string, _ byte, payload []byte) error {
	if guard.HeldByCaller() > 0 {
		b.mu.Lock()
		b.guardViolations++
		b.mu.Unlock()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[topic] = append(b.published[topic], string(payload))
	return nil
}

// Inject delivers an inbound frame to the registered handler, like the
// broker would.
func (b *mockBus) Inject(topic, payload string) {
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	if h != nil {
		h(topic, []byte(payload))
	}
}

func (b *mockBus) last(topic string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.published[topic]
	if len(msgs) == 0 {
		return "", false
	}
	return msgs[len(msgs)-1], true
}

func (b *mockBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[topic])
}

func (b *mockBus) all(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published[topic]...)
}

func (b *mockBus) violations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.guardViolations
}

// Mock event poller for the command logic.
type mockPoller struct {
	mu    sync.Mutex
	kinds []types.FaultKind
}

func (p *mockPoller) Poll() types.FaultKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.kinds) == 0 {
		return types.FaultNone
	}
	kind := p.kinds[0]
	p.kinds = p.kinds[1:]
	return kind
}

func (p *mockPoller) push(kinds ...types.FaultKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kinds...)
}

// Mock fault clearer standing in for the navigation controller.
type mockClearer struct {
	mu      sync.Mutex
	cleared int
}

func (m *mockClearer) ClearFault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
}

func (m *mockClearer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

func testLogger() *logger.Logger {
	return logger.NewLogger(nil, logger.LogLevelError)
}
