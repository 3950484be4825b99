package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/verbatim-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Ping(ctx context.Context) error
	Close() error
}

// Loopback is an in-process Bus. Every forwarder sees every message, which is
// how several hubs in one test stand in for several API instances.
type Loopback struct {
	mu         sync.RWMutex
	forwarders []func(realtime.SSEMessage)
	closed     bool
}

func NewLoopback() *Loopback { return &Loopback{} }

func (b *Loopback) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("loopback bus closed")
	}
	for _, f := range b.forwarders {
		f(msg)
	}
	return nil
}

func (b *Loopback) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarders = append(b.forwarders, onMsg)
	return nil
}

func (b *Loopback) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("loopback bus closed")
	}
	return nil
}

func (b *Loopback) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.forwarders = nil
	return nil
}
