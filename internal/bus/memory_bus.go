// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/metrics"
)

// MemoryBus is an in-process pub/sub.
//
// Channel state exists only while it has subscribers: Subscribe creates it and
// the last Close removes it. Publishing to a channel nobody listens on is a no-op.
type MemoryBus struct {
	mu       sync.RWMutex
	subs     map[string][]chan Message
	buffer   int
	blocking bool
}

const (
	defaultSubscriberBuffer = 64
	dropLogEvery            = 100
)

var dropCount atomic.Uint64

// ErrNoSubscribers is returned by a blocking bus publishing to an empty channel.
var ErrNoSubscribers = errors.New("no subscribers")

// Option configures a MemoryBus.
type Option func(*MemoryBus)

// WithSubscriberBuffer sets the per-subscriber channel capacity.
func WithSubscriberBuffer(n int) Option {
	return func(b *MemoryBus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithBlockingPublish makes Publish wait for buffer space until the publish
// context ends instead of dropping, and fail with ErrNoSubscribers when the
// channel has no subscriber. Used for the job queue, never for user channels.
func WithBlockingPublish() Option {
	return func(b *MemoryBus) { b.blocking = true }
}

func NewMemoryBus(opts ...Option) *MemoryBus {
	b := &MemoryBus{subs: make(map[string][]chan Message), buffer: defaultSubscriberBuffer}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.blocking && len(b.subs[channel]) == 0 {
		b.recordDrop(channel, msg.Topic, "no_subscribers")
		return fmt.Errorf("publish %s on %q: %w", msg.Topic, channel, ErrNoSubscribers)
	}
	for _, ch := range b.subs[channel] {
		if !b.blocking {
			select {
			case ch <- msg:
				metrics.IncBusPublished(msg.Topic)
			default:
				b.recordDrop(channel, msg.Topic, "full")
			}
			continue
		}
		select {
		case ch <- msg:
			metrics.IncBusPublished(msg.Topic)
		case <-ctx.Done():
			b.recordDrop(channel, msg.Topic, publishDropReason(ctx.Err()))
			return fmt.Errorf("publish %s on %q: %w", msg.Topic, channel, ctx.Err())
		}
	}
	return nil
}

func (b *MemoryBus) recordDrop(channel, topic, reason string) {
	metrics.IncBusDropReason(topic, reason)
	count := dropCount.Add(1)
	if count%dropLogEvery == 1 {
		log.L().Warn().
			Str(log.FieldChannel, channel).
			Str(log.FieldTopic, topic).
			Str("reason", reason).
			Uint64("dropped", count).
			Msg("memory bus dropped message")
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Message, b.buffer)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	metrics.BusSubscribers.Inc()

	return &memSub{b: b, channel: channel, ch: ch}, nil
}

// Subscribers reports the live subscriptions on channel.
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Channels reports how many channels currently have subscribers.
func (b *MemoryBus) Channels() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type memSub struct {
	b       *MemoryBus
	channel string
	ch      chan Message
	once    sync.Once
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.channel]
		out := lst[:0]
		for _, c := range lst {
			if c != s.ch {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.channel)
		} else {
			s.b.subs[s.channel] = out
		}
		close(s.ch)
		metrics.BusSubscribers.Dec()
	})
	return nil
}

// Ensure compliance
var _ Bus = (*MemoryBus)(nil)
