// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Prefix   string // Channel name prefix, defaults to "xdesign:"
}

// RedisBus carries channels over Redis PUBLISH/SUBSCRIBE so that a workflow
// running in one process reaches subscribers connected to another.
// Delivery is fire-and-forget like the in-memory bus.
type RedisBus struct {
	client *redis.Client
	prefix string
	buffer int
	logger zerolog.Logger
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis bus connection failed: %w", err)
	}
	b := NewRedisBusWithClient(client, cfg.Prefix)
	b.logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to Redis event bus")
	return b, nil
}

// NewRedisBusWithClient wraps an existing client.
func NewRedisBusWithClient(client *redis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = "xdesign:"
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		buffer: defaultSubscriberBuffer,
		logger: log.WithComponent("bus.redis"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	buf, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+channel, buf).Err(); err != nil {
		return fmt.Errorf("redis publish %s on %q: %w", msg.Topic, channel, err)
	}
	metrics.IncBusPublished(msg.Topic)
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscriber, error) {
	ps := b.client.Subscribe(ctx, b.prefix+channel)
	// Receive blocks until the subscription is confirmed so that a Publish
	// issued after Subscribe returns is never missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %q: %w", channel, err)
	}

	s := &redisSub{
		ps:      ps,
		channel: channel,
		out:     make(chan Message, b.buffer),
		done:    make(chan struct{}),
		logger:  b.logger,
	}
	s.wg.Add(1)
	go s.pump()
	metrics.BusSubscribers.Inc()
	return s, nil
}

// Close closes the Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// HealthCheck checks if Redis is available.
func (b *RedisBus) HealthCheck(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type redisSub struct {
	ps      *redis.PubSub
	channel string
	out     chan Message
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  zerolog.Logger
}

func (s *redisSub) pump() {
	defer s.wg.Done()
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				s.logger.Warn().Err(err).Str(log.FieldChannel, s.channel).Msg("dropping undecodable message")
				metrics.IncBusDropReason("unknown", "decode")
				continue
			}
			select {
			case s.out <- msg:
			default:
				metrics.IncBusDropReason(msg.Topic, "full")
			}
		}
	}
}

func (s *redisSub) C() <-chan Message {
	return s.out
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		s.wg.Wait()
		close(s.out)
		metrics.BusSubscribers.Dec()
	})
	return err
}

var _ Bus = (*RedisBus)(nil)
