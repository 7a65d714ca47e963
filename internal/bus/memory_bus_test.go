// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func mustMessage(t *testing.T, topic string, data any) Message {
	t.Helper()
	msg, err := NewMessage(topic, data)
	require.NoError(t, err)
	return msg
}

func TestMemoryBusDeliversOnlyToChannelSubscribers(t *testing.T) {
	b := NewMemoryBus()
	alice, err := b.Subscribe(context.Background(), "user:alice")
	require.NoError(t, err)
	defer alice.Close()
	bob, err := b.Subscribe(context.Background(), "user:bob")
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, b.Publish(context.Background(), "user:alice", mustMessage(t, "generation.start", map[string]string{"status": "running"})))

	select {
	case msg := <-alice.C():
		require.Equal(t, "generation.start", msg.Topic)
		require.JSONEq(t, `{"status":"running"}`, string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("expected message on alice's channel")
	}
	select {
	case msg := <-bob.C():
		t.Fatalf("unexpected message on bob's channel: %v", msg)
	default:
	}
}

func TestMemoryBusChannelLifecycle(t *testing.T) {
	b := NewMemoryBus()
	require.Equal(t, 0, b.Channels())

	// Publishing without subscribers does not create channel state.
	require.NoError(t, b.Publish(context.Background(), "user:x", mustMessage(t, "t", nil)))
	require.Equal(t, 0, b.Channels())

	s1, err := b.Subscribe(context.Background(), "user:x")
	require.NoError(t, err)
	s2, err := b.Subscribe(context.Background(), "user:x")
	require.NoError(t, err)
	require.Equal(t, 1, b.Channels())

	require.NoError(t, s1.Close())
	require.Equal(t, 1, b.Channels())
	require.NoError(t, s2.Close())
	require.Equal(t, 0, b.Channels())

	// Close is idempotent and the channel is closed for readers.
	require.NoError(t, s2.Close())
	_, ok := <-s2.C()
	require.False(t, ok)
}

func TestMemoryBusDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewMemoryBus(WithSubscriberBuffer(2))
	sub, err := b.Subscribe(context.Background(), "user:slow")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	initial := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("frame.created", "full"))

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(context.Background(), "user:slow", mustMessage(t, "frame.created", i)))
	}

	final := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("frame.created", "full"))
	require.Equal(t, initial+3, final)
	require.Len(t, sub.C(), 2)
}

func TestMemoryBusBlockingPublishContextTimeout(t *testing.T) {
	b := NewMemoryBus(WithBlockingPublish(), WithSubscriberBuffer(1))
	sub, err := b.Subscribe(context.Background(), "jobs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	require.NoError(t, b.Publish(context.Background(), "jobs", mustMessage(t, "job", 1)))

	initial := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("job", "timeout"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "jobs", mustMessage(t, "job", 2))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Greater(t, getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("job", "timeout")), initial)
}

func TestMemoryBusBlockingPublishWithoutSubscriber(t *testing.T) {
	b := NewMemoryBus(WithBlockingPublish())
	err := b.Publish(context.Background(), "jobs", mustMessage(t, "job", 1))
	require.ErrorIs(t, err, ErrNoSubscribers)

	sub, err := b.Subscribe(context.Background(), "jobs")
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers("jobs"))
	require.NoError(t, b.Publish(context.Background(), "jobs", mustMessage(t, "job", 2)))
	require.NoError(t, sub.Close())
	require.Equal(t, 0, b.Subscribers("jobs"))
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	//nolint:staticcheck // nil context is the case under test
	err := b.Publish(nil, "topic", Message{Topic: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestMemoryBusNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "user:leak")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range sub.C() {
		}
	}()
	require.NoError(t, b.Publish(context.Background(), "user:leak", mustMessage(t, "t", 1)))
	require.NoError(t, sub.Close())
	<-done
}
