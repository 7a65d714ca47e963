// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupRedisBus(t *testing.T) (*miniredis.Miniredis, *RedisBus) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBusWithClient(client, "test:")
	t.Cleanup(func() { _ = b.Close() })
	return mr, b
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	_, b := setupRedisBus(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "user:alice")
	require.NoError(t, err)
	defer sub.Close()

	msg, err := NewMessage("analysis.complete", map[string]any{"theme": "midnight", "totalScreens": 2})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "user:alice", msg))

	select {
	case got := <-sub.C():
		require.Equal(t, "analysis.complete", got.Topic)
		require.JSONEq(t, `{"theme":"midnight","totalScreens":2}`, string(got.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis message")
	}
}

func TestRedisBusUsesPrefixedChannels(t *testing.T) {
	mr, b := setupRedisBus(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "user:bob")
	require.NoError(t, err)
	defer sub.Close()

	require.Contains(t, mr.PubSubChannels(""), "test:user:bob")
}

func TestRedisBusCloseClosesChannel(t *testing.T) {
	_, b := setupRedisBus(t)
	sub, err := b.Subscribe(context.Background(), "user:carol")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	select {
	case _, ok := <-sub.C():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}
}
