// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus is the event channel transport: named channels, each carrying
// topic-tagged messages to every live subscriber of that channel.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is one topic-tagged payload. Data is JSON so that every backend
// carries the same bytes.
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// NewMessage marshals data into a Message.
func NewMessage(topic string, data any) (Message, error) {
	buf, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return Message{Topic: topic, Data: buf}, nil
}

type Subscriber interface {
	// C returns a read-only message channel. It is closed by Close.
	C() <-chan Message
	// Close unsubscribes.
	Close() error
}

// Bus is the event transport abstraction.
// There is no replay: a subscriber only sees messages published after Subscribe returned.
type Bus interface {
	Publish(ctx context.Context, channel string, msg Message) error
	Subscribe(ctx context.Context, channel string) (Subscriber, error)
}
