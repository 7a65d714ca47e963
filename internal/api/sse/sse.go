// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sse encodes and decodes the text/event-stream framing used by the
// realtime endpoint. Each bus message becomes one event whose name is the
// topic and whose data line is the compact JSON payload.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/xdesign/internal/bus"
)

const ContentType = "text/event-stream"

// Event is one decoded stream entry. Comment is set for comment lines, which
// carry no message.
type Event struct {
	Name    string
	Data    string
	Comment string
}

// Message converts a data event back into a bus message.
func (e Event) Message() bus.Message {
	return bus.Message{Topic: e.Name, Data: json.RawMessage(e.Data)}
}

// WriteMessage frames msg as one event.
func WriteMessage(w io.Writer, msg bus.Message) error {
	if strings.ContainsAny(msg.Topic, "\r\n") {
		return fmt.Errorf("sse: topic %q contains a newline", msg.Topic)
	}
	var data bytes.Buffer
	if len(msg.Data) == 0 {
		data.WriteString("null")
	} else if err := json.Compact(&data, msg.Data); err != nil {
		return fmt.Errorf("sse: compact %s payload: %w", msg.Topic, err)
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, data.Bytes())
	return err
}

// WriteComment writes a comment line, used for the connect marker and heartbeats.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

// Reader decodes events from a stream.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event or comment. It returns io.EOF when the stream
// ends cleanly between events.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		started bool
	)
	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && started {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !started {
				continue
			}
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			if !started {
				ev.Comment = strings.TrimSpace(line[1:])
				started = true
			}
			continue
		}
		started = true
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		}
	}
}
