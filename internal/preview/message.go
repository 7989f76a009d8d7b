// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package preview

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType names a control message exchanged with a preview surface.
type MessageType string

const (
	// MessageRefresh asks the surface to re-render. Editor to surface.
	MessageRefresh MessageType = "refresh"
	// MessageReady announces a (re)connected surface. Surface to editor.
	MessageReady MessageType = "ready"
	// MessageRefreshAck confirms a refresh was rendered. Surface to editor.
	MessageRefreshAck MessageType = "refresh-ack"
)

// ErrUnsupportedMessage is returned for inbound messages other than ready
// and refresh-ack. Surfaces can never send content.
var ErrUnsupportedMessage = errors.New("unsupported preview message")

// Message is the JSON envelope on the preview transport.
type Message struct {
	Type      MessageType `json:"type"`
	Token     uint64      `json:"token"`
	Timestamp time.Time   `json:"timestamp"`
	Page      string      `json:"page,omitempty"`
}

// DecodeControl parses a message sent by a preview surface. Only control
// messages are accepted.
func DecodeControl(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode preview message: %w", err)
	}
	switch msg.Type {
	case MessageReady, MessageRefreshAck:
		return msg, nil
	}
	return Message{}, fmt.Errorf("%w: %q", ErrUnsupportedMessage, msg.Type)
}
