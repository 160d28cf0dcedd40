// Package events defines the events the chunk codec produces for the layers
// above it and the ordered queue they travel through.
package events

import (
	"fmt"

	"github.com/awcullen/opcua/ua"

	"github.com/backkem/uasc/pkg/connection"
	"github.com/backkem/uasc/pkg/message"
)

// Kind is the closed set of codec events.
type Kind uint8

const (
	KindInvalid Kind = iota
	// KindHel carries a received HEL body (server).
	KindHel
	// KindAck carries a received ACK body (client).
	KindAck
	// KindErr carries a received ERR body (client).
	KindErr
	// KindOpn carries a decrypted and verified OPN body.
	KindOpn
	// KindClo carries a verified CLO body (server).
	KindClo
	// KindMsgChunk carries a verified MSG chunk.
	KindMsgChunk
	// KindReceiveFailure reports a message that was dropped on receipt.
	KindReceiveFailure
	// KindSendFailure reports a message that could not be sent.
	KindSendFailure
)

var kindNames = [...]string{
	KindInvalid:        "Invalid",
	KindHel:            "Hel",
	KindAck:            "Ack",
	KindErr:            "Err",
	KindOpn:            "Opn",
	KindClo:            "Clo",
	KindMsgChunk:       "MsgChunk",
	KindReceiveFailure: "ReceiveFailure",
	KindSendFailure:    "SendFailure",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsFailure reports whether k is a failure kind.
func (k Kind) IsFailure() bool {
	return k == KindReceiveFailure || k == KindSendFailure
}

// IsUrgent reports whether events of kind k are queued ahead of others.
func (k Kind) IsUrgent() bool {
	return k == KindErr || k == KindClo || k.IsFailure()
}

// KindForMessage maps a received message type to its event kind.
func KindForMessage(t message.MessageType) Kind {
	switch t {
	case message.MessageTypeHello:
		return KindHel
	case message.MessageTypeAcknowledge:
		return KindAck
	case message.MessageTypeError:
		return KindErr
	case message.MessageTypeOpen:
		return KindOpn
	case message.MessageTypeClose:
		return KindClo
	case message.MessageTypeMessage:
		return KindMsgChunk
	default:
		return KindInvalid
	}
}

// Event is one codec output.
type Event struct {
	Kind         Kind
	ConnectionID connection.ID

	// Buffer holds the decoded message, positioned at the body. Nil for
	// failures.
	Buffer *message.Buffer

	// Chunk is the chunk marker of a MSG chunk.
	Chunk message.ChunkType

	// RequestID of OPN, CLO and MSG events.
	RequestID uint32

	// Status of failure events.
	Status ua.StatusCode

	// Err carries the detailed failure.
	Err error
}

// String returns a one-line description of the event.
func (e Event) String() string {
	if e.Kind.IsFailure() {
		return fmt.Sprintf("%s conn=%s status=%s", e.Kind, e.ConnectionID, message.StatusName(e.Status))
	}
	size := 0
	if e.Buffer != nil {
		size = e.Buffer.Remaining()
	}
	if e.Kind == KindMsgChunk {
		return fmt.Sprintf("%s conn=%s chunk=%s request=%d body=%d", e.Kind, e.ConnectionID, e.Chunk, e.RequestID, size)
	}
	return fmt.Sprintf("%s conn=%s request=%d body=%d", e.Kind, e.ConnectionID, e.RequestID, size)
}
