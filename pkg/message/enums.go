// Package message implements the OPC UA Connection Protocol and Secure
// Conversation wire format used by a Secure Channel.
//
// The package provides:
//   - TCP UA message header encoding/decoding (8 bytes)
//   - A bounded read/write Buffer used for every chunk on the wire
//   - UA String and ByteString encoding (length prefixed, -1 for null)
//   - Asymmetric, symmetric and sequence header wire structures
//   - The status codes reported by the chunk codec
package message

// MessageType identifies a TCP UA message by its 3-byte ASCII tag.
type MessageType uint8

const (
	// MessageTypeInvalid is the zero value and never appears on the wire.
	MessageTypeInvalid MessageType = iota

	// MessageTypeHello is sent by the client to open a transport connection.
	MessageTypeHello

	// MessageTypeAcknowledge is the server's answer to Hello.
	MessageTypeAcknowledge

	// MessageTypeError reports a transport error before closing the socket.
	MessageTypeError

	// MessageTypeMessage carries a secure conversation service message.
	MessageTypeMessage

	// MessageTypeOpen opens or renews a secure channel.
	MessageTypeOpen

	// MessageTypeClose closes a secure channel.
	MessageTypeClose
)

var messageTypeTags = [...]string{
	MessageTypeInvalid:     "",
	MessageTypeHello:       "HEL",
	MessageTypeAcknowledge: "ACK",
	MessageTypeError:       "ERR",
	MessageTypeMessage:     "MSG",
	MessageTypeOpen:        "OPN",
	MessageTypeClose:       "CLO",
}

// MessageTypeFromTag maps a 3-byte wire tag to its message type.
// Returns MessageTypeInvalid for unknown tags.
func MessageTypeFromTag(tag []byte) MessageType {
	if len(tag) != TypeTagSize {
		return MessageTypeInvalid
	}
	for t := MessageTypeHello; t <= MessageTypeClose; t++ {
		if string(tag) == messageTypeTags[t] {
			return t
		}
	}
	return MessageTypeInvalid
}

// Tag returns the 3-byte wire tag, or an empty string if the type is invalid.
func (t MessageType) Tag() string {
	if !t.IsValid() {
		return ""
	}
	return messageTypeTags[t]
}

// String returns the wire tag for logging.
func (t MessageType) String() string {
	if !t.IsValid() {
		return "Unknown"
	}
	return messageTypeTags[t]
}

// IsValid returns true if the type is one of the six defined message types.
func (t MessageType) IsValid() bool {
	return t >= MessageTypeHello && t <= MessageTypeClose
}

// IsTCPOnly returns true for the connection protocol messages (HEL, ACK, ERR)
// which carry no secure conversation headers.
func (t MessageType) IsTCPOnly() bool {
	return t == MessageTypeHello || t == MessageTypeAcknowledge || t == MessageTypeError
}

// IsSecure returns true for the secure conversation messages (OPN, MSG, CLO).
func (t MessageType) IsSecure() bool {
	return t == MessageTypeOpen || t == MessageTypeMessage || t == MessageTypeClose
}

// IsSymmetric returns true for the messages protected with symmetric keys.
func (t MessageType) IsSymmetric() bool {
	return t == MessageTypeMessage || t == MessageTypeClose
}

// ChunkType is the 1-byte chunk marker following the type tag.
type ChunkType byte

const (
	// ChunkIntermediate marks a chunk followed by more chunks of the same message.
	ChunkIntermediate ChunkType = 'C'

	// ChunkFinal marks the last (or only) chunk of a message.
	ChunkFinal ChunkType = 'F'

	// ChunkAbort tells the receiver to discard the chunks received so far.
	ChunkAbort ChunkType = 'A'
)

// String returns a human-readable name for the chunk type.
func (c ChunkType) String() string {
	switch c {
	case ChunkIntermediate:
		return "Intermediate"
	case ChunkFinal:
		return "Final"
	case ChunkAbort:
		return "Abort"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the chunk type is a defined marker.
func (c ChunkType) IsValid() bool {
	return c == ChunkIntermediate || c == ChunkFinal || c == ChunkAbort
}
