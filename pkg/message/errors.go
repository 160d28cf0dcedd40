package message

import "errors"

// Message layer errors.
var (
	// Header decoding errors
	ErrMessageTooShort    = errors.New("message: data too short")
	ErrInvalidMessageType = errors.New("message: unknown message type tag")
	ErrInvalidChunkType   = errors.New("message: unknown chunk marker")
	ErrChunkNotFinal      = errors.New("message: only MSG may be sent as a non-final chunk")
	ErrInvalidMessageSize = errors.New("message: declared size must exceed header length")

	// Buffer errors
	ErrBufferFull      = errors.New("message: buffer capacity exceeded")
	ErrBufferUnderflow = errors.New("message: not enough bytes in buffer")
	ErrInvalidPosition = errors.New("message: position outside buffer")

	// Encoding errors
	ErrInvalidLength = errors.New("message: invalid length prefix")
)

// Wire format constants.
const (
	// TypeTagSize is the length of the ASCII message type tag.
	TypeTagSize = 3

	// HeaderSize is the size of the TCP UA message header:
	// type tag (3) + chunk marker (1) + message size (4).
	HeaderSize = 8

	// ChannelIDSize is the size of the secure channel id following the header.
	ChannelIDSize = 4

	// SecureMessageHeaderSize is the TCP UA header plus the secure channel id.
	SecureMessageHeaderSize = HeaderSize + ChannelIDSize

	// TokenIDSize is the size of the symmetric security header.
	TokenIDSize = 4

	// SymmetricHeadersSize covers the secure message header and the token id.
	SymmetricHeadersSize = SecureMessageHeaderSize + TokenIDSize

	// SequenceHeaderSize is sequence number (4) + request id (4).
	SequenceHeaderSize = 8

	// SymmetricPrefixSize is every header preceding a symmetric message body.
	SymmetricPrefixSize = SymmetricHeadersSize + SequenceHeaderSize

	// ThumbprintSize is the length of a SHA-1 certificate thumbprint.
	ThumbprintSize = 20

	// sizeFieldOffset is the offset of the message size in the TCP UA header.
	sizeFieldOffset = 4

	// nullLength encodes a null String or ByteString.
	nullLength int32 = -1
)
