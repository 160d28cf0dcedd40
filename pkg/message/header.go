package message

import (
	"encoding/binary"
)

// Header is the TCP UA message header (OPC 10000-6, 7.1.2).
// All multi-byte fields are little-endian on the wire.
type Header struct {
	// Type is the message type from the 3-byte ASCII tag.
	Type MessageType

	// Chunk is the chunk marker. Only MSG may be Intermediate or Abort.
	Chunk ChunkType

	// Size is the total length of the message including this header.
	Size uint32
}

// DecodeHeader parses the 8-byte TCP UA header at the start of data.
// Only the header bytes are inspected; payload bytes are not consumed.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrMessageTooShort
	}

	var h Header

	h.Type = MessageTypeFromTag(data[:TypeTagSize])
	if h.Type == MessageTypeInvalid {
		return Header{}, ErrInvalidMessageType
	}

	h.Chunk = ChunkType(data[TypeTagSize])
	if !h.Chunk.IsValid() {
		return Header{}, ErrInvalidChunkType
	}
	if h.Chunk != ChunkFinal && h.Type != MessageTypeMessage {
		return Header{}, ErrChunkNotFinal
	}

	h.Size = binary.LittleEndian.Uint32(data[sizeFieldOffset:HeaderSize])
	if h.Size <= HeaderSize {
		return Header{}, ErrInvalidMessageSize
	}

	return h, nil
}

// EncodeTo writes the header into buf, which must hold at least HeaderSize bytes.
func (h Header) EncodeTo(buf []byte) int {
	copy(buf[:TypeTagSize], h.Type.Tag())
	buf[TypeTagSize] = byte(h.Chunk)
	binary.LittleEndian.PutUint32(buf[sizeFieldOffset:], h.Size)
	return HeaderSize
}

// EncodeHeader writes the header at the start of b.
//
// If b holds fewer than HeaderSize bytes it is extended with zeros first, so
// both an empty buffer and a buffer with a reserved prefix work. The size
// field is set to max(b.Len(), HeaderSize); callers that add bytes afterwards
// backpatch it with PatchMessageSize.
func EncodeHeader(b *Buffer, t MessageType, c ChunkType) error {
	if !t.IsValid() {
		return ErrInvalidMessageType
	}
	if !c.IsValid() {
		return ErrInvalidChunkType
	}
	if c != ChunkFinal && t != MessageTypeMessage {
		return ErrChunkNotFinal
	}

	if b.Len() < HeaderSize {
		if err := b.WriteZeros(HeaderSize - b.Len()); err != nil {
			return err
		}
	}

	h := Header{Type: t, Chunk: c, Size: uint32(b.Len())}
	var raw [HeaderSize]byte
	h.EncodeTo(raw[:])
	return b.PutAt(0, raw[:])
}

// PatchMessageSize overwrites the size field of the header at the start of b.
func PatchMessageSize(b *Buffer, size uint32) error {
	return b.PutUint32At(sizeFieldOffset, size)
}
