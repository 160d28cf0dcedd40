package message

import (
	"encoding/binary"
)

// Buffer is a byte buffer with a read cursor and a fixed maximum size.
//
// Writes always append at the end of the buffer and move the cursor there.
// Reads consume bytes from the cursor. PutAt and PutUint32At overwrite bytes
// that were already written, which is how size fields are backpatched once
// the final length of a chunk is known.
type Buffer struct {
	data     []byte
	position int
	maxSize  int
}

// NewBuffer creates an empty buffer that may grow up to maxSize bytes.
func NewBuffer(maxSize int) *Buffer {
	initial := maxSize
	if initial > 4096 {
		initial = 4096
	}
	if initial < 0 {
		initial = 0
	}
	return &Buffer{
		data:    make([]byte, 0, initial),
		maxSize: maxSize,
	}
}

// NewBufferFrom wraps data for reading. The buffer is full: its maximum
// size equals len(data).
func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{
		data:    data,
		maxSize: len(data),
	}
}

// Bytes returns all bytes written so far. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes held.
func (b *Buffer) Len() int {
	return len(b.data)
}

// MaxSize returns the maximum number of bytes the buffer accepts.
func (b *Buffer) MaxSize() int {
	return b.maxSize
}

// Position returns the read cursor.
func (b *Buffer) Position() int {
	return b.position
}

// Remaining returns the number of unread bytes after the cursor.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.position
}

// Free returns how many more bytes can be written.
func (b *Buffer) Free() int {
	return b.maxSize - len(b.data)
}

// SetPosition moves the read cursor.
func (b *Buffer) SetPosition(pos int) error {
	if pos < 0 || pos > len(b.data) {
		return ErrInvalidPosition
	}
	b.position = pos
	return nil
}

// Truncate shortens the buffer to n bytes. The cursor is clamped.
func (b *Buffer) Truncate(n int) error {
	if n < 0 || n > len(b.data) {
		return ErrInvalidPosition
	}
	b.data = b.data[:n]
	if b.position > n {
		b.position = n
	}
	return nil
}

// Reset empties the buffer without releasing its storage.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.position = 0
}

// Write appends p. Nothing is written if p does not fit.
func (b *Buffer) Write(p []byte) error {
	if len(p) > b.Free() {
		return ErrBufferFull
	}
	b.data = append(b.data, p...)
	b.position = len(b.data)
	return nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	if b.Free() < 1 {
		return ErrBufferFull
	}
	b.data = append(b.data, c)
	b.position = len(b.data)
	return nil
}

// WriteUint32 appends v in little-endian order.
func (b *Buffer) WriteUint32(v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return b.Write(tmp[:])
}

// WriteInt32 appends v in little-endian order.
func (b *Buffer) WriteInt32(v int32) error {
	return b.WriteUint32(uint32(v))
}

// WriteZeros appends n zero bytes, reserving space to be filled by PutAt.
func (b *Buffer) WriteZeros(n int) error {
	if n < 0 || n > b.Free() {
		return ErrBufferFull
	}
	for i := 0; i < n; i++ {
		b.data = append(b.data, 0)
	}
	b.position = len(b.data)
	return nil
}

// PutAt overwrites already written bytes starting at off.
func (b *Buffer) PutAt(off int, p []byte) error {
	if off < 0 || off+len(p) > len(b.data) {
		return ErrInvalidPosition
	}
	copy(b.data[off:], p)
	return nil
}

// PutUint32At overwrites 4 already written bytes at off with v.
func (b *Buffer) PutUint32At(off int, v uint32) error {
	if off < 0 || off+4 > len(b.data) {
		return ErrInvalidPosition
	}
	binary.LittleEndian.PutUint32(b.data[off:], v)
	return nil
}

// Next returns the next n unread bytes and advances the cursor.
// The returned slice aliases the buffer.
func (b *Buffer) Next(n int) ([]byte, error) {
	if n < 0 || n > b.Remaining() {
		return nil, ErrBufferUnderflow
	}
	p := b.data[b.position : b.position+n]
	b.position += n
	return p, nil
}

// ReadByte consumes one byte.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ErrBufferUnderflow
	}
	c := b.data[b.position]
	b.position++
	return c, nil
}

// ReadUint32 consumes a little-endian uint32.
func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// ReadInt32 consumes a little-endian int32.
func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}
