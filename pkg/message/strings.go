package message

// ReadByteString consumes a UA ByteString: an int32 length followed by the
// bytes. A length of -1 is the null ByteString and is returned as nil; a
// length of 0 returns an empty non-nil slice. The returned slice is a copy.
func (b *Buffer) ReadByteString() ([]byte, error) {
	n, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == nullLength {
		return nil, nil
	}
	if n < 0 {
		return nil, ErrInvalidLength
	}
	p, err := b.Next(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}

// WriteByteString appends v as a UA ByteString. A nil slice is written as the
// null ByteString (length -1, no payload).
func (b *Buffer) WriteByteString(v []byte) error {
	if v == nil {
		return b.WriteInt32(nullLength)
	}
	if len(v)+4 > b.Free() {
		return ErrBufferFull
	}
	if err := b.WriteInt32(int32(len(v))); err != nil {
		return err
	}
	return b.Write(v)
}

// ReadString consumes a UA String. The null string decodes as "".
func (b *Buffer) ReadString() (string, error) {
	p, err := b.ReadByteString()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// WriteString appends s as a UA String. The empty string is written as null.
func (b *Buffer) WriteString(s string) error {
	if s == "" {
		return b.WriteInt32(nullLength)
	}
	return b.WriteByteString([]byte(s))
}

// ByteStringSize returns the encoded length of v as a UA ByteString.
func ByteStringSize(v []byte) int {
	return 4 + len(v)
}
