package message

import (
	"bytes"
	"testing"

	"github.com/awcullen/opcua/ua"
)

func TestBufferWriteLimits(t *testing.T) {
	b := NewBuffer(6)

	if err := b.WriteUint32(0x01020304); err != nil {
		t.Fatalf("WriteUint32() error = %v", err)
	}
	if err := b.WriteUint32(1); err != ErrBufferFull {
		t.Errorf("WriteUint32() over capacity error = %v, want %v", err, ErrBufferFull)
	}
	if b.Len() != 4 {
		t.Errorf("Len() = %d, want 4 (failed write must not change the buffer)", b.Len())
	}
	if err := b.Write([]byte{5, 6}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if b.Free() != 0 {
		t.Errorf("Free() = %d, want 0", b.Free())
	}
	if err := b.WriteByte(7); err != ErrBufferFull {
		t.Errorf("WriteByte() error = %v, want %v", err, ErrBufferFull)
	}

	want := []byte{4, 3, 2, 1, 5, 6}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("Bytes() = %v, want %v", b.Bytes(), want)
	}
}

func TestBufferRead(t *testing.T) {
	b := NewBufferFrom([]byte{1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 9})

	v, err := b.ReadUint32()
	if err != nil || v != 1 {
		t.Fatalf("ReadUint32() = %d, %v, want 1, nil", v, err)
	}
	i, err := b.ReadInt32()
	if err != nil || i != -1 {
		t.Fatalf("ReadInt32() = %d, %v, want -1, nil", i, err)
	}
	if b.Remaining() != 1 {
		t.Errorf("Remaining() = %d, want 1", b.Remaining())
	}
	if _, err := b.ReadUint32(); err != ErrBufferUnderflow {
		t.Errorf("ReadUint32() error = %v, want %v", err, ErrBufferUnderflow)
	}
	c, err := b.ReadByte()
	if err != nil || c != 9 {
		t.Errorf("ReadByte() = %d, %v, want 9, nil", c, err)
	}
}

func TestBufferPositionAndTruncate(t *testing.T) {
	b := NewBufferFrom([]byte{1, 2, 3, 4, 5})

	if err := b.SetPosition(6); err != ErrInvalidPosition {
		t.Errorf("SetPosition(6) error = %v, want %v", err, ErrInvalidPosition)
	}
	if err := b.SetPosition(4); err != nil {
		t.Fatalf("SetPosition(4) error = %v", err)
	}
	if err := b.Truncate(2); err != nil {
		t.Fatalf("Truncate(2) error = %v", err)
	}
	if b.Position() != 2 {
		t.Errorf("Position() = %d, want 2 after truncation", b.Position())
	}
	if err := b.Truncate(3); err != ErrInvalidPosition {
		t.Errorf("Truncate(3) error = %v, want %v", err, ErrInvalidPosition)
	}
}

func TestBufferPutAt(t *testing.T) {
	b := NewBuffer(16)
	if err := b.WriteZeros(8); err != nil {
		t.Fatalf("WriteZeros() error = %v", err)
	}
	if err := b.PutUint32At(4, 0xAABBCCDD); err != nil {
		t.Fatalf("PutUint32At() error = %v", err)
	}
	if err := b.PutUint32At(6, 1); err != ErrInvalidPosition {
		t.Errorf("PutUint32At(6) error = %v, want %v", err, ErrInvalidPosition)
	}

	want := []byte{0, 0, 0, 0, 0xDD, 0xCC, 0xBB, 0xAA}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("Bytes() = %x, want %x", b.Bytes(), want)
	}
}

func TestByteString(t *testing.T) {
	tests := []struct {
		name    string
		value   []byte
		encoded []byte
	}{
		{"null", nil, []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{"empty", []byte{}, []byte{0, 0, 0, 0}},
		{"data", []byte{0xCA, 0xFE}, []byte{2, 0, 0, 0, 0xCA, 0xFE}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(32)
			if err := b.WriteByteString(tt.value); err != nil {
				t.Fatalf("WriteByteString() error = %v", err)
			}
			if !bytes.Equal(b.Bytes(), tt.encoded) {
				t.Fatalf("WriteByteString() = %x, want %x", b.Bytes(), tt.encoded)
			}

			r := NewBufferFrom(tt.encoded)
			got, err := r.ReadByteString()
			if err != nil {
				t.Fatalf("ReadByteString() error = %v", err)
			}
			if (got == nil) != (tt.value == nil) || !bytes.Equal(got, tt.value) {
				t.Errorf("ReadByteString() = %#v, want %#v", got, tt.value)
			}
		})
	}
}

func TestByteStringErrors(t *testing.T) {
	t.Run("negative length", func(t *testing.T) {
		b := NewBufferFrom([]byte{0xFE, 0xFF, 0xFF, 0xFF})
		if _, err := b.ReadByteString(); err != ErrInvalidLength {
			t.Errorf("ReadByteString() error = %v, want %v", err, ErrInvalidLength)
		}
	})

	t.Run("length past end", func(t *testing.T) {
		b := NewBufferFrom([]byte{10, 0, 0, 0, 1, 2})
		if _, err := b.ReadByteString(); err != ErrBufferUnderflow {
			t.Errorf("ReadByteString() error = %v, want %v", err, ErrBufferUnderflow)
		}
	})

	t.Run("write does not fit", func(t *testing.T) {
		b := NewBuffer(5)
		if err := b.WriteByteString([]byte{1, 2}); err != ErrBufferFull {
			t.Errorf("WriteByteString() error = %v, want %v", err, ErrBufferFull)
		}
		if b.Len() != 0 {
			t.Errorf("Len() = %d, want 0", b.Len())
		}
	})
}

func TestStatusCodesMatchUA(t *testing.T) {
	tests := []struct {
		got  ua.StatusCode
		want ua.StatusCode
	}{
		{BadSecurityChecksFailed, ua.BadSecurityChecksFailed},
		{BadSecurityPolicyRejected, ua.BadSecurityPolicyRejected},
		{BadTCPSecureChannelUnknown, ua.BadTCPSecureChannelUnknown},
		{BadTCPInternalError, ua.BadTCPInternalError},
		{BadDecodingError, ua.BadDecodingError},
		{BadEncodingError, ua.BadEncodingError},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = 0x%08X, want 0x%08X", StatusName(tt.got), uint32(tt.got), uint32(tt.want))
		}
	}
}

func TestStatusName(t *testing.T) {
	if got := StatusName(BadTCPMessageTypeInvalid); got != "BadTcpMessageTypeInvalid" {
		t.Errorf("StatusName() = %q", got)
	}
	if got := StatusName(ua.StatusCode(0x80FF0000)); got != "0x80FF0000" {
		t.Errorf("StatusName(unknown) = %q", got)
	}
}
