package message

import (
	"bytes"
	"testing"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Header
		wantErr error
	}{
		{
			name: "hello",
			data: []byte{'H', 'E', 'L', 'F', 0x20, 0x00, 0x00, 0x00},
			want: Header{Type: MessageTypeHello, Chunk: ChunkFinal, Size: 32},
		},
		{
			name: "message intermediate",
			data: []byte{'M', 'S', 'G', 'C', 0x00, 0x01, 0x00, 0x00},
			want: Header{Type: MessageTypeMessage, Chunk: ChunkIntermediate, Size: 256},
		},
		{
			name: "message abort",
			data: []byte{'M', 'S', 'G', 'A', 0x09, 0x00, 0x00, 0x00},
			want: Header{Type: MessageTypeMessage, Chunk: ChunkAbort, Size: 9},
		},
		{
			name:    "unknown tag",
			data:    []byte{'X', 'Y', 'Z', 'F', 0x20, 0x00, 0x00, 0x00},
			wantErr: ErrInvalidMessageType,
		},
		{
			name:    "unknown marker",
			data:    []byte{'M', 'S', 'G', 'X', 0x20, 0x00, 0x00, 0x00},
			wantErr: ErrInvalidChunkType,
		},
		{
			name:    "open not final",
			data:    []byte{'O', 'P', 'N', 'C', 0x20, 0x00, 0x00, 0x00},
			wantErr: ErrChunkNotFinal,
		},
		{
			name:    "close abort",
			data:    []byte{'C', 'L', 'O', 'A', 0x20, 0x00, 0x00, 0x00},
			wantErr: ErrChunkNotFinal,
		},
		{
			name:    "size equals header",
			data:    []byte{'A', 'C', 'K', 'F', 0x08, 0x00, 0x00, 0x00},
			wantErr: ErrInvalidMessageSize,
		},
		{
			name:    "too short",
			data:    []byte{'A', 'C', 'K', 'F', 0x08},
			wantErr: ErrMessageTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHeader(tt.data)
			if err != tt.wantErr {
				t.Fatalf("DecodeHeader() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("DecodeHeader() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	types := []MessageType{
		MessageTypeHello,
		MessageTypeAcknowledge,
		MessageTypeError,
		MessageTypeMessage,
		MessageTypeOpen,
		MessageTypeClose,
	}
	chunks := []ChunkType{ChunkFinal, ChunkIntermediate, ChunkAbort}

	for _, typ := range types {
		for _, chunk := range chunks {
			if chunk != ChunkFinal && typ != MessageTypeMessage {
				continue
			}
			t.Run(typ.String()+"/"+chunk.String(), func(t *testing.T) {
				b := NewBuffer(64)
				if err := b.Write(bytes.Repeat([]byte{0xAA}, 20)); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
				if err := EncodeHeader(b, typ, chunk); err != nil {
					t.Fatalf("EncodeHeader() error = %v", err)
				}

				h, err := DecodeHeader(b.Bytes())
				if err != nil {
					t.Fatalf("DecodeHeader() error = %v", err)
				}
				if h.Type != typ {
					t.Errorf("Type = %v, want %v", h.Type, typ)
				}
				if h.Chunk != chunk {
					t.Errorf("Chunk = %v, want %v", h.Chunk, chunk)
				}
				if h.Size != uint32(b.Len()) {
					t.Errorf("Size = %d, want %d", h.Size, b.Len())
				}
			})
		}
	}
}

func TestEncodeHeaderEmptyBuffer(t *testing.T) {
	b := NewBuffer(64)
	if err := EncodeHeader(b, MessageTypeHello, ChunkFinal); err != nil {
		t.Fatalf("EncodeHeader() error = %v", err)
	}
	want := []byte{'H', 'E', 'L', 'F', 0x08, 0x00, 0x00, 0x00}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("EncodeHeader() = %x, want %x", b.Bytes(), want)
	}
}

func TestEncodeHeaderRejectsNonFinal(t *testing.T) {
	for _, typ := range []MessageType{MessageTypeOpen, MessageTypeClose, MessageTypeHello} {
		b := NewBuffer(64)
		if err := EncodeHeader(b, typ, ChunkIntermediate); err != ErrChunkNotFinal {
			t.Errorf("EncodeHeader(%v) error = %v, want %v", typ, err, ErrChunkNotFinal)
		}
	}
}

func TestPatchMessageSize(t *testing.T) {
	b := NewBuffer(64)
	if err := EncodeHeader(b, MessageTypeOpen, ChunkFinal); err != nil {
		t.Fatalf("EncodeHeader() error = %v", err)
	}
	if err := b.WriteZeros(30); err != nil {
		t.Fatalf("WriteZeros() error = %v", err)
	}
	if err := PatchMessageSize(b, 99); err != nil {
		t.Fatalf("PatchMessageSize() error = %v", err)
	}

	h, err := DecodeHeader(b.Bytes())
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if h.Size != 99 {
		t.Errorf("Size = %d, want 99", h.Size)
	}
}

func TestMessageTypeFromTag(t *testing.T) {
	tests := []struct {
		tag  string
		want MessageType
	}{
		{"HEL", MessageTypeHello},
		{"ACK", MessageTypeAcknowledge},
		{"ERR", MessageTypeError},
		{"MSG", MessageTypeMessage},
		{"OPN", MessageTypeOpen},
		{"CLO", MessageTypeClose},
		{"XYZ", MessageTypeInvalid},
		{"HE", MessageTypeInvalid},
		{"", MessageTypeInvalid},
	}

	for _, tt := range tests {
		if got := MessageTypeFromTag([]byte(tt.tag)); got != tt.want {
			t.Errorf("MessageTypeFromTag(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}
