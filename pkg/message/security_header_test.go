package message

import (
	"bytes"
	"testing"
)

func TestAsymmetricSecurityHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		hdr  AsymmetricSecurityHeader
	}{
		{
			name: "none",
			hdr: AsymmetricSecurityHeader{
				SecurityPolicyURI: "http://opcfoundation.org/UA/SecurityPolicy#None",
			},
		},
		{
			name: "secured",
			hdr: AsymmetricSecurityHeader{
				SecurityPolicyURI:             "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256",
				SenderCertificate:             bytes.Repeat([]byte{0x30}, 100),
				ReceiverCertificateThumbprint: bytes.Repeat([]byte{0x11}, ThumbprintSize),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(512)
			if err := tt.hdr.Encode(b); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if b.Len() != tt.hdr.Size() {
				t.Errorf("encoded %d bytes, Size() = %d", b.Len(), tt.hdr.Size())
			}

			var got AsymmetricSecurityHeader
			if err := got.Decode(NewBufferFrom(b.Bytes())); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !got.Equal(&tt.hdr) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.hdr)
			}
		})
	}
}

func TestAsymmetricSecurityHeaderNullFields(t *testing.T) {
	hdr := AsymmetricSecurityHeader{SecurityPolicyURI: "p"}
	b := NewBuffer(64)
	if err := hdr.Encode(b); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := []byte{
		1, 0, 0, 0, 'p',
		0xFF, 0xFF, 0xFF, 0xFF,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("Encode() = %x, want %x", b.Bytes(), want)
	}

	var got AsymmetricSecurityHeader
	if err := got.Decode(NewBufferFrom(want)); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.HasSenderCertificate() || got.HasReceiverThumbprint() {
		t.Error("null fields decoded as present")
	}
}

func TestAsymmetricSecurityHeaderTruncated(t *testing.T) {
	data := []byte{4, 0, 0, 0, 'a', 'b'}
	var h AsymmetricSecurityHeader
	if err := h.Decode(NewBufferFrom(data)); err != ErrBufferUnderflow {
		t.Errorf("Decode() error = %v, want %v", err, ErrBufferUnderflow)
	}
}

func TestSymmetricAndSequenceHeaders(t *testing.T) {
	b := NewBuffer(32)
	sym := SymmetricSecurityHeader{TokenID: 42}
	if err := sym.Encode(b); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	seqPos := b.Len()
	if err := b.WriteZeros(SequenceHeaderSize); err != nil {
		t.Fatalf("WriteZeros() error = %v", err)
	}
	seq := SequenceHeader{SequenceNumber: 7, RequestID: 9}
	if err := seq.EncodeAt(b, seqPos); err != nil {
		t.Fatalf("EncodeAt() error = %v", err)
	}

	r := NewBufferFrom(b.Bytes())
	var gotSym SymmetricSecurityHeader
	if err := gotSym.Decode(r); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	var gotSeq SequenceHeader
	if err := gotSeq.Decode(r); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if gotSym != sym || gotSeq != seq {
		t.Errorf("decoded %+v %+v, want %+v %+v", gotSym, gotSeq, sym, seq)
	}
}
