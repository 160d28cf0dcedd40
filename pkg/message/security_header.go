package message

import "bytes"

// AsymmetricSecurityHeader follows the secure channel id of an OPN message.
type AsymmetricSecurityHeader struct {
	// SecurityPolicyURI names the policy used to secure the message.
	SecurityPolicyURI string

	// SenderCertificate is the DER certificate of the sender.
	// Nil when the message is not signed.
	SenderCertificate []byte

	// ReceiverCertificateThumbprint is the SHA-1 thumbprint of the receiver's
	// certificate. Nil when the message is not encrypted.
	ReceiverCertificateThumbprint []byte
}

// HasSenderCertificate returns true if a non-empty sender certificate is present.
func (h *AsymmetricSecurityHeader) HasSenderCertificate() bool {
	return len(h.SenderCertificate) > 0
}

// HasReceiverThumbprint returns true if a non-empty receiver thumbprint is present.
func (h *AsymmetricSecurityHeader) HasReceiverThumbprint() bool {
	return len(h.ReceiverCertificateThumbprint) > 0
}

// Size returns the encoded size of the header.
func (h *AsymmetricSecurityHeader) Size() int {
	return ByteStringSize([]byte(h.SecurityPolicyURI)) +
		ByteStringSize(h.SenderCertificate) +
		ByteStringSize(h.ReceiverCertificateThumbprint)
}

// Decode reads the header at the cursor of b.
func (h *AsymmetricSecurityHeader) Decode(b *Buffer) error {
	uri, err := b.ReadString()
	if err != nil {
		return err
	}
	cert, err := b.ReadByteString()
	if err != nil {
		return err
	}
	thumb, err := b.ReadByteString()
	if err != nil {
		return err
	}

	h.SecurityPolicyURI = uri
	h.SenderCertificate = cert
	h.ReceiverCertificateThumbprint = thumb
	return nil
}

// Encode appends the header to b. Nil certificate fields are written as null.
func (h *AsymmetricSecurityHeader) Encode(b *Buffer) error {
	if err := b.WriteString(h.SecurityPolicyURI); err != nil {
		return err
	}
	if err := b.WriteByteString(h.SenderCertificate); err != nil {
		return err
	}
	return b.WriteByteString(h.ReceiverCertificateThumbprint)
}

// Equal reports whether two headers carry the same values.
func (h *AsymmetricSecurityHeader) Equal(o *AsymmetricSecurityHeader) bool {
	return h.SecurityPolicyURI == o.SecurityPolicyURI &&
		bytes.Equal(h.SenderCertificate, o.SenderCertificate) &&
		bytes.Equal(h.ReceiverCertificateThumbprint, o.ReceiverCertificateThumbprint)
}

// SymmetricSecurityHeader follows the secure channel id of MSG and CLO messages.
type SymmetricSecurityHeader struct {
	TokenID uint32
}

// Decode reads the token id at the cursor of b.
func (h *SymmetricSecurityHeader) Decode(b *Buffer) error {
	id, err := b.ReadUint32()
	if err != nil {
		return err
	}
	h.TokenID = id
	return nil
}

// Encode appends the token id to b.
func (h *SymmetricSecurityHeader) Encode(b *Buffer) error {
	return b.WriteUint32(h.TokenID)
}
