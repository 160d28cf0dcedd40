package chunks

import (
	"github.com/pkg/errors"

	"github.com/backkem/uasc/pkg/connection"
	"github.com/backkem/uasc/pkg/events"
	"github.com/backkem/uasc/pkg/message"
)

// SendRequest is a message handed to Send.
type SendRequest struct {
	Type message.MessageType

	// Body holds the message as built with NewMessageBuffer: the headers
	// prefix reserved for the type followed by the encoded body.
	Body *message.Buffer

	// RequestID is echoed by a server in its response. A client allocates
	// its own and ignores this field.
	RequestID uint32
}

// PrefixSize returns the bytes NewMessageBuffer reserves ahead of the body
// of a message of type t. OPN bodies carry no prefix since the length of
// the asymmetric header depends on the certificates.
func PrefixSize(t message.MessageType) int {
	switch {
	case t.IsTCPOnly():
		return message.HeaderSize
	case t.IsSymmetric():
		return message.SymmetricPrefixSize
	default:
		return 0
	}
}

// NewMessageBuffer returns a buffer for a message of type t with the headers
// prefix already reserved. maxSize should be the connection's send buffer
// size so that padding and signature fit. It is raised to the prefix size
// when smaller, so the prefix is always reserved.
func NewMessageBuffer(t message.MessageType, maxSize int) *message.Buffer {
	prefix := PrefixSize(t)
	if maxSize < prefix {
		maxSize = prefix
	}
	b := message.NewBuffer(maxSize)
	if err := b.WriteZeros(prefix); err != nil {
		panic(err) // unreachable: the buffer holds at least the prefix
	}
	return b
}

// Send encodes, signs and encrypts a message for connection id. It returns
// the bytes to write to the transport.
//
// On failure a send failure event is queued as well, so the owner of the
// channel learns about it even when the caller drops the error.
func (m *Manager) Send(id connection.ID, req SendRequest) (*message.Buffer, error) {
	c, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	out, requestID, err := m.encode(c, req)
	if err != nil {
		status := StatusOf(err)
		if m.log != nil {
			m.log.Warnf("conn %s: cannot send %s: %v", c.id, req.Type, err)
		}
		if m.metrics != nil {
			m.metrics.Failures.WithLabelValues(directionSend, message.StatusName(status)).Inc()
		}
		m.queue.PushNext(events.Event{
			Kind:         events.KindSendFailure,
			ConnectionID: c.id,
			RequestID:    req.RequestID,
			Status:       status,
			Err:          err,
		})
		return nil, err
	}

	if m.log != nil {
		m.log.Tracef("conn %s: sending %s request=%d size=%d", c.id, req.Type, requestID, out.Len())
	}
	if m.metrics != nil {
		m.metrics.Sent.WithLabelValues(req.Type.String()).Inc()
		m.metrics.SentBytes.Add(float64(out.Len()))
	}
	return out, nil
}

// encode runs the send pipeline. It returns the buffer to send and the
// request id written into it.
func (m *Manager) encode(c *Connection, req SendRequest) (*message.Buffer, uint32, error) {
	t := req.Type
	if !t.IsValid() {
		return nil, 0, statusErrorf(message.BadTCPMessageTypeInvalid, "message type %d", t)
	}
	if req.Body == nil {
		return nil, 0, statusErrorf(message.BadEncodingError, "no body")
	}

	if t.IsTCPOnly() {
		if req.Body.Len() < message.HeaderSize {
			return nil, 0, statusError(message.BadEncodingError, ErrBufferTooSmall)
		}
		if err := message.EncodeHeader(req.Body, t, message.ChunkFinal); err != nil {
			return nil, 0, statusError(message.BadEncodingError, err)
		}
		return req.Body, 0, nil
	}

	if c.config == nil {
		return nil, 0, statusError(message.BadInvalidState, ErrNotConfigured)
	}
	if c.crypto == nil && c.config.IsSecure() {
		return nil, 0, statusError(message.BadInvalidState, ErrNoCrypto)
	}

	opening := t == message.MessageTypeOpen
	symmetric := t.IsSymmetric()

	var b *message.Buffer
	var seqPos int
	var err error
	if opening {
		b, seqPos, err = m.encodeOpeningHeaders(c, req.Body)
	} else {
		b, seqPos, err = m.encodeSymmetricHeaders(c, t, req.Body)
	}
	if err != nil {
		return nil, 0, err
	}

	sizes, err := c.sendingSizes(symmetric)
	if err != nil {
		return nil, 0, err
	}

	var padding uint16
	extra := sizes.encrypt && usesExtraPadding(sizes.plainBlock)
	if sizes.encrypt {
		padding = PaddingSize(uint32(b.Len()-seqPos), sizes.plainBlock, sizes.signature)
		if err := writePadding(b, padding, extra); err != nil {
			return nil, 0, c.tooLargeError(err)
		}
	}

	if opening {
		if err := checkSenderCertificateSize(c, sizes, padding, extra); err != nil {
			return nil, 0, err
		}
	}

	size := uint32(b.Len()) + sizes.signature
	if sizes.encrypt {
		encLen, err := c.encryptedLength(symmetric, uint32(b.Len()-seqPos)+sizes.signature)
		if err != nil {
			return nil, 0, statusError(message.BadTCPInternalError, err)
		}
		size = uint32(seqPos) + encLen
	}
	if size > c.sendBufferSize {
		return nil, 0, c.tooLargeError(errors.Errorf("chunk of %d bytes exceeds send buffer of %d", size, c.sendBufferSize))
	}
	if err := message.PatchMessageSize(b, size); err != nil {
		return nil, 0, statusError(message.BadTCPInternalError, err)
	}

	seq := message.SequenceHeader{SequenceNumber: c.security.NextSequenceNumber()}
	if c.isServer {
		seq.RequestID = req.RequestID
	} else {
		seq.RequestID = c.security.NextRequestID()
	}
	if err := seq.EncodeAt(b, seqPos); err != nil {
		return nil, 0, statusError(message.BadTCPInternalError, err)
	}

	out, err := c.signAndEncrypt(b, symmetric, seqPos, sizes)
	if err != nil {
		return nil, 0, err
	}

	if !c.isServer && t != message.MessageTypeClose {
		c.security.TrackRequest(seq.RequestID, t)
	}
	return out, seq.RequestID, nil
}

// encodeOpeningHeaders builds an OPN in a new buffer: message header,
// channel id, asymmetric security header, reserved sequence header and the
// body. It returns the buffer and the offset of the sequence header.
func (m *Manager) encodeOpeningHeaders(c *Connection, body *message.Buffer) (*message.Buffer, int, error) {
	cfg := c.config
	b := message.NewBuffer(int(c.sendBufferSize))
	if err := message.EncodeHeader(b, message.MessageTypeOpen, message.ChunkFinal); err != nil {
		return nil, 0, statusError(message.BadTCPInternalError, err)
	}
	if err := b.WriteUint32(c.security.CurrentToken().ChannelID); err != nil {
		return nil, 0, statusError(message.BadTCPInternalError, err)
	}

	h := message.AsymmetricSecurityHeader{SecurityPolicyURI: cfg.SecurityPolicyURI}
	if IsSigned(cfg.SecurityMode) {
		if cfg.Certificate == nil {
			return nil, 0, statusErrorf(message.BadTCPInternalError, "no local certificate")
		}
		h.SenderCertificate = cfg.Certificate.Raw
	}
	if IsEncrypted(cfg.SecurityMode, true) {
		if cfg.PeerCertificate == nil {
			return nil, 0, statusErrorf(message.BadTCPInternalError, "no peer certificate")
		}
		h.ReceiverCertificateThumbprint = c.crypto.Thumbprint(cfg.PeerCertificate.Raw)
		if uint32(len(h.ReceiverCertificateThumbprint)) != c.crypto.ThumbprintLength() {
			return nil, 0, statusErrorf(message.BadTCPInternalError, "thumbprint length %d", len(h.ReceiverCertificateThumbprint))
		}
	}
	if err := h.Encode(b); err != nil {
		return nil, 0, c.tooLargeError(err)
	}
	seqPos := b.Len()

	if c.security.AsymMaxBodySize == 0 || c.security.SymMaxBodySize == 0 {
		if err := c.computeMaxBodySizes(uint32(seqPos)); err != nil {
			return nil, 0, err
		}
	}
	if uint32(body.Len()) > c.security.AsymMaxBodySize {
		return nil, 0, c.tooLargeError(errors.Errorf("OPN body of %d bytes exceeds %d", body.Len(), c.security.AsymMaxBodySize))
	}

	if err := b.WriteZeros(message.SequenceHeaderSize); err != nil {
		return nil, 0, c.tooLargeError(err)
	}
	if err := b.Write(body.Bytes()); err != nil {
		return nil, 0, c.tooLargeError(err)
	}
	return b, seqPos, nil
}

// encodeSymmetricHeaders fills the reserved prefix of a MSG or CLO in place.
func (m *Manager) encodeSymmetricHeaders(c *Connection, t message.MessageType, b *message.Buffer) (*message.Buffer, int, error) {
	if b.Len() < message.SymmetricPrefixSize {
		return nil, 0, statusError(message.BadEncodingError, ErrBufferTooSmall)
	}
	if !c.security.Established() {
		return nil, 0, statusErrorf(message.BadInvalidState, "%s before the channel is open", t)
	}

	if c.security.SymMaxBodySize == 0 {
		if err := c.computeMaxBodySizes(0); err != nil {
			return nil, 0, err
		}
	}
	if body := uint32(b.Len() - message.SymmetricPrefixSize); body > c.security.SymMaxBodySize {
		return nil, 0, c.tooLargeError(errors.Errorf("%s body of %d bytes exceeds %d", t, body, c.security.SymMaxBodySize))
	}

	if err := message.EncodeHeader(b, t, message.ChunkFinal); err != nil {
		return nil, 0, statusError(message.BadTCPInternalError, err)
	}
	tokenID, _ := c.security.SendingToken()
	if err := b.PutUint32At(message.HeaderSize, c.security.CurrentToken().ChannelID); err != nil {
		return nil, 0, statusError(message.BadTCPInternalError, err)
	}
	if err := b.PutUint32At(message.SecureMessageHeaderSize, tokenID); err != nil {
		return nil, 0, statusError(message.BadTCPInternalError, err)
	}
	return b, message.SymmetricHeadersSize, nil
}

// checkSenderCertificateSize makes sure the local certificate leaves room
// for a body in one OPN chunk.
func checkSenderCertificateSize(c *Connection, sizes cryptoSizes, padding uint16, extra bool) error {
	cfg := c.config
	if !sizes.sign || cfg.Certificate == nil {
		return nil
	}

	room := int(c.sendBufferSize) -
		message.SecureMessageHeaderSize -
		4 - len(cfg.SecurityPolicyURI) -
		4 - // certificate length
		4 - message.ThumbprintSize -
		message.SequenceHeaderSize -
		int(sizes.signature)
	if sizes.encrypt {
		room -= 1 + int(padding)
		if extra {
			room--
		}
	}
	if len(cfg.Certificate.Raw) > room {
		return c.tooLargeError(errors.Errorf("sender certificate of %d bytes leaves no room in %d byte chunk",
			len(cfg.Certificate.Raw), c.sendBufferSize))
	}
	return nil
}
