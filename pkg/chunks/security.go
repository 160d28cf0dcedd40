package chunks

import (
	"bytes"
	"crypto/x509"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/message"
)

// checkRole rejects message types the local side must never receive.
func (c *Connection) checkRole(h message.Header) error {
	var allowed bool
	switch h.Type {
	case message.MessageTypeHello, message.MessageTypeClose:
		allowed = c.isServer
	case message.MessageTypeAcknowledge, message.MessageTypeError:
		allowed = !c.isServer
	case message.MessageTypeOpen, message.MessageTypeMessage:
		allowed = true
	}
	if !allowed {
		return statusErrorf(message.BadTCPMessageTypeInvalid, "%s not accepted by this side", h.Type)
	}
	if h.Chunk != message.ChunkFinal && h.Type != message.MessageTypeMessage {
		return statusErrorf(message.BadTCPMessageTypeInvalid, "%s must be a final chunk", h.Type)
	}
	return nil
}

// checkChannelID validates the secure channel id of a received message.
func (c *Connection) checkChannelID(t message.MessageType, id uint32) error {
	sec := c.security
	if t == message.MessageTypeOpen && !sec.Established() {
		if c.isServer {
			if id != 0 {
				return statusErrorf(message.BadSecurityChecksFailed, "new channel OPN with channel id %d", id)
			}
			return nil
		}
		if id == 0 {
			return statusErrorf(message.BadSecurityChecksFailed, "OPN response without channel id")
		}
		sec.ClientChannelID = id
		return nil
	}

	if want := sec.CurrentToken().ChannelID; id != want {
		return statusErrorf(message.BadTCPSecureChannelUnknown, "channel id %d, want %d", id, want)
	}
	return nil
}

// checkAsymmetricHeader decodes and validates the security header of an OPN.
// It reports whether the message is signed and encrypted.
//
// A server with no channel configuration checks the header against its
// endpoint and records what it learned for the handshake to consume.
func (m *Manager) checkAsymmetricHeader(c *Connection) (bool, error) {
	b := c.chunk.buffer
	cfg := c.config
	if cfg == nil && (!c.isServer || c.endpoint == nil) {
		return false, statusError(message.BadInvalidState, ErrNotConfigured)
	}

	var h message.AsymmetricSecurityHeader
	if err := h.Decode(b); err != nil {
		return false, statusError(message.BadDecodingError, errors.Wrap(err, "asymmetric security header"))
	}

	var policy channel.SecurityPolicy
	if cfg != nil {
		if h.SecurityPolicyURI != cfg.SecurityPolicyURI {
			return false, statusErrorf(message.BadSecurityPolicyRejected, "policy %q", h.SecurityPolicyURI)
		}
	} else {
		var ok bool
		if policy, ok = c.endpoint.FindPolicy(h.SecurityPolicyURI); !ok {
			return false, statusErrorf(message.BadSecurityPolicyRejected, "policy %q not offered", h.SecurityPolicyURI)
		}
	}
	if c.crypto == nil {
		svc, err := m.newCrypto(h.SecurityPolicyURI)
		if err != nil {
			return false, statusError(message.BadSecurityPolicyRejected, err)
		}
		c.crypto = svc
	}

	// Without a configuration both fields are optional; presence decides.
	toSign, toEncrypt := true, true
	enforce := cfg != nil
	if enforce {
		toSign = IsSigned(cfg.SecurityMode)
		toEncrypt = IsEncrypted(cfg.SecurityMode, true)
	}

	var peer *x509.Certificate
	switch {
	case h.HasSenderCertificate() && !toSign:
		return false, statusErrorf(message.BadCertificateUseNotAllowed, "unexpected sender certificate")
	case h.HasSenderCertificate():
		if cfg != nil && (cfg.PeerCertificate == nil || !bytes.Equal(h.SenderCertificate, cfg.PeerCertificate.Raw)) {
			return false, statusErrorf(message.BadCertificateInvalid, "sender certificate changed")
		}
		cert, err := x509.ParseCertificate(h.SenderCertificate)
		if err != nil {
			return false, statusError(message.BadCertificateInvalid, err)
		}
		if v := c.validator(); v != nil {
			if err := v.Validate(cert); err != nil {
				return false, statusError(message.BadCertificateInvalid, err)
			}
		}
		peer = cert
	case enforce && toSign:
		return false, statusErrorf(message.BadCertificateInvalid, "missing sender certificate")
	}

	switch {
	case h.HasReceiverThumbprint() && !toEncrypt:
		return false, statusErrorf(message.BadCertificateUseNotAllowed, "unexpected receiver thumbprint")
	case h.HasReceiverThumbprint():
		own := c.ownCertificate()
		if own == nil {
			return false, statusErrorf(message.BadCertificateInvalid, "no local certificate")
		}
		if uint32(len(h.ReceiverCertificateThumbprint)) != c.crypto.ThumbprintLength() {
			return false, statusErrorf(message.BadCertificateInvalid, "thumbprint length %d", len(h.ReceiverCertificateThumbprint))
		}
		if !bytes.Equal(h.ReceiverCertificateThumbprint, c.crypto.Thumbprint(own.Raw)) {
			return false, statusErrorf(message.BadCertificateInvalid, "thumbprint does not match local certificate")
		}
	case enforce && toEncrypt:
		return false, statusErrorf(message.BadCertificateInvalid, "missing receiver thumbprint")
	}

	var active bool
	switch {
	case h.HasSenderCertificate() && h.HasReceiverThumbprint():
		active = true
	case !h.HasSenderCertificate() && !h.HasReceiverThumbprint():
		active = false
	default:
		return false, statusErrorf(message.BadCertificateInvalid, "sender certificate and thumbprint must come together")
	}

	if cfg == nil {
		if active && (!policy.AllowsSecurity() || c.crypto.IsNone()) {
			return false, statusErrorf(message.BadSecurityPolicyRejected, "policy %q does not allow security", policy.URI)
		}
		if !active && !policy.AllowsNone() {
			return false, statusErrorf(message.BadSecurityPolicyRejected, "policy %q requires security", policy.URI)
		}
		c.security.SetServerAsymInfo(&channel.ServerAsymInfo{
			ClientCertificate: peer,
			SecurityPolicyURI: policy.URI,
			Modes:             append([]ua.MessageSecurityMode(nil), policy.Modes...),
			SecurityActive:    active,
		})
	}
	return active, nil
}

// checkSymmetricHeader decodes the token id of a MSG or CLO and selects the
// key material. It reports whether the previous token's keys apply.
func (m *Manager) checkSymmetricHeader(c *Connection) (bool, error) {
	if c.config == nil {
		return false, statusError(message.BadSecurityChecksFailed, ErrNotConfigured)
	}

	var h message.SymmetricSecurityHeader
	if err := h.Decode(c.chunk.buffer); err != nil {
		return false, statusError(message.BadDecodingError, err)
	}

	usePrevious, err := c.security.ClassifyToken(h.TokenID, m.clock())
	if err != nil {
		return false, statusError(message.BadSecureChannelTokenUnknown, errors.Wrapf(err, "token %d", h.TokenID))
	}
	return usePrevious, nil
}
