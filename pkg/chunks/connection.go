package chunks

import (
	"crypto/rsa"
	"crypto/x509"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/connection"
	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/message"
)

// Default transport buffer sizes.
const (
	DefaultReceiveBufferSize = 65535
	DefaultSendBufferSize    = 65535

	// MinBufferSize is the smallest buffer size a connection accepts.
	MinBufferSize = 8192
)

// ConnectionConfig describes a connection handed to the Manager.
type ConnectionConfig struct {
	IsServer bool

	// Channel is the channel configuration. A client must set it; a server
	// leaves it nil until the opening handshake picked one.
	Channel *channel.Config

	// Endpoint is consulted by a server when an OPN arrives before Channel
	// is set.
	Endpoint *channel.EndpointConfig

	// ReceiveBufferSize and SendBufferSize bound a single chunk. Zero
	// uses the defaults.
	ReceiveBufferSize uint32
	SendBufferSize    uint32
}

// Connection is the codec state of one transport connection.
//
// A Connection is not safe for concurrent use: all receive and send calls
// for it must be serialized by the owner.
type Connection struct {
	id       connection.ID
	isServer bool

	config   *channel.Config
	endpoint *channel.EndpointConfig
	crypto   crypto.Service
	security *channel.SecurityContext

	receiveBufferSize uint32
	sendBufferSize    uint32

	chunk chunkContext
}

// chunkContext is the chunk being reassembled.
type chunkContext struct {
	buffer *message.Buffer
	header message.Header
}

func (c *chunkContext) reset() {
	c.buffer = nil
	c.header = message.Header{}
}

func (c *chunkContext) headerComplete() bool {
	return c.buffer != nil && c.buffer.Len() >= message.HeaderSize
}

// ID returns the connection id.
func (c *Connection) ID() connection.ID {
	return c.id
}

// IsServer reports whether this is the server side.
func (c *Connection) IsServer() bool {
	return c.isServer
}

// Config returns the channel configuration, or nil before a server adopted one.
func (c *Connection) Config() *channel.Config {
	return c.config
}

// Security returns the token and sequencing state.
func (c *Connection) Security() *channel.SecurityContext {
	return c.security
}

// Crypto returns the security policy implementation, or nil before one is
// known.
func (c *Connection) Crypto() crypto.Service {
	return c.crypto
}

// ReceiveBufferSize returns the largest chunk accepted.
func (c *Connection) ReceiveBufferSize() uint32 {
	return c.receiveBufferSize
}

// SendBufferSize returns the largest chunk produced.
func (c *Connection) SendBufferSize() uint32 {
	return c.sendBufferSize
}

// SetBufferSizes applies the sizes negotiated by HEL and ACK. Cached body
// limits are recomputed on the next send.
func (c *Connection) SetBufferSizes(receive, send uint32) error {
	if receive < MinBufferSize || send < MinBufferSize {
		return ErrBufferTooSmall
	}
	c.receiveBufferSize = receive
	c.sendBufferSize = send
	c.security.AsymMaxBodySize = 0
	c.security.SymMaxBodySize = 0
	return nil
}

// ownCertificate returns the local certificate in use.
func (c *Connection) ownCertificate() *x509.Certificate {
	if c.config != nil {
		return c.config.Certificate
	}
	if c.endpoint != nil {
		return c.endpoint.Certificate
	}
	return nil
}

// ownPrivateKey returns the local private key in use.
func (c *Connection) ownPrivateKey() *rsa.PrivateKey {
	if c.config != nil {
		return c.config.PrivateKey
	}
	if c.endpoint != nil {
		return c.endpoint.PrivateKey
	}
	return nil
}

// peerCertificate returns the certificate of the other side. On a server
// opening a new channel it is the one captured from the OPN being processed.
func (c *Connection) peerCertificate() *x509.Certificate {
	if c.isServer && c.config == nil {
		if info := c.security.ServerAsymInfo(); info != nil {
			return info.ClientCertificate
		}
		return nil
	}
	if c.config != nil {
		return c.config.PeerCertificate
	}
	return nil
}

func (c *Connection) validator() channel.CertificateValidator {
	if c.config != nil && c.config.PKI != nil {
		return c.config.PKI
	}
	if c.endpoint != nil {
		return c.endpoint.PKI
	}
	return nil
}

// tooLargeError wraps err with the status reported for an oversized
// outgoing message.
func (c *Connection) tooLargeError(err error) error {
	if c.isServer {
		return statusError(message.BadResponseTooLarge, err)
	}
	return statusError(message.BadRequestTooLarge, err)
}
