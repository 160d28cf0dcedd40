// Package channel holds the per-connection state of an OPC UA secure
// channel: the negotiated configuration, the current and previous security
// tokens with their key material, and the sequence number and request id
// counters.
//
// The state is read and mutated by the chunk codec while it processes one
// message at a time. Deciding when a channel is opened, renewed or closed is
// left to the owner of the SecurityContext.
package channel

import (
	"crypto/rsa"
	"crypto/x509"

	"github.com/awcullen/opcua/ua"
)

// CertificateValidator decides whether a peer certificate is trusted.
type CertificateValidator interface {
	Validate(cert *x509.Certificate) error
}

// Config is the negotiated configuration of one secure channel.
type Config struct {
	SecurityMode      ua.MessageSecurityMode
	SecurityPolicyURI string

	// Certificate and PrivateKey are the local application instance
	// credentials. Required unless the mode is None.
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey

	// PeerCertificate is the certificate of the other side. A client sets
	// it from the endpoint description; a server learns it from the first OPN.
	PeerCertificate *x509.Certificate

	// PKI validates certificates received in OPN messages.
	PKI CertificateValidator
}

// IsSecure reports whether messages are signed.
func (c *Config) IsSecure() bool {
	return c.SecurityMode == ua.MessageSecurityModeSign ||
		c.SecurityMode == ua.MessageSecurityModeSignAndEncrypt
}

// SecurityPolicy is one security policy offered by a server endpoint with
// the message security modes allowed for it.
type SecurityPolicy struct {
	URI   string
	Modes []ua.MessageSecurityMode
}

// Allows reports whether mode is allowed for the policy.
func (p SecurityPolicy) Allows(mode ua.MessageSecurityMode) bool {
	for _, m := range p.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// AllowsSecurity reports whether Sign or SignAndEncrypt is allowed.
func (p SecurityPolicy) AllowsSecurity() bool {
	return p.Allows(ua.MessageSecurityModeSign) || p.Allows(ua.MessageSecurityModeSignAndEncrypt)
}

// AllowsNone reports whether mode None is allowed.
func (p SecurityPolicy) AllowsNone() bool {
	return p.Allows(ua.MessageSecurityModeNone)
}

// EndpointConfig is the configuration of a server endpoint. It is consulted
// when a client opens a brand-new channel.
type EndpointConfig struct {
	Certificate      *x509.Certificate
	PrivateKey       *rsa.PrivateKey
	PKI              CertificateValidator
	SecurityPolicies []SecurityPolicy
}

// FindPolicy returns the first configured policy with the given URI.
func (e *EndpointConfig) FindPolicy(uri string) (SecurityPolicy, bool) {
	for _, p := range e.SecurityPolicies {
		if p.URI == uri {
			return p, true
		}
	}
	return SecurityPolicy{}, false
}

// ChannelConfig builds the channel configuration a server adopts once the
// opening handshake captured in info completes with the given mode.
func (e *EndpointConfig) ChannelConfig(info *ServerAsymInfo, mode ua.MessageSecurityMode) *Config {
	return &Config{
		SecurityMode:      mode,
		SecurityPolicyURI: info.SecurityPolicyURI,
		Certificate:       e.Certificate,
		PrivateKey:        e.PrivateKey,
		PeerCertificate:   info.ClientCertificate,
		PKI:               e.PKI,
	}
}

// ServerAsymInfo is captured while a server receives the OPN of a brand-new
// channel and consumed once when the handshake completes.
type ServerAsymInfo struct {
	ClientCertificate *x509.Certificate
	SecurityPolicyURI string

	// Modes are the modes the matched endpoint policy allows.
	Modes []ua.MessageSecurityMode

	// SecurityActive is true when the OPN carried certificates.
	SecurityActive bool
}
