package chunks

import (
	"crypto/rand"
	"crypto/x509"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/connection"
	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/events"
	"github.com/backkem/uasc/pkg/message"
	"github.com/backkem/uasc/pkg/pki"
)

// =============================================================================
// Exported Test Infrastructure for E2E Testing
// =============================================================================

// TestPair is a client Manager and a server Manager with one connection each,
// wired back to back without a transport. Bytes produced by Send on one side
// are fed to OnReceive of the other by the helper methods.
//
// Usage:
//
//	pair, _ := chunks.NewTestPair(chunks.TestPairConfig{})
//	_ = pair.Open(1, 1, time.Hour)
//	e, _ := pair.ClientToServer(message.MessageTypeMessage, []byte("read"), 0)
type TestPair struct {
	Client, Server     *Manager
	ClientID, ServerID connection.ID

	ClientConfig *channel.Config
	Endpoint     *channel.EndpointConfig
}

// TestPairConfig configures a TestPair.
type TestPairConfig struct {
	// PolicyURI defaults to Basic256Sha256.
	PolicyURI string

	// Mode defaults to SignAndEncrypt. None forces the None policy.
	Mode ua.MessageSecurityMode

	// Clock is shared by both managers.
	Clock func() time.Time

	// KeyBits is the RSA key size of the generated certificates.
	// Default: 2048
	KeyBits int

	// SendBufferSize and ReceiveBufferSize apply to both sides.
	SendBufferSize    uint32
	ReceiveBufferSize uint32
}

// NewTestPair creates the two managers and their certificates.
func NewTestPair(config TestPairConfig) (*TestPair, error) {
	if config.Mode == 0 {
		config.Mode = ua.MessageSecurityModeSignAndEncrypt
	}
	if config.PolicyURI == "" {
		config.PolicyURI = ua.SecurityPolicyURIBasic256Sha256
	}
	if config.Mode == ua.MessageSecurityModeNone {
		config.PolicyURI = ua.SecurityPolicyURINone
	}
	if config.KeyBits == 0 {
		config.KeyBits = 2048
	}

	clientCert, clientKey, err := pki.GenerateSelfSigned("test client", "urn:uasc:test:client", config.KeyBits, time.Hour)
	if err != nil {
		return nil, err
	}
	serverCert, serverKey, err := pki.GenerateSelfSigned("test server", "urn:uasc:test:server", config.KeyBits, time.Hour)
	if err != nil {
		return nil, err
	}

	p := &TestPair{
		Client: NewManager(Config{Clock: config.Clock}),
		Server: NewManager(Config{Clock: config.Clock}),
		ClientConfig: &channel.Config{
			SecurityMode:      config.Mode,
			SecurityPolicyURI: config.PolicyURI,
			Certificate:       clientCert,
			PrivateKey:        clientKey,
			PeerCertificate:   serverCert,
			PKI:               pki.NewStore(pki.StoreConfig{Trusted: []*x509.Certificate{serverCert}}),
		},
		Endpoint: &channel.EndpointConfig{
			Certificate: serverCert,
			PrivateKey:  serverKey,
			PKI:         pki.NewStore(pki.StoreConfig{Trusted: []*x509.Certificate{clientCert}}),
			SecurityPolicies: []channel.SecurityPolicy{{
				URI:   config.PolicyURI,
				Modes: []ua.MessageSecurityMode{config.Mode},
			}},
		},
	}

	p.ClientID, err = p.Client.AddConnection(ConnectionConfig{
		Channel:           p.ClientConfig,
		SendBufferSize:    config.SendBufferSize,
		ReceiveBufferSize: config.ReceiveBufferSize,
	})
	if err != nil {
		return nil, err
	}
	p.ServerID, err = p.Server.AddConnection(ConnectionConfig{
		IsServer:          true,
		Endpoint:          p.Endpoint,
		SendBufferSize:    config.SendBufferSize,
		ReceiveBufferSize: config.ReceiveBufferSize,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Open runs an OPN exchange and installs the token on both sides. Calling it
// on an open channel renews the token.
func (p *TestPair) Open(channelID, tokenID uint32, lifetime time.Duration) error {
	client, err := p.Client.Connection(p.ClientID)
	if err != nil {
		return err
	}
	server, err := p.Server.Connection(p.ServerID)
	if err != nil {
		return err
	}

	e, err := p.ClientToServer(message.MessageTypeOpen, []byte("open request"), 0)
	if err != nil {
		return err
	}
	if e.Kind != events.KindOpn {
		return errors.Errorf("server got %s, want OPN", e.Kind)
	}

	if server.Config() == nil {
		info := server.Security().TakeServerAsymInfo()
		if info == nil {
			return errors.New("server recorded no OPN security info")
		}
		if err := p.Server.Configure(p.ServerID, p.Endpoint.ChannelConfig(info, p.ClientConfig.SecurityMode)); err != nil {
			return err
		}
	}

	clientNonce, serverNonce, err := nonces(client.Crypto())
	if err != nil {
		return err
	}
	serverKeys, err := crypto.DeriveKeySets(server.Crypto(), clientNonce, serverNonce, false)
	if err != nil {
		return err
	}
	now := p.Server.clock()
	if err := server.Security().InstallToken(channel.NewSecurityToken(channelID, tokenID, now, lifetime), serverKeys); err != nil {
		return err
	}

	if e, err = p.ServerToClient(message.MessageTypeOpen, []byte("open response"), e.RequestID); err != nil {
		return err
	}
	if e.Kind != events.KindOpn {
		return errors.Errorf("client got %s, want OPN", e.Kind)
	}

	clientKeys, err := crypto.DeriveKeySets(client.Crypto(), clientNonce, serverNonce, true)
	if err != nil {
		return err
	}
	return client.Security().InstallToken(channel.NewSecurityToken(channelID, tokenID, now, lifetime), clientKeys)
}

func nonces(s crypto.Service) ([]byte, []byte, error) {
	client := make([]byte, s.NonceLength())
	server := make([]byte, s.NonceLength())
	if _, err := rand.Read(client); err != nil {
		return nil, nil, err
	}
	if _, err := rand.Read(server); err != nil {
		return nil, nil, err
	}
	return client, server, nil
}

// ClientToServer sends a message from the client and returns the event the
// server produced for it.
func (p *TestPair) ClientToServer(t message.MessageType, body []byte, requestID uint32) (events.Event, error) {
	return transfer(p.Client, p.ClientID, p.Server, p.ServerID, t, body, requestID)
}

// ServerToClient sends a message from the server and returns the event the
// client produced for it.
func (p *TestPair) ServerToClient(t message.MessageType, body []byte, requestID uint32) (events.Event, error) {
	return transfer(p.Server, p.ServerID, p.Client, p.ClientID, t, body, requestID)
}

// Encode builds a message on the given side without delivering it.
func Encode(m *Manager, id connection.ID, t message.MessageType, body []byte, requestID uint32) (*message.Buffer, error) {
	c, err := m.Connection(id)
	if err != nil {
		return nil, err
	}
	b := NewMessageBuffer(t, int(c.SendBufferSize()))
	if err := b.Write(body); err != nil {
		return nil, err
	}
	return m.Send(id, SendRequest{Type: t, Body: b, RequestID: requestID})
}

func transfer(from *Manager, fromID connection.ID, to *Manager, toID connection.ID, t message.MessageType, body []byte, requestID uint32) (events.Event, error) {
	out, err := Encode(from, fromID, t, body, requestID)
	if err != nil {
		return events.Event{}, err
	}
	if err := to.OnReceive(toID, out.Bytes()); err != nil {
		return events.Event{}, err
	}
	e, ok := to.Events().Pop()
	if !ok {
		return events.Event{}, errors.New("no event delivered")
	}
	if e.Kind.IsFailure() {
		return e, e.Err
	}
	return e, nil
}
