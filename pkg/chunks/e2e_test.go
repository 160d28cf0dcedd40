package chunks

import (
	"crypto/x509"
	"encoding/binary"
	"testing"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/require"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/events"
	"github.com/backkem/uasc/pkg/message"
	"github.com/backkem/uasc/pkg/pki"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func body(e events.Event) string {
	return string(e.Buffer.Bytes()[e.Buffer.Position():])
}

func TestE2EOpenAndExchange(t *testing.T) {
	tests := []struct {
		name   string
		policy string
		mode   ua.MessageSecurityMode
	}{
		{"None", ua.SecurityPolicyURINone, ua.MessageSecurityModeNone},
		{"Basic256Sha256 Sign", ua.SecurityPolicyURIBasic256Sha256, ua.MessageSecurityModeSign},
		{"Basic256Sha256 SignAndEncrypt", ua.SecurityPolicyURIBasic256Sha256, ua.MessageSecurityModeSignAndEncrypt},
		{"Aes128Sha256RsaOaep SignAndEncrypt", ua.SecurityPolicyURIAes128Sha256RsaOaep, ua.MessageSecurityModeSignAndEncrypt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := NewTestPair(TestPairConfig{PolicyURI: tt.policy, Mode: tt.mode})
			require.NoError(t, err)
			require.NoError(t, pair.Open(42, 1, time.Hour))

			client, _ := pair.Client.Connection(pair.ClientID)
			server, _ := pair.Server.Connection(pair.ServerID)
			require.Equal(t, uint32(42), client.Security().ClientChannelID)
			require.Equal(t, tt.mode, server.Config().SecurityMode)

			req, err := pair.ClientToServer(message.MessageTypeMessage, []byte("read request"), 0)
			require.NoError(t, err)
			require.Equal(t, events.KindMsgChunk, req.Kind)
			require.Equal(t, message.ChunkFinal, req.Chunk)
			require.Equal(t, "read request", body(req))
			require.Equal(t, uint32(2), req.RequestID)

			res, err := pair.ServerToClient(message.MessageTypeMessage, []byte("read response"), req.RequestID)
			require.NoError(t, err)
			require.Equal(t, "read response", body(res))
			require.Equal(t, req.RequestID, res.RequestID)
			require.Zero(t, client.Security().PendingRequests())

			clo, err := pair.ClientToServer(message.MessageTypeClose, []byte("close"), 0)
			require.NoError(t, err)
			require.Equal(t, events.KindClo, clo.Kind)
			require.Zero(t, client.Security().PendingRequests(), "CLO expects no response")
		})
	}
}

func TestE2EOpenBodyIsDecrypted(t *testing.T) {
	pair, err := NewTestPair(TestPairConfig{})
	require.NoError(t, err)

	out, err := Encode(pair.Client, pair.ClientID, message.MessageTypeOpen, []byte("open request"), 0)
	require.NoError(t, err)
	require.NotContains(t, string(out.Bytes()), "open request")

	h, err := message.DecodeHeader(out.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(out.Len()), h.Size)

	require.NoError(t, pair.Server.OnReceive(pair.ServerID, out.Bytes()))
	e, ok := pair.Server.Events().Pop()
	require.True(t, ok)
	require.Equal(t, events.KindOpn, e.Kind, "event %s: %v", e, e.Err)
	require.Equal(t, "open request", body(e))

	server, _ := pair.Server.Connection(pair.ServerID)
	info := server.Security().TakeServerAsymInfo()
	require.NotNil(t, info)
	require.True(t, info.SecurityActive)
	require.Equal(t, ua.SecurityPolicyURIBasic256Sha256, info.SecurityPolicyURI)
	require.True(t, info.ClientCertificate.Equal(pair.ClientConfig.Certificate))
}

func TestE2EReplayRejected(t *testing.T) {
	pair, err := NewTestPair(TestPairConfig{})
	require.NoError(t, err)
	require.NoError(t, pair.Open(1, 1, time.Hour))

	out, err := Encode(pair.Client, pair.ClientID, message.MessageTypeMessage, []byte("once"), 0)
	require.NoError(t, err)
	raw := append([]byte(nil), out.Bytes()...)

	require.NoError(t, pair.Server.OnReceive(pair.ServerID, raw))
	e, _ := pair.Server.Events().Pop()
	require.Equal(t, events.KindMsgChunk, e.Kind)

	require.NoError(t, pair.Server.OnReceive(pair.ServerID, raw))
	e = popFailure(t, pair.Server)
	require.Equal(t, message.BadSecurityChecksFailed, e.Status)
}

func TestE2ETamperedMessageRejected(t *testing.T) {
	for _, mode := range []ua.MessageSecurityMode{ua.MessageSecurityModeSign, ua.MessageSecurityModeSignAndEncrypt} {
		pair, err := NewTestPair(TestPairConfig{Mode: mode})
		require.NoError(t, err)
		require.NoError(t, pair.Open(1, 1, time.Hour))

		out, err := Encode(pair.Client, pair.ClientID, message.MessageTypeMessage, []byte("payload"), 0)
		require.NoError(t, err)
		raw := out.Bytes()
		raw[message.SymmetricPrefixSize] ^= 0x01

		require.NoError(t, pair.Server.OnReceive(pair.ServerID, raw))
		e := popFailure(t, pair.Server)
		require.Equal(t, message.BadSecurityChecksFailed, e.Status, mode)
	}
}

func TestE2EUnknownRequestID(t *testing.T) {
	pair, err := NewTestPair(TestPairConfig{Mode: ua.MessageSecurityModeNone})
	require.NoError(t, err)
	require.NoError(t, pair.Open(1, 1, time.Hour))

	req, err := pair.ClientToServer(message.MessageTypeMessage, []byte("request"), 0)
	require.NoError(t, err)

	_, err = pair.ServerToClient(message.MessageTypeMessage, []byte("stray"), req.RequestID+100)
	require.ErrorIs(t, err, message.BadSecurityChecksFailed)
	require.ErrorIs(t, err, channel.ErrRequestUnknown)

	_, err = pair.ServerToClient(message.MessageTypeOpen, []byte("wrong type"), req.RequestID)
	require.ErrorIs(t, err, channel.ErrRequestTypeMismatch)

	res, err := pair.ServerToClient(message.MessageTypeMessage, []byte("response"), req.RequestID)
	require.NoError(t, err)
	require.Equal(t, req.RequestID, res.RequestID)

	client, _ := pair.Client.Connection(pair.ClientID)
	require.Zero(t, client.Security().PendingRequests())
}

func TestE2EWrongChannelID(t *testing.T) {
	pair, err := NewTestPair(TestPairConfig{Mode: ua.MessageSecurityModeNone})
	require.NoError(t, err)
	require.NoError(t, pair.Open(9, 1, time.Hour))

	out, err := Encode(pair.Client, pair.ClientID, message.MessageTypeMessage, []byte("x"), 0)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(out.Bytes()[message.HeaderSize:], 10)

	require.NoError(t, pair.Server.OnReceive(pair.ServerID, out.Bytes()))
	e := popFailure(t, pair.Server)
	require.Equal(t, message.BadTCPSecureChannelUnknown, e.Status)
}

func TestE2ETokenRenewal(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	pair, err := NewTestPair(TestPairConfig{Clock: clock.Now})
	require.NoError(t, err)
	require.NoError(t, pair.Open(5, 1, time.Hour))

	req, err := pair.ClientToServer(message.MessageTypeMessage, []byte("request"), 0)
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	require.NoError(t, pair.Open(5, 2, time.Hour))

	client, _ := pair.Client.Connection(pair.ClientID)
	server, _ := pair.Server.Connection(pair.ServerID)
	require.Equal(t, channel.TokenTransitioningToNew, client.Security().TokenState())
	require.Equal(t, channel.TokenUsingPrevious, server.Security().TokenState())

	// Token 1 ended at 60 minutes and its grace period at 75.
	clock.Advance(35 * time.Minute)
	_, err = pair.ServerToClient(message.MessageTypeMessage, []byte("too late"), req.RequestID)
	require.ErrorIs(t, err, message.BadSecureChannelTokenUnknown)
	require.Equal(t, channel.TokenUsingNew, client.Security().TokenState())
	require.False(t, client.Security().PreviousToken().IsRecorded())

	next, err := pair.ClientToServer(message.MessageTypeMessage, []byte("new keys"), 0)
	require.NoError(t, err)
	require.Equal(t, "new keys", body(next))
	require.Equal(t, channel.TokenUsingNew, server.Security().TokenState())

	tokenID, _ := server.Security().SendingToken()
	require.Equal(t, uint32(2), tokenID)
}

func TestE2EClientAcceptsPreviousTokenDuringRenewal(t *testing.T) {
	pair, err := NewTestPair(TestPairConfig{})
	require.NoError(t, err)
	require.NoError(t, pair.Open(5, 1, time.Hour))

	req, err := pair.ClientToServer(message.MessageTypeMessage, []byte("request"), 0)
	require.NoError(t, err)

	require.NoError(t, pair.Open(5, 2, time.Hour))

	// The server still answers with token 1.
	out, err := Encode(pair.Server, pair.ServerID, message.MessageTypeMessage, []byte("response"), req.RequestID)
	require.NoError(t, err)
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(out.Bytes()[message.SecureMessageHeaderSize:]))

	require.NoError(t, pair.Client.OnReceive(pair.ClientID, out.Bytes()))
	e, ok := pair.Client.Events().Pop()
	require.True(t, ok)
	require.Equal(t, events.KindMsgChunk, e.Kind, "event %s: %v", e, e.Err)
	require.Equal(t, "response", body(e))
}

func TestE2EExpiredToken(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	pair, err := NewTestPair(TestPairConfig{Mode: ua.MessageSecurityModeNone, Clock: clock.Now})
	require.NoError(t, err)
	require.NoError(t, pair.Open(1, 1, time.Minute))

	clock.Advance(2 * time.Minute)
	_, err = pair.ClientToServer(message.MessageTypeMessage, []byte("late"), 0)
	require.ErrorIs(t, err, message.BadSecureChannelTokenUnknown)
}

func TestE2EUntrustedClientCertificate(t *testing.T) {
	pair, err := NewTestPair(TestPairConfig{})
	require.NoError(t, err)
	pair.Endpoint.PKI = pki.NewStore(pki.StoreConfig{Trusted: []*x509.Certificate{}})

	e, err := pair.ClientToServer(message.MessageTypeOpen, []byte("open"), 0)
	require.Error(t, err)
	// Security errors before the channel exists are reported generically.
	require.Equal(t, message.BadSecurityChecksFailed, e.Status)
	require.ErrorIs(t, err, message.BadCertificateInvalid)
	require.ErrorIs(t, err, pki.ErrNotTrusted)
}

func TestE2EPolicyNotOffered(t *testing.T) {
	pair, err := NewTestPair(TestPairConfig{})
	require.NoError(t, err)
	pair.Endpoint.SecurityPolicies[0].URI = ua.SecurityPolicyURIAes256Sha256RsaPss

	e, err := pair.ClientToServer(message.MessageTypeOpen, []byte("open"), 0)
	require.Error(t, err)
	require.Equal(t, message.BadSecurityChecksFailed, e.Status)
	require.ErrorIs(t, err, message.BadSecurityPolicyRejected)
}

func TestE2EClientRejectsSwappedServerCertificate(t *testing.T) {
	pair, err := NewTestPair(TestPairConfig{})
	require.NoError(t, err)

	e, err := pair.ClientToServer(message.MessageTypeOpen, []byte("open"), 0)
	require.NoError(t, err)
	server, _ := pair.Server.Connection(pair.ServerID)
	info := server.Security().TakeServerAsymInfo()
	require.NoError(t, pair.Server.Configure(pair.ServerID, pair.Endpoint.ChannelConfig(info, ua.MessageSecurityModeSignAndEncrypt)))
	require.NoError(t, server.Security().InstallToken(channel.NewSecurityToken(3, 1, time.Now(), time.Hour), crypto.KeySets{}))

	// The server answers with a certificate the client was not configured with.
	other, otherKey, err := pki.GenerateSelfSigned("impostor", "urn:uasc:test:impostor", 2048, time.Hour)
	require.NoError(t, err)
	server.Config().Certificate = other
	server.Config().PrivateKey = otherKey

	_, err = pair.ServerToClient(message.MessageTypeOpen, []byte("open response"), e.RequestID)
	require.ErrorIs(t, err, message.BadSecurityChecksFailed)
	require.ErrorIs(t, err, message.BadCertificateInvalid)
}

// openWithHeader builds an unsecured OPN for a new channel carrying the
// given asymmetric security header.
func openWithHeader(t *testing.T, h message.AsymmetricSecurityHeader) []byte {
	t.Helper()
	b := message.NewBuffer(DefaultReceiveBufferSize)
	require.NoError(t, message.EncodeHeader(b, message.MessageTypeOpen, message.ChunkFinal))
	require.NoError(t, b.WriteUint32(0))
	require.NoError(t, h.Encode(b))
	require.NoError(t, b.WriteUint32(1))
	require.NoError(t, b.WriteUint32(1))
	require.NoError(t, b.Write([]byte("open request")))
	require.NoError(t, message.PatchMessageSize(b, uint32(b.Len())))
	return b.Bytes()
}

func TestE2ECertificateAndThumbprintMustComeTogether(t *testing.T) {
	tests := []struct {
		name       string
		cert       bool
		thumbprint bool
	}{
		{"sender certificate only", true, false},
		{"receiver thumbprint only", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := NewTestPair(TestPairConfig{})
			require.NoError(t, err)

			h := message.AsymmetricSecurityHeader{SecurityPolicyURI: pair.ClientConfig.SecurityPolicyURI}
			if tt.cert {
				h.SenderCertificate = pair.ClientConfig.Certificate.Raw
			}
			if tt.thumbprint {
				h.ReceiverCertificateThumbprint = crypto.ThumbprintSlice(pair.Endpoint.Certificate.Raw)
			}
			require.NoError(t, pair.Server.OnReceive(pair.ServerID, openWithHeader(t, h)))

			e, ok := pair.Server.Events().Pop()
			require.True(t, ok)
			require.Equal(t, events.KindReceiveFailure, e.Kind)
			require.Equal(t, message.BadSecurityChecksFailed, e.Status)
			require.ErrorIs(t, e.Err, message.BadCertificateInvalid)
			require.Zero(t, pair.Server.Events().Len())

			// The connection still accepts a well-formed OPN.
			e, err = pair.ClientToServer(message.MessageTypeOpen, []byte("open request"), 0)
			require.NoError(t, err)
			require.Equal(t, events.KindOpn, e.Kind)
		})
	}
}
