package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/pion/logging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/chunks"
	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/message"
)

// capture records what a None client writes on a fresh connection.
func capture(t *testing.T) []byte {
	t.Helper()
	pair, err := chunks.NewTestPair(chunks.TestPairConfig{Mode: ua.MessageSecurityModeNone})
	require.NoError(t, err)
	client, err := pair.Client.Connection(pair.ClientID)
	require.NoError(t, err)

	var out bytes.Buffer
	add := func(typ message.MessageType, body string) {
		b, err := chunks.Encode(pair.Client, pair.ClientID, typ, []byte(body), 0)
		require.NoError(t, err)
		out.Write(b.Bytes())
	}

	add(message.MessageTypeHello, "hello body")
	add(message.MessageTypeOpen, "open request")
	// The server's answer is not part of the capture.
	token := channel.NewSecurityToken(7, 3, time.Now(), time.Hour)
	require.NoError(t, client.Security().InstallToken(token, crypto.KeySets{}))
	add(message.MessageTypeMessage, "read request")
	add(message.MessageTypeClose, "close request")
	return out.Bytes()
}

func TestInspect(t *testing.T) {
	var out strings.Builder
	require.NoError(t, inspect(&out, capture(t), 0, 0))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4, out.String())
	for i, kind := range []string{"Hel", "Opn", "MsgChunk", "Clo"} {
		require.Contains(t, lines[i], " "+kind+" ")
	}
	require.NotContains(t, out.String(), "Failure")
}

func TestInspectWrongChannelID(t *testing.T) {
	var out strings.Builder
	require.NoError(t, inspect(&out, capture(t), 9, 0))
	require.Contains(t, out.String(), "ReceiveFailure")
	require.Contains(t, out.String(), "BadTcpSecureChannelUnknown")
}

func TestInspectGarbage(t *testing.T) {
	var out strings.Builder
	data := append([]byte("XYZF\x10\x00\x00\x00garbage!"), capture(t)...)
	require.NoError(t, inspect(&out, data, 0, 0))

	// The rest of the read is dropped with the bad message.
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Contains(t, lines[0], "BadTcpMessageTypeInvalid")
}

func TestComputeLimits(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		mode ua.MessageSecurityMode
		want bodyLimits
	}{
		{
			name: "none",
			uri:  ua.SecurityPolicyURINone,
			mode: ua.MessageSecurityModeNone,
			want: bodyLimits{
				Asymmetric: 8192 - uint32(message.SecureMessageHeaderSize+4+len(ua.SecurityPolicyURINone)+4+4) - 8,
				Symmetric:  8192 - message.SymmetricHeadersSize - 8,
			},
		},
		{
			name: "none policy ignores the mode",
			uri:  ua.SecurityPolicyURINone,
			mode: ua.MessageSecurityModeSignAndEncrypt,
			want: bodyLimits{
				Asymmetric: 8192 - uint32(message.SecureMessageHeaderSize+4+len(ua.SecurityPolicyURINone)+4+4) - 8,
				Symmetric:  8192 - message.SymmetricHeadersSize - 8,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := computeLimits(tt.uri, tt.mode, 2048, 1024, 8192)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestComputeLimitsSecure(t *testing.T) {
	sign, err := computeLimits(ua.SecurityPolicyURIBasic256Sha256, ua.MessageSecurityModeSign, 2048, 1024, chunks.DefaultSendBufferSize)
	require.NoError(t, err)
	enc, err := computeLimits(ua.SecurityPolicyURIBasic256Sha256, ua.MessageSecurityModeSignAndEncrypt, 2048, 1024, chunks.DefaultSendBufferSize)
	require.NoError(t, err)

	// OPN is encrypted in both modes.
	require.Equal(t, sign.Asymmetric, enc.Asymmetric)
	require.Greater(t, sign.Symmetric, enc.Symmetric)
	require.Greater(t, enc.Asymmetric, uint32(0))

	bigger, err := computeLimits(ua.SecurityPolicyURIBasic256Sha256, ua.MessageSecurityModeSign, 2048, 4096, chunks.DefaultSendBufferSize)
	require.NoError(t, err)
	require.Less(t, bigger.Asymmetric, sign.Asymmetric)

	_, err = computeLimits("urn:unknown", ua.MessageSecurityModeSign, 2048, 1024, chunks.DefaultSendBufferSize)
	require.Error(t, err)
}

func TestStopOnDoneLogsFailure(t *testing.T) {
	var out bytes.Buffer
	lf := logging.NewDefaultLoggerFactory()
	lf.Writer = &out
	lf.DefaultLogLevel = logging.LogLevelWarn

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	stopOnDone(ctx, func() error {
		calls++
		return errors.New("already stopped")
	}, lf.NewLogger("uasc"))

	require.Equal(t, 1, calls)
	require.Contains(t, out.String(), "stop: already stopped")

	out.Reset()
	stopOnDone(ctx, func() error { return nil }, lf.NewLogger("uasc"))
	require.Empty(t, out.String())
}
