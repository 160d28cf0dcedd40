package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/chunks"
	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/events"
	"github.com/backkem/uasc/pkg/message"
)

func inspectCommand() cli.Command {
	return cli.Command{
		Name:      "inspect",
		Usage:     "decode a captured client to server byte stream secured with policy None",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			cli.UintFlag{
				Name:  "channel-id",
				Usage: "secure channel id assigned by the server (default: taken from the first MSG)",
			},
			cli.UintFlag{
				Name:  "token-id",
				Usage: "security token id assigned by the server (default: taken from the first MSG)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.ShowCommandHelp(c, "inspect")
			}
			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return errors.Wrap(err, "read capture")
			}
			return inspect(os.Stdout, data, uint32(c.Uint("channel-id")), uint32(c.Uint("token-id")))
		},
	}
}

// inspect feeds data one message at a time through a server side codec and
// prints one line per event. After an OPN the token is installed with the
// given ids, or the ids found in the next symmetric message.
func inspect(w io.Writer, data []byte, channelID, tokenID uint32) error {
	ep := &channel.EndpointConfig{SecurityPolicies: []channel.SecurityPolicy{{
		URI:   ua.SecurityPolicyURINone,
		Modes: []ua.MessageSecurityMode{ua.MessageSecurityModeNone},
	}}}
	m := chunks.NewManager(chunks.Config{})
	id, err := m.AddConnection(chunks.ConnectionConfig{IsServer: true, Endpoint: ep})
	if err != nil {
		return err
	}
	conn, err := m.Connection(id)
	if err != nil {
		return err
	}

	opened := false
	for off := 0; off < len(data); {
		n := len(data) - off
		h, herr := message.DecodeHeader(data[off:])
		if herr == nil && int(h.Size) <= n {
			n = int(h.Size)
		}

		if opened && herr == nil && h.Type.IsSymmetric() && n >= message.SymmetricHeadersSize {
			cid, tid := channelID, tokenID
			if cid == 0 {
				cid = binary.LittleEndian.Uint32(data[off+message.HeaderSize:])
			}
			if tid == 0 {
				tid = binary.LittleEndian.Uint32(data[off+message.SecureMessageHeaderSize:])
			}
			token := channel.NewSecurityToken(cid, tid, time.Now(), time.Hour)
			if err := conn.Security().InstallToken(token, crypto.KeySets{}); err != nil {
				return err
			}
			opened = false
		}

		if err := m.OnReceive(id, data[off:off+n]); err != nil {
			return err
		}
		for _, e := range m.Events().Drain() {
			if e.Kind.IsFailure() {
				fmt.Fprintf(w, "%8d %s: %v\n", off, e, e.Err)
				continue
			}
			fmt.Fprintf(w, "%8d %s\n", off, e)
			if e.Kind == events.KindOpn && conn.Config() == nil {
				info := conn.Security().TakeServerAsymInfo()
				if err := m.Configure(id, ep.ChannelConfig(info, ua.MessageSecurityModeNone)); err != nil {
					return err
				}
				opened = true
			}
		}
		off += n
	}
	return nil
}
