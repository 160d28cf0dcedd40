package main

import (
	"crypto/rsa"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/awcullen/opcua/ua"
	"github.com/urfave/cli"

	"github.com/backkem/uasc/pkg/chunks"
	"github.com/backkem/uasc/pkg/config"
	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/message"
)

func limitsCommand() cli.Command {
	return cli.Command{
		Name:  "limits",
		Usage: "print the largest OPN and MSG bodies that fit one chunk",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "policy", Value: "Basic256Sha256", Usage: "security policy `NAME` or URI"},
			cli.StringFlag{Name: "mode", Value: "SignAndEncrypt", Usage: "security `MODE`"},
			cli.IntFlag{Name: "key-bits", Value: 2048, Usage: "RSA key size of both certificates"},
			cli.IntFlag{Name: "cert-size", Value: 1024, Usage: "DER size of the sender certificate"},
			cli.UintFlag{Name: "buffer", Value: chunks.DefaultSendBufferSize, Usage: "send buffer size"},
		},
		Action: func(c *cli.Context) error {
			uri, err := config.ParsePolicyURI(c.String("policy"))
			if err != nil {
				return err
			}
			mode, err := config.ParseSecurityMode(c.String("mode"))
			if err != nil {
				return err
			}
			return limits(os.Stdout, uri, mode, c.Int("key-bits"), c.Int("cert-size"), uint32(c.Uint("buffer")))
		},
	}
}

// bodyLimits holds the computed maxima.
type bodyLimits struct {
	Asymmetric uint32
	Symmetric  uint32
}

func computeLimits(uri string, mode ua.MessageSecurityMode, keyBits, certSize int, buffer uint32) (bodyLimits, error) {
	s, err := crypto.NewProvider(uri)
	if err != nil {
		return bodyLimits{}, err
	}
	if s.IsNone() {
		mode = ua.MessageSecurityModeNone
	}

	h := message.AsymmetricSecurityHeader{SecurityPolicyURI: uri}
	if chunks.IsSigned(mode) {
		h.SenderCertificate = make([]byte, certSize)
	}
	if chunks.IsEncrypted(mode, true) {
		h.ReceiverCertificateThumbprint = make([]byte, s.ThumbprintLength())
	}
	asymHeader := uint32(message.SecureMessageHeaderSize + h.Size())

	var l bodyLimits
	if !chunks.IsSigned(mode) {
		l.Asymmetric = chunks.MaxBodySize(buffer, asymHeader, false, false, 0, 0, 0)
		l.Symmetric = chunks.MaxBodySize(buffer, message.SymmetricHeadersSize, false, false, 0, 0, 0)
		return l, nil
	}

	// Only the modulus length matters for the sizes.
	key := &rsa.PublicKey{N: new(big.Int).Lsh(big.NewInt(1), uint(keyBits-1)), E: 65537}
	cipher, plain, err := s.AsymmetricBlockSizes(key)
	if err != nil {
		return bodyLimits{}, err
	}
	sig, err := s.AsymmetricSignatureLength(key)
	if err != nil {
		return bodyLimits{}, err
	}
	l.Asymmetric = chunks.MaxBodySize(buffer, asymHeader, true, true, cipher, plain, sig)

	encrypt := chunks.IsEncrypted(mode, false)
	cipher, plain = s.SymmetricBlockSizes()
	l.Symmetric = chunks.MaxBodySize(buffer, message.SymmetricHeadersSize, encrypt, true, cipher, plain, s.SymmetricSignatureLength())
	return l, nil
}

func limits(w io.Writer, uri string, mode ua.MessageSecurityMode, keyBits, certSize int, buffer uint32) error {
	l, err := computeLimits(uri, mode, keyBits, certSize, buffer)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "policy:   %s\n", uri)
	fmt.Fprintf(w, "mode:     %v\n", mode)
	fmt.Fprintf(w, "buffer:   %d\n", buffer)
	fmt.Fprintf(w, "OPN body: %d\n", l.Asymmetric)
	fmt.Fprintf(w, "MSG body: %d\n", l.Symmetric)
	return nil
}
