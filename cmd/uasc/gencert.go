package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/backkem/uasc/pkg/pki"
)

func gencertCommand() cli.Command {
	return cli.Command{
		Name:  "gencert",
		Usage: "generate a self-signed application instance certificate",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "cn", Value: "uasc", Usage: "common name"},
			cli.StringFlag{Name: "uri", Value: "urn:uasc:server", Usage: "application URI"},
			cli.IntFlag{Name: "bits", Value: 2048, Usage: "RSA key size"},
			cli.DurationFlag{Name: "validity", Value: 365 * 24 * time.Hour, Usage: "validity period"},
			cli.StringFlag{Name: "cert", Value: "cert.pem", Usage: "write the certificate to `FILE`"},
			cli.StringFlag{Name: "key", Value: "key.pem", Usage: "write the private key to `FILE`"},
		},
		Action: func(c *cli.Context) error {
			cert, key, err := pki.GenerateSelfSigned(c.String("cn"), c.String("uri"), c.Int("bits"), c.Duration("validity"))
			if err != nil {
				return err
			}
			if err := pki.WritePEM(c.String("cert"), c.String("key"), cert, key); err != nil {
				return err
			}
			fmt.Printf("wrote %s and %s\n", c.String("cert"), c.String("key"))
			return nil
		},
	}
}
