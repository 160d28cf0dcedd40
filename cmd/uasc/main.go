// uasc runs and inspects OPC UA secure conversation endpoints.
//
// Usage:
//
//	uasc serve   [-c uasc.yaml] [--listen ADDR] [--level LEVEL]
//	uasc inspect [--channel-id N] [--token-id N] FILE
//	uasc limits  [--policy NAME] [--mode MODE] [--key-bits N] [--buffer N]
//	uasc gencert [--cn NAME] [--uri URI] [--cert FILE] [--key FILE]
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "uasc"
	app.Usage = "OPC UA secure conversation endpoint"
	app.Version = version
	app.Commands = []cli.Command{
		serveCommand(),
		inspectCommand(),
		limitsCommand(),
		gencertCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
