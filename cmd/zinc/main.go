// zinc is a command-line front for the zinc library: produce a block
// hash list for a file, inspect the delta against one, or synchronize
// a local file to a remote copy reachable through the filesystem.
package main

import (
	"fmt"
	"os"

	"github.com/itchio/headway/state"
	"github.com/urfave/cli/v2"
)

const defaultBlockSize = 8192

func main() {
	app := &cli.App{
		Name:  "zinc",
		Usage: "block-level file synchronization",
		Commands: []*cli.Command{
			signatureCommand,
			diffCommand,
			syncCommand,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zinc: %+v\n", err)
		os.Exit(1)
	}
}

func newConsumer() *state.Consumer {
	return &state.Consumer{
		OnMessage: func(level string, message string) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", level, message)
		},
	}
}

func blockSizeFlag() *cli.Int64Flag {
	return &cli.Int64Flag{
		Name:  "blocksize",
		Value: defaultBlockSize,
		Usage: "block size in bytes",
	}
}

func concurrencyFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "concurrency",
		Usage: "worker count, defaults to the number of CPUs",
	}
}
