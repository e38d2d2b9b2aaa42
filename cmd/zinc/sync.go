package main

import (
	"os"

	"github.com/itchio/headway/united"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/pps83/zinc"
	"github.com/pps83/zinc/counter"
)

var syncCommand = &cli.Command{
	Name:      "sync",
	Usage:     "make a local file identical to a remote one, moving as little data as possible",
	ArgsUsage: "<localfile> <remotefile>",
	Flags: []cli.Flag{
		blockSizeFlag(),
		concurrencyFlag(),
	},
	Action: doSync,
}

func doSync(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("usage: zinc sync <localfile> <remotefile>")
	}
	localPath := c.Args().Get(0)
	remotePath := c.Args().Get(1)
	consumer := newConsumer()

	local, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	remote, err := os.ReadFile(remotePath)
	if err != nil {
		return errors.WithStack(err)
	}

	result, err := zinc.Sync(local, remote, c.Int64("blocksize"), c.Int("concurrency"))
	if err != nil {
		return err
	}

	f, err := os.Create(localPath)
	if err != nil {
		return errors.WithStack(err)
	}
	cw := counter.NewWriter(f)
	_, err = cw.Write(result)
	if err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	err = f.Close()
	if err != nil {
		return errors.WithStack(err)
	}

	consumer.Infof("wrote %s to %s", united.FormatBytes(cw.Count()), localPath)
	return nil
}
