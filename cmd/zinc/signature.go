package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/pps83/zinc/blocksource"
	"github.com/pps83/zinc/hashlist"
)

var signatureCommand = &cli.Command{
	Name:      "signature",
	Usage:     "write the block hash list of a file (use - for stdin)",
	ArgsUsage: "<file> <output.zsig>",
	Flags: []cli.Flag{
		blockSizeFlag(),
		concurrencyFlag(),
	},
	Action: doSignature,
}

func doSignature(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("usage: zinc signature <file> <output.zsig>")
	}
	input := c.Args().Get(0)
	output := c.Args().Get(1)

	var list *hashlist.HashList
	if input == "-" {
		var err error
		list, err = hashlist.CalculateStream(os.Stdin, c.Int64("blocksize"), nil, newConsumer())
		if err != nil {
			return err
		}
	} else {
		source, err := blocksource.Open(input)
		if err != nil {
			return err
		}
		defer source.Close()

		list, err = hashlist.Calculate(hashlist.Params{
			Source:      source,
			BlockSize:   c.Int64("blocksize"),
			Concurrency: c.Int("concurrency"),
			Consumer:    newConsumer(),
		})
		if err != nil {
			return err
		}
	}

	return writeHashList(output, list)
}

func writeHashList(path string, list *hashlist.HashList) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	err = enc.Encode(list)
	return errors.WithStack(err)
}

func readHashList(path string) (*hashlist.HashList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	list := &hashlist.HashList{}
	err = json.NewDecoder(f).Decode(list)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return list, nil
}
