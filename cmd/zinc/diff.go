package main

import (
	"fmt"

	"github.com/itchio/headway/united"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/pps83/zinc/blocksource"
	"github.com/pps83/zinc/delta"
)

var diffCommand = &cli.Command{
	Name:      "diff",
	Usage:     "resolve a local file against a hash list and print what would move",
	ArgsUsage: "<localfile> <signature.zsig>",
	Flags: []cli.Flag{
		concurrencyFlag(),
	},
	Action: doDiff,
}

func doDiff(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("usage: zinc diff <localfile> <signature.zsig>")
	}

	hashes, err := readHashList(c.Args().Get(1))
	if err != nil {
		return err
	}

	local, err := blocksource.Open(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer local.Close()

	resolver, err := delta.NewResolver(delta.Params{
		Local:       local,
		BlockSize:   hashes.BlockSize,
		Hashes:      hashes,
		Concurrency: c.Int("concurrency"),
		Consumer:    newConsumer(),
	})
	if err != nil {
		return err
	}
	err = resolver.Wait()
	if err != nil {
		return err
	}
	plan := resolver.Result()

	var shifted, canonical int64
	for i := range plan.Elements {
		if plan.Resolved(int64(i), hashes.BlockSize) {
			shifted++
		} else {
			canonical++
		}
	}

	fmt.Printf("%d blocks of %s (%s total)\n",
		hashes.Len(), united.FormatBytes(hashes.BlockSize), united.FormatBytes(hashes.FileSize))
	fmt.Printf("%d found at shifted offsets, %d canonical (in place or to fetch)\n",
		shifted, canonical)
	fmt.Printf("%d blocks share data with another block\n", len(plan.IdenticalBlocks))
	return nil
}
