package main

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var blocksCmd = &cli.Command{
	Name:      "blocks",
	Usage:     "list the block chain of a file, newest first",
	ArgsUsage: "[name]",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("Invalid number of arguments", 1)
		}

		l, err := openRepo(c)
		if err != nil {
			return err
		}
		defer l.Close()

		id, err := l.Lookup(c.Args().First())
		if err != nil {
			return err
		}

		size, err := l.FileLength(id)
		if err != nil {
			return err
		}
		ino, err := l.ReadInode(id)
		if err != nil {
			return err
		}

		end := size
		for h := ino.LastBlock; h.Valid(); {
			b, err := l.ReadBlock(h)
			if err != nil {
				return xerrors.Errorf("reading block %d: %w", h.ID, err)
			}

			start := end - uint64(b.DataLen)
			fmt.Printf("%6d  [%d, %d)  %s\n", h.ID, start, end, cid.NewCidV1(cid.Raw, b.DataHash))

			end = start
			h = b.Prev
		}

		return nil
	},
}
