package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var gcCmd = &cli.Command{
	Name:  "gc",
	Usage: "compact the flash log, dropping unlinked records",
	Action: func(c *cli.Context) error {
		l, err := openRepo(c)
		if err != nil {
			return err
		}
		defer l.Close()

		before := l.DataSize()
		if err := l.GC(); err != nil {
			return err
		}

		fmt.Printf("%d -> %d bytes, generation %d\n", before, l.DataSize(), l.Generation())
		return nil
	},
}
