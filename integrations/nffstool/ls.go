package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var lsCmd = &cli.Command{
	Name:  "ls",
	Usage: "list files",
	Action: func(c *cli.Context) error {
		l, err := openRepo(c)
		if err != nil {
			return err
		}
		defer l.Close()

		ids, err := l.Inodes()
		if err != nil {
			return err
		}

		for _, id := range ids {
			ino, err := l.ReadInode(id)
			if err != nil {
				color.Red("%6d  error: %s", id, err)
				continue
			}
			size, err := l.FileLength(id)
			if err != nil {
				color.Red("%6d  %s  error: %s", id, ino.Name, err)
				continue
			}

			fmt.Printf("%6d  %10d  %s\n", id, size, color.GreenString(ino.Name))
		}

		color.Cyan("generation %d, %d files", l.Generation(), len(ids))
		return nil
	},
}
