package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs/flashlog"
)

var mkfsCmd = &cli.Command{
	Name:  "mkfs",
	Usage: "create an empty flash log",
	Action: func(c *cli.Context) error {
		l, err := flashlog.Create(c.String("repo"))
		if err != nil {
			return xerrors.Errorf("create repo: %w", err)
		}

		fmt.Println("created", c.String("repo"))
		return l.Close()
	},
}
