package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs/flashlog"
)

var repoFlag = &cli.StringFlag{
	Name:    "repo",
	Usage:   "flash log directory",
	EnvVars: []string{"NFFS_REPO"},
	Value:   "./nffs",
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "nffstool",
		Usage: "nffs flash log manipulation commands",

		Flags: []cli.Flag{
			repoFlag,
		},

		Commands: []*cli.Command{
			mkfsCmd,
			writeCmd,
			lsCmd,
			blocksCmd,
			catCmd,
			gcCmd,
			headCmd,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		panic(err)
	}
}

func openRepo(c *cli.Context) (*flashlog.Log, error) {
	l, err := flashlog.Open(c.String("repo"))
	if err != nil {
		return nil, xerrors.Errorf("open repo: %w", err)
	}
	return l, nil
}
