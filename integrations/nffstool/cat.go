package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/lotus-web3/nffs"
	"github.com/lotus-web3/nffs/cache"
	"github.com/lotus-web3/nffs/fileio"
)

var catCmd = &cli.Command{
	Name:      "cat",
	Usage:     "print file contents",
	ArgsUsage: "[name]",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "block-cache",
			Value: cache.DefaultConfig.BlockCapacity,
		},
		&cli.IntFlag{
			Name:  "inode-cache",
			Value: cache.DefaultConfig.InodeCapacity,
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "print cache stats to stderr",
		},
	},
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

		ml := nffs.NewMeteredLog(l)
		g, err := cache.NewGuarded(ml, cache.WithBlockCapacity(c.Int("block-cache")), cache.WithInodeCapacity(c.Int("inode-cache")))
		if err != nil {
			return err
		}
		l.OnRelocate(g.Refresh)

		r, err := fileio.NewReader(g, l, id)
		if err != nil {
			return err
		}

		if _, err := io.Copy(os.Stdout, io.NewSectionReader(r, 0, r.Size())); err != nil {
			return err
		}

		if c.Bool("stats") {
			st := g.Stats()
			fmt.Fprintln(os.Stderr, color.CyanString("inodes: %d/%d in use, %d hits, %d misses, %d reclaims",
				st.InodesInUse, st.InodeCapacity, st.InodeHits, st.InodeMisses, st.InodeReclaims))
			fmt.Fprintln(os.Stderr, color.CyanString("blocks: %d/%d in use, %d reads, %d reclaims",
				st.BlocksInUse, st.BlockCapacity, st.BlockReads, st.BlockReclaims))

			lr := ml.Reads()
			fmt.Fprintln(os.Stderr, color.CyanString("log: %d block, %d inode, %d length reads", lr.Blocks, lr.Inodes, lr.Lengths))
		}
		return nil
	},
}
