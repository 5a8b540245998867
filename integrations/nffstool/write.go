package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs"
	"github.com/lotus-web3/nffs/flashlog"
)

var writeCmd = &cli.Command{
	Name:      "write",
	Usage:     "store a local file in the flash log",
	ArgsUsage: "[name] [file]",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "block-size",
			Usage: "data block size",
			Value: flashlog.DefaultMaxDataLen,
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("Invalid number of arguments", 1)
		}

		l, err := openRepo(c)
		if err != nil {
			return err
		}
		defer l.Close()

		name := c.Args().Get(0)
		if _, err := l.Lookup(name); err == nil {
			return xerrors.Errorf("file %q already exists", name)
		} else if !xerrors.Is(err, nffs.ErrNotFound) {
			return err
		}

		f, err := os.Open(c.Args().Get(1))
		if err != nil {
			return xerrors.Errorf("open input: %w", err)
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			return xerrors.Errorf("retrieving file info: %w", err)
		}
		bar := pb.New64(fi.Size()).Start()
		bar.Units = pb.U_BYTES

		id, err := l.NewInode(nffs.IDNone, name)
		if err != nil {
			return xerrors.Errorf("creating inode: %w", err)
		}

		buf := make([]byte, c.Int("block-size"))
		var blocks int
		for {
			n, err := io.ReadFull(f, buf)
			if n > 0 {
				if _, err := l.AppendBlock(id, buf[:n]); err != nil {
					return xerrors.Errorf("appending block: %w", err)
				}
				blocks++
				bar.Add(n)
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			if err != nil {
				return xerrors.Errorf("reading input: %w", err)
			}
		}

		if _, err := l.Commit(); err != nil {
			return xerrors.Errorf("commit: %w", err)
		}
		bar.Finish()

		fmt.Printf("wrote %s: inode %d, %d blocks\n", name, id, blocks)
		return nil
	},
}
