package fileio

import (
	"errors"
	"io"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs"
	"github.com/lotus-web3/nffs/cache"
)

var log = logging.Logger("fileio")

// DataReader reads block payloads, *flashlog.Log is one.
type DataReader interface {
	ReadData(h nffs.Handle, off uint32, dst []byte) (int, error)
}

// Reader reads one file through a shared block cache. Every block lookup goes
// through Seek, so sequential reads extend the cached range one block at a
// time and reads behind it are served without touching the log.
type Reader struct {
	g    *cache.Guarded
	data DataReader
	id   nffs.ObjectID

	size uint64
}

var _ io.ReaderAt = (*Reader)(nil)

func NewReader(g *cache.Guarded, data DataReader, id nffs.ObjectID) (*Reader, error) {
	r := &Reader{g: g, data: data, id: id}

	err := g.Do(func(c *cache.Cache) error {
		ir, err := c.Ensure(id)
		if err != nil {
			return err
		}
		ci, err := c.Inode(ir)
		if err != nil {
			return err
		}
		r.size = ci.FileSize
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("opening inode %d: %w", id, err)
	}

	return r, nil
}

// Size returns the file length as of NewReader.
func (r *Reader) Size() int64 {
	return int64(r.size)
}

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, xerrors.Errorf("negative offset %d", off)
	}

	var n int
	for n < len(p) {
		pos := uint64(off) + uint64(n)
		if pos >= r.size {
			return n, io.EOF
		}

		err := r.g.Do(func(c *cache.Cache) error {
			read, err := r.readBlock(c, pos, p[n:])
			if errors.Is(err, nffs.ErrStaleHandle) {
				// the log was collected and the relocation hook didn't get
				// to the cache yet
				log.Debugw("stale handle, refreshing cache", "inode", r.id, "offset", pos)
				if err := c.Refresh(); err != nil {
					return err
				}
				read, err = r.readBlock(c, pos, p[n:])
			}
			n += read
			return err
		})
		if err != nil {
			return n, xerrors.Errorf("reading inode %d at %d: %w", r.id, pos, err)
		}
	}

	return n, nil
}

// readBlock copies data from the single block containing pos
func (r *Reader) readBlock(c *cache.Cache, pos uint64, dst []byte) (int, error) {
	ir, err := c.Ensure(r.id)
	if err != nil {
		return 0, err
	}

	br, err := c.Seek(ir, pos)
	if err != nil {
		return 0, err
	}

	blk, err := c.Block(br)
	if err != nil {
		return 0, err
	}

	return r.data.ReadData(blk.Block.Handle, uint32(pos-blk.FileOffset), dst)
}
