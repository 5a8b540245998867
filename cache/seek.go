package cache

import (
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs"
)

// Seek returns the cached block containing file offset off, reading and
// caching blocks from the log as needed.
//
// The walk always goes backwards through the block chain, starting from:
//   - the block before the cache start, when off precedes the cached range;
//     every block visited is prepended
//   - the cache end, when off is inside the cached range; nothing is read
//   - the file end otherwise; the found block is appended when it directly
//     follows the cached range, and replaces the whole cached range when it
//     doesn't
//
// so the cached range stays contiguous no matter where the caller seeks.
func (c *Cache) Seek(ir InodeRef, off uint64) (BlockRef, error) {
	ci := c.inodes.get(ir.r)
	if ci == nil {
		return BlockRef{}, ErrStaleRef
	}

	// empty files have no blocks to cache
	if ci.fileSize == 0 {
		return BlockRef{}, xerrors.Errorf("seek in empty inode %d: %w", ci.snap.Handle.ID, nffs.ErrNotFound)
	}
	if off >= ci.fileSize {
		return BlockRef{}, xerrors.Errorf("seek to %d in inode %d (size %d): %w", off, ci.snap.Handle.ID, ci.fileSize, ErrOffsetRange)
	}

	cacheStart, cacheEnd := c.rangeOf(ci)

	var (
		// cached block under the cursor, nil while looking at uncached blocks
		cur ref

		// log handle of the block under the cursor, and its end offset
		entry    nffs.Handle
		blockEnd uint64
	)

	switch {
	case cacheEnd != 0 && off < cacheStart:
		first := c.blocks.get(ci.first)
		entry = first.desc.Prev
		blockEnd = first.fileOffset
	case off < cacheEnd:
		cur = ci.last
		entry = c.blocks.get(cur).desc.Handle
		blockEnd = cacheEnd
	default:
		entry = ci.snap.LastBlock
		blockEnd = ci.fileSize
	}

	for {
		if blockEnd <= cacheStart {
			// before the cached range, bridge the gap one block at a time
			r, cb := c.acquireBlock()
			if err := c.populateBlock(cb, entry, blockEnd); err != nil {
				c.blocks.release(r)
				return BlockRef{}, err
			}
			c.linkFront(ir.r, ci, r, cb)
			cur = r
		}

		var (
			blockStart uint64
			prev       nffs.Handle
			desc       nffs.Block
		)
		if cb := c.blocks.get(cur); cb != nil {
			blockStart = cb.fileOffset
			prev = cb.desc.Prev
		} else {
			b, err := c.readBlock(entry, blockEnd)
			if err != nil {
				return BlockRef{}, err
			}
			desc = b
			blockStart = blockEnd - uint64(b.DataLen)
			prev = b.Prev
		}

		if blockStart <= off {
			if !cur.isNil() {
				return BlockRef{cur}, nil
			}

			// uncached block past the cache end
			r, cb := c.acquireBlock()
			cb.desc = desc
			cb.fileOffset = blockStart

			// acquiring may have reclaimed our own list, look at the tail
			// only now
			if tail := c.blocks.get(ci.last); tail != nil && tail.desc.Handle == prev {
				c.linkBack(ir.r, ci, r, cb)
			} else {
				if ci.nblocks > 0 {
					log.Debugw("replacing cached range", "inode", ci.snap.Handle.ID, "blocks", ci.nblocks, "offset", off)
				}
				c.freeBlocks(ci)
				c.linkFront(ir.r, ci, r, cb)
			}
			return BlockRef{r}, nil
		}

		if cb := c.blocks.get(cur); cb != nil {
			cur = cb.prev
		}
		entry = prev
		blockEnd = blockStart
	}
}
