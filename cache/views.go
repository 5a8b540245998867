package cache

import (
	"github.com/lotus-web3/nffs"
)

// CachedBlock is a copy of a cached block descriptor.
type CachedBlock struct {
	Block      nffs.Block
	FileOffset uint64
}

// End returns the file offset just after the block's data.
func (b CachedBlock) End() uint64 {
	return b.FileOffset + uint64(b.Block.DataLen)
}

func (b CachedBlock) Contains(off uint64) bool {
	return b.FileOffset <= off && off < b.End()
}

// CachedInode is a copy of a cached inode entry.
type CachedInode struct {
	Inode    nffs.Inode
	FileSize uint64
	Blocks   int
}

func (c *Cache) Block(br BlockRef) (CachedBlock, error) {
	cb := c.blocks.get(br.r)
	if cb == nil {
		return CachedBlock{}, ErrStaleRef
	}
	return CachedBlock{Block: cb.desc, FileOffset: cb.fileOffset}, nil
}

func (c *Cache) Inode(ir InodeRef) (CachedInode, error) {
	ci := c.inodes.get(ir.r)
	if ci == nil {
		return CachedInode{}, ErrStaleRef
	}
	return CachedInode{Inode: ci.snap, FileSize: ci.fileSize, Blocks: ci.nblocks}, nil
}

// Blocks returns the cached blocks of an inode in file offset order.
func (c *Cache) Blocks(ir InodeRef) []CachedBlock {
	ci := c.inodes.get(ir.r)
	if ci == nil {
		return nil
	}

	out := make([]CachedBlock, 0, ci.nblocks)
	for r := ci.first; !r.isNil(); {
		cb := c.blocks.get(r)
		out = append(out, CachedBlock{Block: cb.desc, FileOffset: cb.fileOffset})
		r = cb.next
	}
	return out
}

// Inodes returns the ids of cached inodes in directory order, newest first.
func (c *Cache) Inodes() []nffs.ObjectID {
	out := make([]nffs.ObjectID, 0, c.dirLen)
	for r := c.dirFirst; !r.isNil(); {
		ci := c.inodes.get(r)
		out = append(out, ci.snap.Handle.ID)
		r = ci.dirNext
	}
	return out
}

type counters struct {
	inodeHits, inodeMisses       int64
	blockReads                   int64
	blockReclaims, inodeReclaims int64
}

type Stats struct {
	InodeHits   int64
	InodeMisses int64

	// BlockReads counts block records read from the log
	BlockReads int64

	BlockReclaims int64
	InodeReclaims int64

	BlocksInUse, BlockCapacity int
	InodesInUse, InodeCapacity int
}

func (c *Cache) Stats() Stats {
	return Stats{
		InodeHits:     c.stats.inodeHits,
		InodeMisses:   c.stats.inodeMisses,
		BlockReads:    c.stats.blockReads,
		BlockReclaims: c.stats.blockReclaims,
		InodeReclaims: c.stats.inodeReclaims,

		BlocksInUse:   c.blocks.inUse(),
		BlockCapacity: c.blocks.capacity(),
		InodesInUse:   c.inodes.inUse(),
		InodeCapacity: c.inodes.capacity(),
	}
}
