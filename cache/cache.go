package cache

import (
	"errors"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs"
)

var log = logging.Logger("nffs-cache")

var (
	// ErrStaleRef is returned for refs to nodes which were evicted or freed.
	ErrStaleRef = errors.New("stale cache reference")

	// ErrOffsetRange is returned by Seek for offsets at or past the file end.
	ErrOffsetRange = errors.New("offset beyond end of file")

	// ErrNotContiguous is returned by InsertBlock when the block doesn't
	// directly extend the cached range.
	ErrNotContiguous = errors.New("block not contiguous with cached range")
)

// InodeRef identifies a cached inode. It goes stale when the entry is evicted,
// deleted or cleared.
type InodeRef struct {
	r ref
}

// BlockRef identifies a cached block. It goes stale when the block is evicted,
// either on its own or together with its inode.
type BlockRef struct {
	r ref
}

type cachedBlock struct {
	desc       nffs.Block
	fileOffset uint64

	// owning inode and neighbours in its block list, nil while unlinked
	owner      ref
	prev, next ref
}

type cachedInode struct {
	snap     nffs.Inode
	fileSize uint64

	// block list, ordered by file offset
	first, last ref
	nblocks     int

	// directory links; dirPrev points towards the front (newer entries)
	dirPrev, dirNext ref
}

// Cache memoizes, per file, one contiguous run of block descriptors so reads
// don't need to re-walk the flash log block chain.
//
// * NOT THREAD SAFE; use Guarded to share a cache
// * Handles stored in the cache are only valid until the next garbage
//   collection of the log; Refresh must be called before the cache is used
//   again after one.
type Cache struct {
	log nffs.Log

	blocks *pool[cachedBlock]
	inodes *pool[cachedInode]

	// directory of cached inodes, newest created entry first
	dirFirst, dirLast ref
	dirLen            int

	stats counters
}

func New(l nffs.Log, opts ...Option) (*Cache, error) {
	cfg := DefaultConfig
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.BlockCapacity < 1 || cfg.InodeCapacity < 1 {
		return nil, xerrors.Errorf("invalid cache capacity (blocks %d, inodes %d)", cfg.BlockCapacity, cfg.InodeCapacity)
	}

	return &Cache{
		log:    l,
		blocks: newPool[cachedBlock]("block", cfg.BlockCapacity),
		inodes: newPool[cachedInode]("inode", cfg.InodeCapacity),
	}, nil
}

// Ensure returns the cache entry of inode id, creating it if needed. Existing
// entries are returned as-is; lookups don't reorder the directory.
func (c *Cache) Ensure(id nffs.ObjectID) (InodeRef, error) {
	if r := c.find(id); !r.isNil() {
		c.stats.inodeHits++
		return InodeRef{r}, nil
	}
	c.stats.inodeMisses++

	r, ci := c.acquireInode()

	ino, err := c.log.ReadInode(id)
	if err != nil {
		c.inodes.release(r)
		return InodeRef{}, xerrors.Errorf("reading inode %d: %w", id, err)
	}

	size, err := c.log.FileLength(id)
	if err != nil {
		c.inodes.release(r)
		return InodeRef{}, xerrors.Errorf("computing length of inode %d: %w", id, err)
	}

	ci.snap = ino
	ci.fileSize = size
	c.dirPushFront(r, ci)

	log.Debugw("cached inode", "inode", id, "size", size, "entries", c.dirLen)

	return InodeRef{r}, nil
}

// Range returns the [start, end) file byte range covered by cached blocks.
// Empty lists and stale refs give (0, 0).
func (c *Cache) Range(ir InodeRef) (start, end uint64) {
	ci := c.inodes.get(ir.r)
	if ci == nil {
		return 0, 0
	}
	return c.rangeOf(ci)
}

func (c *Cache) rangeOf(ci *cachedInode) (uint64, uint64) {
	first := c.blocks.get(ci.first)
	if first == nil {
		return 0, 0
	}
	last := c.blocks.get(ci.last)
	return first.fileOffset, last.fileOffset + uint64(last.desc.DataLen)
}

// NewBlock caches the descriptor of the block at h, which ends at file offset
// end. The block is not linked to any inode until InsertBlock.
func (c *Cache) NewBlock(h nffs.Handle, end uint64) (BlockRef, error) {
	r, cb := c.acquireBlock()
	if err := c.populateBlock(cb, h, end); err != nil {
		c.blocks.release(r)
		return BlockRef{}, err
	}
	return BlockRef{r}, nil
}

// InsertBlock links an unowned block at the front or the back of the inode's
// block list. The block must directly extend the cached range.
func (c *Cache) InsertBlock(ir InodeRef, br BlockRef, atTail bool) error {
	ci := c.inodes.get(ir.r)
	cb := c.blocks.get(br.r)
	if ci == nil || cb == nil {
		return ErrStaleRef
	}
	if !cb.owner.isNil() {
		panic("cache: inserting a block which already belongs to an inode")
	}

	if ci.nblocks > 0 {
		start, end := c.rangeOf(ci)
		if atTail && cb.fileOffset != end {
			return xerrors.Errorf("appending block at %d to range [%d, %d): %w", cb.fileOffset, start, end, ErrNotContiguous)
		}
		if !atTail && cb.fileOffset+uint64(cb.desc.DataLen) != start {
			return xerrors.Errorf("prepending block at %d to range [%d, %d): %w", cb.fileOffset, start, end, ErrNotContiguous)
		}
	}

	if atTail {
		c.linkBack(ir.r, ci, br.r, cb)
	} else {
		c.linkFront(ir.r, ci, br.r, cb)
	}
	return nil
}

// FreeBlock releases a block which was never inserted.
func (c *Cache) FreeBlock(br BlockRef) error {
	cb := c.blocks.get(br.r)
	if cb == nil {
		return ErrStaleRef
	}
	if !cb.owner.isNil() {
		panic("cache: freeing a block which belongs to an inode")
	}
	c.blocks.release(br.r)
	return nil
}

// Refresh drops every cached block list and re-reads every cached inode. It
// must run after each garbage collection of the log, before any other call.
//
// The first failing inode aborts the refresh; entries after it keep their
// (stale) state and the cache should be considered unusable.
func (c *Cache) Refresh() error {
	for r := c.dirFirst; !r.isNil(); {
		ci := c.inodes.get(r)
		id := ci.snap.Handle.ID

		c.freeBlocks(ci)

		ino, err := c.log.ReadInode(id)
		if err != nil {
			log.Errorw("cache refresh", "inode", id, "error", err)
			return xerrors.Errorf("refreshing inode %d: %w", id, err)
		}
		ci.snap = ino

		r = ci.dirNext
	}

	log.Debugw("cache refreshed", "entries", c.dirLen)
	return nil
}

// Delete evicts the entry for inode id, no-op if it isn't cached.
func (c *Cache) Delete(id nffs.ObjectID) {
	r := c.find(id)
	if r.isNil() {
		return
	}
	c.evictInode(r)
}

// Clear evicts all entries.
func (c *Cache) Clear() {
	for !c.dirFirst.isNil() {
		c.evictInode(c.dirFirst)
	}
}

// Len returns the number of cached inodes.
func (c *Cache) Len() int {
	return c.dirLen
}

func (c *Cache) find(id nffs.ObjectID) ref {
	for r := c.dirFirst; !r.isNil(); {
		ci := c.inodes.get(r)
		if ci.snap.Handle.ID == id {
			return r
		}
		r = ci.dirNext
	}
	return nilRef
}

func (c *Cache) populateBlock(cb *cachedBlock, h nffs.Handle, end uint64) error {
	b, err := c.readBlock(h, end)
	if err != nil {
		return err
	}

	cb.desc = b
	cb.fileOffset = end - uint64(b.DataLen)
	return nil
}

// readBlock reads a block which is expected to end at file offset end
func (c *Cache) readBlock(h nffs.Handle, end uint64) (nffs.Block, error) {
	if !h.Valid() {
		return nffs.Block{}, xerrors.Errorf("block chain ends at file offset %d: %w", end, nffs.ErrCorrupt)
	}

	b, err := c.log.ReadBlock(h)
	if err != nil {
		return nffs.Block{}, xerrors.Errorf("reading block %d: %w", h.ID, err)
	}
	c.stats.blockReads++

	if uint64(b.DataLen) > end {
		return nffs.Block{}, xerrors.Errorf("block %d length %d exceeds its end offset %d: %w", h.ID, b.DataLen, end, nffs.ErrCorrupt)
	}
	return b, nil
}

/* DIRECTORY */

func (c *Cache) dirPushFront(r ref, ci *cachedInode) {
	ci.dirPrev = nilRef
	ci.dirNext = c.dirFirst
	if first := c.inodes.get(c.dirFirst); first != nil {
		first.dirPrev = r
	} else {
		c.dirLast = r
	}
	c.dirFirst = r
	c.dirLen++
}

func (c *Cache) dirRemove(r ref, ci *cachedInode) {
	if prev := c.inodes.get(ci.dirPrev); prev != nil {
		prev.dirNext = ci.dirNext
	} else {
		c.dirFirst = ci.dirNext
	}
	if next := c.inodes.get(ci.dirNext); next != nil {
		next.dirPrev = ci.dirPrev
	} else {
		c.dirLast = ci.dirPrev
	}
	ci.dirPrev, ci.dirNext = nilRef, nilRef
	c.dirLen--
}

func (c *Cache) evictInode(r ref) {
	ci := c.inodes.get(r)
	c.dirRemove(r, ci)
	c.freeBlocks(ci)
	c.inodes.release(r)
}

/* BLOCK LISTS */

func (c *Cache) linkFront(ir ref, ci *cachedInode, br ref, cb *cachedBlock) {
	cb.owner = ir
	cb.prev = nilRef
	cb.next = ci.first
	if first := c.blocks.get(ci.first); first != nil {
		first.prev = br
	} else {
		ci.last = br
	}
	ci.first = br
	ci.nblocks++
}

func (c *Cache) linkBack(ir ref, ci *cachedInode, br ref, cb *cachedBlock) {
	cb.owner = ir
	cb.next = nilRef
	cb.prev = ci.last
	if last := c.blocks.get(ci.last); last != nil {
		last.next = br
	} else {
		ci.first = br
	}
	ci.last = br
	ci.nblocks++
}

func (c *Cache) freeBlocks(ci *cachedInode) {
	for r := ci.first; !r.isNil(); {
		next := c.blocks.get(r).next
		c.blocks.release(r)
		r = next
	}
	ci.first, ci.last = nilRef, nilRef
	ci.nblocks = 0
}
