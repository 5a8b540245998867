package cache

// Pool exhaustion is resolved here, never surfaced to callers. Reclaim with
// nothing to reclaim means the pools are too small for a single operation,
// which is a configuration bug.

func (c *Cache) acquireBlock() (ref, *cachedBlock) {
	if r, cb, ok := c.blocks.alloc(); ok {
		return r, cb
	}

	c.reclaimBlocks()

	r, cb, ok := c.blocks.alloc()
	if !ok {
		panic("cache: block pool still exhausted after reclaim")
	}
	return r, cb
}

func (c *Cache) acquireInode() (ref, *cachedInode) {
	if r, ci, ok := c.inodes.alloc(); ok {
		return r, ci
	}

	c.reclaimInode()

	r, ci, ok := c.inodes.alloc()
	if !ok {
		panic("cache: inode pool still exhausted after reclaim")
	}
	return r, ci
}

// reclaimBlocks frees the whole block list of the oldest directory entry which
// has any cached blocks.
func (c *Cache) reclaimBlocks() {
	for r := c.dirLast; !r.isNil(); {
		ci := c.inodes.get(r)
		if ci.nblocks > 0 {
			log.Debugw("reclaiming cached blocks", "inode", ci.snap.Handle.ID, "blocks", ci.nblocks)

			c.freeBlocks(ci)
			c.stats.blockReclaims++
			return
		}
		r = ci.dirPrev
	}

	panic("cache: block pool exhausted but no inode has cached blocks")
}

// reclaimInode evicts the oldest directory entry, whether or not it has
// cached blocks.
func (c *Cache) reclaimInode() {
	if c.dirLast.isNil() {
		panic("cache: inode pool exhausted but the directory is empty")
	}

	log.Debugw("reclaiming cached inode", "inode", c.inodes.get(c.dirLast).snap.Handle.ID)

	c.evictInode(c.dirLast)
	c.stats.inodeReclaims++
}
