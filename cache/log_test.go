package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lotus-web3/nffs"
)

// memLog is an in-memory nffs.Log with block chains built by the tests
type memLog struct {
	gen    uint64
	nextID nffs.ObjectID

	inodes map[nffs.ObjectID]nffs.Inode
	blocks map[nffs.ObjectID]nffs.Block

	blockReads int

	// errors injected for specific ids
	inodeErr map[nffs.ObjectID]error
	blockErr map[nffs.ObjectID]error
}

func newMemLog() *memLog {
	return &memLog{
		gen:      1,
		nextID:   1,
		inodes:   map[nffs.ObjectID]nffs.Inode{},
		blocks:   map[nffs.ObjectID]nffs.Block{},
		inodeErr: map[nffs.ObjectID]error{},
		blockErr: map[nffs.ObjectID]error{},
	}
}

func (m *memLog) handle(id nffs.ObjectID) nffs.Handle {
	return nffs.Handle{ID: id, Gen: m.gen}
}

// newFile creates an inode with blocks of the given lengths, oldest first
func (m *memLog) newFile(lens ...uint32) nffs.ObjectID {
	id := m.nextID
	m.nextID++

	ino := nffs.Inode{Handle: m.handle(id), Name: "f"}
	m.inodes[id] = ino

	for _, l := range lens {
		m.appendBlock(id, l)
	}
	return id
}

func (m *memLog) appendBlock(inode nffs.ObjectID, l uint32) nffs.ObjectID {
	id := m.nextID
	m.nextID++

	ino := m.inodes[inode]
	m.blocks[id] = nffs.Block{
		Handle:  m.handle(id),
		Inode:   inode,
		Seq:     uint32(id),
		DataLen: l,
		Prev:    ino.LastBlock,
	}
	ino.LastBlock = m.handle(id)
	m.inodes[inode] = ino
	return id
}

// relocate simulates garbage collection: ids stay, handles go stale
func (m *memLog) relocate() {
	m.gen++
	for id, b := range m.blocks {
		b.Handle.Gen = m.gen
		if b.Prev.Valid() {
			b.Prev.Gen = m.gen
		}
		m.blocks[id] = b
	}
	for id, ino := range m.inodes {
		ino.Handle.Gen = m.gen
		if ino.LastBlock.Valid() {
			ino.LastBlock.Gen = m.gen
		}
		m.inodes[id] = ino
	}
}

func (m *memLog) ReadBlock(h nffs.Handle) (nffs.Block, error) {
	if err := m.blockErr[h.ID]; err != nil {
		return nffs.Block{}, err
	}
	if h.Gen != m.gen {
		return nffs.Block{}, nffs.ErrStaleHandle
	}
	b, ok := m.blocks[h.ID]
	if !ok {
		return nffs.Block{}, nffs.ErrNotFound
	}
	m.blockReads++
	return b, nil
}

func (m *memLog) ReadInode(id nffs.ObjectID) (nffs.Inode, error) {
	if err := m.inodeErr[id]; err != nil {
		return nffs.Inode{}, err
	}
	ino, ok := m.inodes[id]
	if !ok {
		return nffs.Inode{}, nffs.ErrNotFound
	}
	return ino, nil
}

func (m *memLog) FileLength(id nffs.ObjectID) (uint64, error) {
	ino, ok := m.inodes[id]
	if !ok {
		return 0, nffs.ErrNotFound
	}

	var total uint64
	for h := ino.LastBlock; h.Valid(); {
		b := m.blocks[h.ID]
		total += uint64(b.DataLen)
		h = b.Prev
	}
	return total, nil
}

var _ nffs.Log = (*memLog)(nil)

// requireContiguous checks that every cached inode covers one gap-free range
func requireContiguous(t *testing.T, c *Cache) {
	t.Helper()

	for r := c.dirFirst; !r.isNil(); {
		ci := c.inodes.get(r)
		ir := InodeRef{r}

		blks := c.Blocks(ir)
		require.Len(t, blks, ci.nblocks)

		start, end := c.Range(ir)
		require.LessOrEqual(t, start, end)
		if len(blks) == 0 {
			require.Equal(t, uint64(0), start)
			require.Equal(t, uint64(0), end)
		} else {
			require.Equal(t, blks[0].FileOffset, start)
			require.Equal(t, blks[len(blks)-1].End(), end)
			require.LessOrEqual(t, end, ci.fileSize)
		}

		for i := 1; i < len(blks); i++ {
			require.Equal(t, blks[i-1].End(), blks[i].FileOffset, "gap or overlap at block %d", i)
			require.Equal(t, blks[i-1].Block.Handle, blks[i].Block.Prev, "blocks %d and %d not chained", i-1, i)
		}

		r = ci.dirNext
	}
}

func newTestCache(t *testing.T, l nffs.Log, opts ...Option) *Cache {
	c, err := New(l, opts...)
	require.NoError(t, err)
	return c
}
