package flashlog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/lotus-web3/nffs"
)

func TestLevelIndexEntries(t *testing.T) {
	idx, err := openLevelIndex("", true)
	require.NoError(t, err)
	defer idx.Close()

	b := new(leveldb.Batch)
	putEntry(b, idxEntry{id: 1, off: 0})
	b.Put(idxKey(keyInode, 1), nil)
	putEntry(b, idxEntry{id: 2, off: 40, block: true, inode: 1})
	putEntry(b, idxEntry{id: 3, off: 90, block: true, inode: 1, prev: 2})
	putTail(b, 1, 3)
	require.NoError(t, idx.write(b))

	e, found, err := idx.entry(3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, idxEntry{id: 3, off: 90, block: true, inode: 1, prev: 2}, e)

	e, found, err = idx.entry(1)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, e.block)

	_, found, err = idx.entry(4)
	require.NoError(t, err)
	require.False(t, found)

	tail, err := idx.tail(1)
	require.NoError(t, err)
	require.Equal(t, nffs.ObjectID(3), tail)

	var all []nffs.ObjectID
	require.NoError(t, idx.entries(func(e idxEntry) error {
		all = append(all, e.id)
		return nil
	}))
	require.Equal(t, []nffs.ObjectID{1, 2, 3}, all)

	// clearing the tail leaves an empty file
	b = new(leveldb.Batch)
	putTail(b, 1, nffs.IDNone)
	require.NoError(t, idx.write(b))

	tail, err = idx.tail(1)
	require.NoError(t, err)
	require.Equal(t, nffs.IDNone, tail)
}
