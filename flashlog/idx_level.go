package flashlog

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs"
)

// Index key prefixes. Keys are [prefix][id: u32 BE].
const (
	// o|id -> record offset (u64 LE), blocks add [inode u32][prev u32]
	keyOffset byte = 'o'
	// t|inode -> id of the newest block (u32 LE)
	keyTail byte = 't'
	// i|inode -> empty, set of live inodes
	keyInode byte = 'i'
)

// levelIndex maps object ids to record offsets in the data log.
type levelIndex struct {
	*leveldb.DB
}

func openLevelIndex(path string, create bool) (*levelIndex, error) {
	o := &opt.Options{
		OpenFilesCacheCapacity: 16,
		ErrorIfExist:           create,
		ErrorIfMissing:         !create,
		Compression:            opt.NoCompression, // keys and values are tiny
		Filter:                 filter.NewBloomFilter(10),
	}

	var err error
	var db *leveldb.DB
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), o)
	} else {
		db, err = leveldb.OpenFile(path, o)
		if errors.IsCorrupted(err) && !o.GetReadOnly() {
			db, err = leveldb.RecoverFile(path, o)
		}
	}
	if err != nil {
		return nil, err
	}

	return &levelIndex{db}, nil
}

func idxKey(prefix byte, id nffs.ObjectID) []byte {
	var k [5]byte
	k[0] = prefix
	binary.BigEndian.PutUint32(k[1:], uint32(id))
	return k[:]
}

func idFromKey(k []byte) nffs.ObjectID {
	return nffs.ObjectID(binary.BigEndian.Uint32(k[1:]))
}

// idxEntry is the index value of one live record. Block entries also carry
// their chain links so truncation doesn't need to read the data file.
type idxEntry struct {
	id  nffs.ObjectID
	off int64

	block bool
	inode nffs.ObjectID
	prev  nffs.ObjectID
}

func putEntry(b *leveldb.Batch, e idxEntry) {
	if !e.block {
		var v [8]byte
		binary.LittleEndian.PutUint64(v[:], uint64(e.off))
		b.Put(idxKey(keyOffset, e.id), v[:])
		return
	}

	var v [16]byte
	binary.LittleEndian.PutUint64(v[:], uint64(e.off))
	binary.LittleEndian.PutUint32(v[8:], uint32(e.inode))
	binary.LittleEndian.PutUint32(v[12:], uint32(e.prev))
	b.Put(idxKey(keyOffset, e.id), v[:])
}

func parseEntry(id nffs.ObjectID, v []byte) (idxEntry, error) {
	e := idxEntry{id: id}
	switch len(v) {
	case 8:
	case 16:
		e.block = true
		e.inode = nffs.ObjectID(binary.LittleEndian.Uint32(v[8:]))
		e.prev = nffs.ObjectID(binary.LittleEndian.Uint32(v[12:]))
	default:
		return idxEntry{}, xerrors.Errorf("invalid index value length %d for object %d", len(v), id)
	}
	e.off = int64(binary.LittleEndian.Uint64(v))
	return e, nil
}

func putTail(b *leveldb.Batch, inode, blk nffs.ObjectID) {
	if blk == nffs.IDNone {
		b.Delete(idxKey(keyTail, inode))
		return
	}
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], uint32(blk))
	b.Put(idxKey(keyTail, inode), v[:])
}

func (l *levelIndex) entry(id nffs.ObjectID) (idxEntry, bool, error) {
	v, err := l.DB.Get(idxKey(keyOffset, id), nil)
	switch err {
	case nil:
	case leveldb.ErrNotFound:
		return idxEntry{}, false, nil
	default:
		return idxEntry{}, false, xerrors.Errorf("index get: %w", err)
	}

	e, err := parseEntry(id, v)
	if err != nil {
		return idxEntry{}, false, err
	}
	return e, true, nil
}

// tail returns the newest block of an inode, IDNone for empty files
func (l *levelIndex) tail(inode nffs.ObjectID) (nffs.ObjectID, error) {
	v, err := l.DB.Get(idxKey(keyTail, inode), nil)
	switch err {
	case nil:
	case leveldb.ErrNotFound:
		return nffs.IDNone, nil
	default:
		return 0, xerrors.Errorf("index get tail: %w", err)
	}

	if len(v) != 4 {
		return 0, xerrors.Errorf("invalid tail value length %d", len(v))
	}
	return nffs.ObjectID(binary.LittleEndian.Uint32(v)), nil
}

func (l *levelIndex) hasInode(id nffs.ObjectID) (bool, error) {
	return l.DB.Has(idxKey(keyInode, id), nil)
}

func (l *levelIndex) inodes(cb func(id nffs.ObjectID) error) error {
	it := l.DB.NewIterator(util.BytesPrefix([]byte{keyInode}), nil)
	defer it.Release()

	for it.Next() {
		if err := cb(idFromKey(it.Key())); err != nil {
			return err
		}
	}
	return it.Error()
}

// entries lists all live records
func (l *levelIndex) entries(cb func(e idxEntry) error) error {
	it := l.DB.NewIterator(util.BytesPrefix([]byte{keyOffset}), nil)
	defer it.Release()

	for it.Next() {
		e, err := parseEntry(idFromKey(it.Key()), it.Value())
		if err != nil {
			return err
		}
		if err := cb(e); err != nil {
			return err
		}
	}
	return it.Error()
}

func (l *levelIndex) write(b *leveldb.Batch) error {
	return l.DB.Write(b, &opt.WriteOptions{Sync: true})
}
