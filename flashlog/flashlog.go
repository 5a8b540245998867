package flashlog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	pool "github.com/libp2p/go-buffer-pool"
	mh "github.com/multiformats/go-multihash"
	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs"
)

var log = logging.Logger("flashlog")

const (
	HeadName = "head"
	HeadSize = 512

	DataName   = "data.log"
	LevelIndex = "index.level"

	gcDataName = "data.log.gc"
)

const headVersion = 1

const logBufSize = 1 << 20

// records never get anywhere near this, anything larger is garbage
const maxRecordLen = 1 << 24

// Log is an append-only log of inode and data block records, with a leveldb
// index mapping object ids to record offsets.
// * Files are chains of data blocks, each block points at the previous one
// * Not considered written until committed
// * Garbage collection rewrites the log and bumps the generation, which
//   invalidates every handle issued before
type Log struct {
	root string
	opts openOptions

	lk sync.Mutex

	// head is a file which contains cbor-tuple-serialized Head, padded up to
	// head size
	head *os.File

	// data contains a log of all written records
	data         *os.File
	dataBuffered *bufio.Writer

	// current data file length
	dataLen int64

	idx     *levelIndex
	records *lru.Cache[nffs.ObjectID, record]

	gen    uint64
	nextID nffs.ObjectID

	onRelocate []func() error

	// buffers
	headBuf [HeadSize]byte
}

// Head is the on-disk head object. CBOR-tuple-serialized. Must fit in
//
//	HeadSize bytes. Null-Padded to exactly HeadSize
type Head struct {
	Version int64

	// something that's not zero
	Valid bool

	// byte offset just after the last committed record
	RetiredAt int64

	// bumped by every garbage collection
	Generation int64

	// next object id to assign, as of the last commit
	NextID int64
}

var _ nffs.Log = (*Log)(nil)

func Create(root string, opts ...OpenOption) (*Log, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, xerrors.Errorf("mkdir log root (%s): %w", root, err)
	}

	headFile, err := os.OpenFile(filepath.Join(root, HeadName), os.O_RDWR|os.O_SYNC|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return nil, xerrors.Errorf("opening head: %w", err)
	}

	dataFile, err := os.OpenFile(filepath.Join(root, DataName), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return nil, xerrors.Errorf("opening data: %w", err)
	}

	h := &Head{
		Version:    headVersion,
		Valid:      true,
		Generation: 1,
		NextID:     1,
	}

	var headBuf [HeadSize]byte
	if err := writeHead(headFile, h, headBuf[:]); err != nil {
		return nil, err
	}

	idx, err := openLevelIndex(filepath.Join(root, LevelIndex), true)
	if err != nil {
		return nil, xerrors.Errorf("creating leveldb index: %w", err)
	}

	return newLog(root, headFile, dataFile, 0, idx, h, opts)
}

func Open(root string, opts ...OpenOption) (*Log, error) {
	headFile, err := os.OpenFile(filepath.Join(root, HeadName), os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, xerrors.Errorf("opening head: %w", err)
	}

	h, err := readHead(headFile)
	if err != nil {
		return nil, err
	}
	if h.Version != headVersion {
		return nil, xerrors.Errorf("unsupported log version %d", h.Version)
	}

	dataFile, err := os.OpenFile(filepath.Join(root, DataName), os.O_RDWR, 0666)
	if err != nil {
		return nil, xerrors.Errorf("opening data: %w", err)
	}

	// check if data needs to be truncated
	dataInfo, err := dataFile.Stat()
	if err != nil {
		return nil, xerrors.Errorf("stat data len: %w", err)
	}

	if dataInfo.Size() < h.RetiredAt {
		return nil, xerrors.Errorf("data file is shorter than head says it should be (%d < %d)", dataInfo.Size(), h.RetiredAt)
	}

	idx, err := openLevelIndex(filepath.Join(root, LevelIndex), false)
	if err != nil {
		return nil, xerrors.Errorf("opening leveldb index: %w", err)
	}

	l, err := newLog(root, headFile, dataFile, dataInfo.Size(), idx, &h, opts)
	if err != nil {
		return nil, err
	}

	if dataInfo.Size() > h.RetiredAt { // data ahead means there was an unclean shutdown during a write
		if err := l.truncate(h.RetiredAt, dataInfo.Size()); err != nil {
			return nil, xerrors.Errorf("truncating log: %w", err)
		}
	}

	return l, nil
}

func newLog(root string, headFile, dataFile *os.File, dataLen int64, idx *levelIndex, h *Head, opts []OpenOption) (*Log, error) {
	o := defaultOpenOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.maxDataLen < 1 {
		return nil, xerrors.Errorf("invalid max data length %d", o.maxDataLen)
	}

	l := &Log{
		root:         root,
		opts:         o,
		head:         headFile,
		data:         dataFile,
		dataBuffered: bufio.NewWriterSize(dataFile, logBufSize),
		dataLen:      dataLen,
		idx:          idx,
		gen:          uint64(h.Generation),
		nextID:       nffs.ObjectID(h.NextID),
	}

	if o.recordCache > 0 {
		rc, err := lru.New[nffs.ObjectID, record](o.recordCache)
		if err != nil {
			return nil, xerrors.Errorf("creating record cache: %w", err)
		}
		l.records = rc
	}

	// seek to data end as writes are appended
	if _, err := dataFile.Seek(dataLen, io.SeekStart); err != nil {
		return nil, xerrors.Errorf("seeking to data end: %w", err)
	}

	return l, nil
}

// truncate drops records written after the last commit
func (l *Log) truncate(offset, size int64) error {
	var drop []idxEntry
	err := l.idx.entries(func(e idxEntry) error {
		if e.off >= offset {
			drop = append(drop, e)
		}
		return nil
	})
	if err != nil {
		return xerrors.Errorf("listing entries to truncate: %w", err)
	}

	log.Errorw("truncate", "offset", offset, "size", size, "diff", size-offset, "idxEnts", len(drop), "root", l.root)

	// newest first, so chain tails unwind one block at a time
	sort.Slice(drop, func(i, j int) bool {
		return drop[i].off > drop[j].off
	})

	b := new(leveldb.Batch)
	for _, e := range drop {
		b.Delete(idxKey(keyOffset, e.id))
		if e.block {
			putTail(b, e.inode, e.prev)
		} else {
			b.Delete(idxKey(keyInode, e.id))
			b.Delete(idxKey(keyTail, e.id))
		}
	}
	if err := l.idx.write(b); err != nil {
		return xerrors.Errorf("deleting truncated entries from index: %w", err)
	}

	if err := l.data.Truncate(offset); err != nil {
		return xerrors.Errorf("truncating data file: %w", err)
	}
	if _, err := l.data.Seek(offset, io.SeekStart); err != nil {
		return xerrors.Errorf("seeking to data end: %w", err)
	}

	l.dataLen = offset

	err = l.mutHead(func(h *Head) error {
		h.RetiredAt = offset
		return nil
	})
	if err != nil {
		return xerrors.Errorf("updating head after truncate: %w", err)
	}

	return nil
}

func readHead(f *os.File) (Head, error) {
	var headBuf [HeadSize]byte
	n, err := f.ReadAt(headBuf[:], 0)
	if err != nil {
		return Head{}, xerrors.Errorf("HEAD READ ERROR: %w", err)
	}
	if n != len(headBuf) {
		return Head{}, xerrors.Errorf("bad head read bytes (%d bytes)", n)
	}

	var h Head
	if err := h.UnmarshalCBOR(bytes.NewReader(headBuf[:])); err != nil {
		return Head{}, xerrors.Errorf("unmarshal head: %w", err)
	}
	if !h.Valid {
		return Head{}, xerrors.Errorf("stored head invalid")
	}
	return h, nil
}

func writeHead(f *os.File, h *Head, buf []byte) error {
	for i := range buf {
		buf[i] = 0
	}

	if err := h.MarshalCBOR(bytes.NewBuffer(buf[:0])); err != nil {
		return xerrors.Errorf("set head: %w", err)
	}

	n, err := f.WriteAt(buf, 0)
	if err != nil {
		return xerrors.Errorf("HEAD WRITE ERROR (new head: %x): %w", buf, err)
	}
	if n != len(buf) {
		return xerrors.Errorf("bad head written bytes (%d bytes, new head: %x)", n, buf)
	}

	if err := f.Sync(); err != nil {
		return xerrors.Errorf("head sync (new head: %x): %w", buf, err)
	}
	return nil
}

func (l *Log) mutHead(mut func(h *Head) error) error {
	h, err := readHead(l.head)
	if err != nil {
		return err
	}

	if err := mut(&h); err != nil {
		return err
	}

	return writeHead(l.head, &h, l.headBuf[:])
}

/* WRITE SIDE */

// NewInode appends an inode record. parent may be IDNone for top level files.
func (l *Log) NewInode(parent nffs.ObjectID, name string) (nffs.ObjectID, error) {
	if len(name) > MaxNameLen {
		return nffs.IDNone, xerrors.Errorf("inode name too long (%d bytes, max %d)", len(name), MaxNameLen)
	}

	l.lk.Lock()
	defer l.lk.Unlock()

	if parent != nffs.IDNone {
		has, err := l.idx.hasInode(parent)
		if err != nil {
			return nffs.IDNone, xerrors.Errorf("checking parent: %w", err)
		}
		if !has {
			return nffs.IDNone, xerrors.Errorf("parent inode %d: %w", parent, nffs.ErrNotFound)
		}
	}

	id := l.nextID
	off, err := l.appendRecord(encodeInode(id, l.seq(), parent, name))
	if err != nil {
		return nffs.IDNone, xerrors.Errorf("writing inode: %w", err)
	}
	l.nextID++

	b := new(leveldb.Batch)
	putEntry(b, idxEntry{id: id, off: off})
	b.Put(idxKey(keyInode, id), nil)
	if err := l.idx.write(b); err != nil {
		return nffs.IDNone, xerrors.Errorf("updating index: %w", err)
	}

	return id, nil
}

// AppendBlock appends a data block at the end of the inode's chain.
func (l *Log) AppendBlock(inode nffs.ObjectID, data []byte) (nffs.Handle, error) {
	// empty blocks would break strict offset ordering of the chain
	if len(data) == 0 {
		return nffs.Handle{}, xerrors.Errorf("empty data block")
	}
	if len(data) > l.opts.maxDataLen {
		return nffs.Handle{}, xerrors.Errorf("block too large (%d bytes, max %d)", len(data), l.opts.maxDataLen)
	}

	l.lk.Lock()
	defer l.lk.Unlock()

	has, err := l.idx.hasInode(inode)
	if err != nil {
		return nffs.Handle{}, xerrors.Errorf("checking inode: %w", err)
	}
	if !has {
		return nffs.Handle{}, xerrors.Errorf("inode %d: %w", inode, nffs.ErrNotFound)
	}

	prev, err := l.idx.tail(inode)
	if err != nil {
		return nffs.Handle{}, err
	}

	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return nffs.Handle{}, xerrors.Errorf("hashing block: %w", err)
	}

	id := l.nextID
	off, err := l.appendRecord(encodeBlock(id, l.seq(), inode, prev, hash, data))
	if err != nil {
		return nffs.Handle{}, xerrors.Errorf("writing block: %w", err)
	}
	l.nextID++

	b := new(leveldb.Batch)
	putEntry(b, idxEntry{id: id, off: off, block: true, inode: inode, prev: prev})
	putTail(b, inode, id)
	if err := l.idx.write(b); err != nil {
		return nffs.Handle{}, xerrors.Errorf("updating index: %w", err)
	}

	return l.handle(id), nil
}

// Unlink removes an inode and all its blocks from the index. The records stay
// in the data file until the next GC. Unlinking takes effect immediately, it
// isn't undone by truncation of uncommitted data.
func (l *Log) Unlink(inode nffs.ObjectID) error {
	l.lk.Lock()
	defer l.lk.Unlock()

	has, err := l.idx.hasInode(inode)
	if err != nil {
		return xerrors.Errorf("checking inode: %w", err)
	}
	if !has {
		return xerrors.Errorf("inode %d: %w", inode, nffs.ErrNotFound)
	}

	tail, err := l.idx.tail(inode)
	if err != nil {
		return err
	}

	b := new(leveldb.Batch)
	for id := tail; id != nffs.IDNone; {
		e, found, err := l.idx.entry(id)
		if err != nil {
			return err
		}
		if !found {
			return xerrors.Errorf("block %d of inode %d missing from index: %w", id, inode, nffs.ErrCorrupt)
		}

		b.Delete(idxKey(keyOffset, id))
		l.forget(id)
		id = e.prev
	}

	b.Delete(idxKey(keyOffset, inode))
	b.Delete(idxKey(keyInode, inode))
	b.Delete(idxKey(keyTail, inode))
	l.forget(inode)

	if err := l.idx.write(b); err != nil {
		return xerrors.Errorf("updating index: %w", err)
	}
	return nil
}

func (l *Log) appendRecord(body []byte) (int64, error) {
	off := l.dataLen

	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(body)))
	sum := checksum(body)

	for _, d := range [][]byte{lenBuf[:n], body, sum[:]} {
		if _, err := l.dataBuffered.Write(d); err != nil {
			// todo flag as corrupt
			return 0, err
		}
	}

	l.dataLen += int64(n + len(body) + checksumLen)
	return off, nil
}

var errNothingToCommit = errors.New("nothing to commit")

// Commit makes all records appended so far durable.
func (l *Log) Commit() (int64, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	return l.commit()
}

func (l *Log) commit() (int64, error) {
	if err := l.flush(); err != nil {
		return 0, err
	}

	if err := l.data.Sync(); err != nil {
		return 0, xerrors.Errorf("sync data: %w", err)
	}

	// index writes are sync, so if there were any appends just update head
	err := l.mutHead(func(h *Head) error {
		if h.RetiredAt == l.dataLen && h.NextID == int64(l.nextID) {
			return errNothingToCommit
		}

		h.RetiredAt = l.dataLen
		h.NextID = int64(l.nextID)
		return nil
	})
	switch err {
	case nil, errNothingToCommit:
		return l.dataLen, nil
	default:
		return 0, xerrors.Errorf("mutate head: %w", err)
	}
}

func (l *Log) flush() error {
	if l.dataBuffered.Buffered() == 0 {
		return nil
	}

	var err error
	for {
		err = l.dataBuffered.Flush()
		if err != io.ErrShortWrite {
			break
		}
	}
	if err != nil {
		return xerrors.Errorf("flushing buffered data: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	if _, err := l.Commit(); err != nil {
		return xerrors.Errorf("commit: %w", err)
	}

	l.lk.Lock()
	defer l.lk.Unlock()

	if err := l.data.Close(); err != nil {
		return xerrors.Errorf("closing data: %w", err)
	}
	if err := l.head.Close(); err != nil {
		return xerrors.Errorf("closing head: %w", err)
	}
	if err := l.idx.Close(); err != nil {
		return xerrors.Errorf("closing index: %w", err)
	}
	return nil
}

/* GC */

// OnRelocate registers a callback ran after every GC, once the log is usable
// again. Callbacks must refresh any handles they hold.
func (l *Log) OnRelocate(cb func() error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	l.onRelocate = append(l.onRelocate, cb)
}

// GC rewrites the data file keeping only live records.
//
// All handles issued before become stale; relocation callbacks are called
// after the log lock is released, so they may use the log.
func (l *Log) GC() error {
	l.lk.Lock()
	err := l.gc()
	hooks := append([]func() error(nil), l.onRelocate...)
	l.lk.Unlock()

	if err != nil {
		return xerrors.Errorf("gc: %w", err)
	}

	for _, h := range hooks {
		if err := h(); err != nil {
			return xerrors.Errorf("relocation callback: %w", err)
		}
	}
	return nil
}

func (l *Log) gc() error {
	if _, err := l.commit(); err != nil {
		return xerrors.Errorf("commit: %w", err)
	}

	var live []idxEntry
	err := l.idx.entries(func(e idxEntry) error {
		live = append(live, e)
		return nil
	})
	if err != nil {
		return xerrors.Errorf("listing live records: %w", err)
	}

	// keep log order
	sort.Slice(live, func(i, j int) bool {
		return live[i].off < live[j].off
	})

	gcPath := filepath.Join(l.root, gcDataName)
	f, err := os.OpenFile(gcPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return xerrors.Errorf("opening gc data: %w", err)
	}

	w := bufio.NewWriterSize(f, logBufSize)
	b := new(leveldb.Batch)

	var newLen int64
	for _, e := range live {
		n, err := l.recordLen(e.off)
		if err != nil {
			_ = f.Close()
			return xerrors.Errorf("record %d: %w", e.id, err)
		}

		buf := pool.Get(n)
		if _, err := l.data.ReadAt(buf, e.off); err != nil {
			pool.Put(buf)
			_ = f.Close()
			return xerrors.Errorf("reading record %d: %w", e.id, err)
		}
		_, err = w.Write(buf)
		pool.Put(buf)
		if err != nil {
			_ = f.Close()
			return xerrors.Errorf("writing record %d: %w", e.id, err)
		}

		e.off = newLen
		putEntry(b, e)
		newLen += int64(n)
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return xerrors.Errorf("flushing gc data: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return xerrors.Errorf("sync gc data: %w", err)
	}

	// todo the data swap and the index rewrite aren't atomic, a crash in
	//  between needs the index rebuilt from the data file
	if err := os.Rename(gcPath, filepath.Join(l.root, DataName)); err != nil {
		_ = f.Close()
		return xerrors.Errorf("replacing data file: %w", err)
	}
	if err := l.idx.write(b); err != nil {
		return xerrors.Errorf("updating index: %w", err)
	}

	if err := l.data.Close(); err != nil {
		log.Errorw("closing old data file", "error", err)
	}

	reclaimed := l.dataLen - newLen

	l.data = f
	l.dataBuffered = bufio.NewWriterSize(f, logBufSize)
	l.dataLen = newLen
	l.gen++

	if _, err := f.Seek(newLen, io.SeekStart); err != nil {
		return xerrors.Errorf("seeking to data end: %w", err)
	}

	if l.records != nil {
		l.records.Purge()
	}

	err = l.mutHead(func(h *Head) error {
		h.RetiredAt = newLen
		h.Generation = int64(l.gen)
		return nil
	})
	if err != nil {
		return xerrors.Errorf("updating head after gc: %w", err)
	}

	log.Infow("gc", "live", len(live), "reclaimed", reclaimed, "size", newLen, "generation", l.gen)
	return nil
}

/* READ SIDE */

func (l *Log) Generation() uint64 {
	l.lk.Lock()
	defer l.lk.Unlock()
	return l.gen
}

// DataSize returns the data file length, uncommitted records included.
func (l *Log) DataSize() int64 {
	l.lk.Lock()
	defer l.lk.Unlock()
	return l.dataLen
}

func (l *Log) ReadBlock(h nffs.Handle) (nffs.Block, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	rec, err := l.readBlockRecord(h)
	if err != nil {
		return nffs.Block{}, err
	}

	return nffs.Block{
		Handle:   h,
		Inode:    rec.inode,
		Seq:      rec.seq,
		DataLen:  rec.dataLen,
		Prev:     l.handle(rec.prev),
		DataHash: rec.hash,
	}, nil
}

func (l *Log) ReadInode(id nffs.ObjectID) (nffs.Inode, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	rec, err := l.readInodeRecord(id)
	if err != nil {
		return nffs.Inode{}, err
	}

	tail, err := l.idx.tail(id)
	if err != nil {
		return nffs.Inode{}, err
	}

	return nffs.Inode{
		Handle:    l.handle(id),
		Parent:    rec.parent,
		Seq:       rec.seq,
		Name:      rec.name,
		LastBlock: l.handle(tail),
	}, nil
}

// FileLength sums the data length of every block of the inode.
func (l *Log) FileLength(id nffs.ObjectID) (uint64, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	if _, err := l.readInodeRecord(id); err != nil {
		return 0, err
	}

	tail, err := l.idx.tail(id)
	if err != nil {
		return 0, err
	}

	var total uint64
	for bid := tail; bid != nffs.IDNone; {
		rec, err := l.readRecord(bid)
		if err != nil {
			return 0, xerrors.Errorf("block %d of inode %d: %w", bid, id, err)
		}
		if rec.typ != recBlock || rec.inode != id {
			return 0, xerrors.Errorf("object %d in chain of inode %d isn't its block: %w", bid, id, nffs.ErrCorrupt)
		}
		total += uint64(rec.dataLen)
		bid = rec.prev
	}
	return total, nil
}

// ReadData copies block payload starting at off into dst. The payload hash is
// verified on every read.
func (l *Log) ReadData(h nffs.Handle, off uint32, dst []byte) (int, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	rec, err := l.readBlockRecord(h)
	if err != nil {
		return 0, err
	}
	if off >= rec.dataLen {
		return 0, xerrors.Errorf("offset %d past block %d length %d", off, h.ID, rec.dataLen)
	}

	if err := l.flush(); err != nil {
		return 0, err
	}

	buf := pool.Get(int(rec.dataLen))
	defer pool.Put(buf)

	if _, err := l.data.ReadAt(buf, rec.dataOff); err != nil {
		return 0, xerrors.Errorf("reading block %d data: %w", h.ID, err)
	}

	dh, err := mh.Decode(rec.hash)
	if err != nil {
		return 0, xerrors.Errorf("decoding block %d hash: %w", h.ID, nffs.ErrCorrupt)
	}
	sum, err := mh.Sum(buf, dh.Code, dh.Length)
	if err != nil {
		return 0, xerrors.Errorf("hashing block %d: %w", h.ID, err)
	}
	if !bytes.Equal(sum, rec.hash) {
		return 0, xerrors.Errorf("block %d data hash mismatch: %w", h.ID, nffs.ErrCorrupt)
	}

	return copy(dst, buf[off:]), nil
}

// Inodes lists all live inodes in id order.
func (l *Log) Inodes() ([]nffs.ObjectID, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	var out []nffs.ObjectID
	err := l.idx.inodes(func(id nffs.ObjectID) error {
		out = append(out, id)
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("listing inodes: %w", err)
	}
	return out, nil
}

// Lookup finds a live inode by name.
func (l *Log) Lookup(name string) (nffs.ObjectID, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	found := nffs.IDNone
	errFound := errors.New("found")

	err := l.idx.inodes(func(id nffs.ObjectID) error {
		rec, err := l.readRecord(id)
		if err != nil {
			return err
		}
		if rec.name == name {
			found = id
			return errFound
		}
		return nil
	})
	switch {
	case err == errFound:
		return found, nil
	case err != nil:
		return nffs.IDNone, xerrors.Errorf("looking up %q: %w", name, err)
	default:
		return nffs.IDNone, xerrors.Errorf("inode %q: %w", name, nffs.ErrNotFound)
	}
}

func (l *Log) handle(id nffs.ObjectID) nffs.Handle {
	if id == nffs.IDNone {
		return nffs.Handle{}
	}
	return nffs.Handle{ID: id, Gen: l.gen}
}

// seq stamps records with the generation they were first written in
func (l *Log) seq() uint32 {
	return uint32(l.gen)
}

func (l *Log) forget(id nffs.ObjectID) {
	if l.records != nil {
		l.records.Remove(id)
	}
}

func (l *Log) readBlockRecord(h nffs.Handle) (record, error) {
	if h.Gen != l.gen {
		return record{}, xerrors.Errorf("block %d handle from generation %d, log at %d: %w", h.ID, h.Gen, l.gen, nffs.ErrStaleHandle)
	}

	rec, err := l.readRecord(h.ID)
	if err != nil {
		return record{}, err
	}
	if rec.typ != recBlock {
		return record{}, xerrors.Errorf("object %d is not a block: %w", h.ID, nffs.ErrNotFound)
	}
	return rec, nil
}

func (l *Log) readInodeRecord(id nffs.ObjectID) (record, error) {
	rec, err := l.readRecord(id)
	if err != nil {
		return record{}, err
	}
	if rec.typ != recInode {
		return record{}, xerrors.Errorf("object %d is not an inode: %w", id, nffs.ErrNotFound)
	}
	return rec, nil
}

func (l *Log) readRecord(id nffs.ObjectID) (record, error) {
	if l.records != nil {
		if rec, ok := l.records.Get(id); ok {
			return rec, nil
		}
	}

	e, found, err := l.idx.entry(id)
	if err != nil {
		return record{}, err
	}
	if !found {
		return record{}, xerrors.Errorf("object %d: %w", id, nffs.ErrNotFound)
	}

	if err := l.flush(); err != nil {
		return record{}, err
	}

	rec, err := l.readRecordAt(e.off)
	if err != nil {
		return record{}, xerrors.Errorf("reading object %d at %d: %w", id, e.off, err)
	}
	if rec.id != id {
		return record{}, xerrors.Errorf("record at %d belongs to object %d, expected %d: %w", e.off, rec.id, id, nffs.ErrCorrupt)
	}

	if l.records != nil {
		l.records.Add(id, rec)
	}
	return rec, nil
}

// lenPrefix reads the body length prefix of the record at off
func (l *Log) lenPrefix(off int64) (bodyLen int, lenlen int, err error) {
	var hdr [binary.MaxVarintLen64]byte
	n, err := l.data.ReadAt(hdr[:], off)
	if err != nil && !(err == io.EOF && n > 0) {
		return 0, 0, xerrors.Errorf("reading record length: %w", err)
	}

	bl, ll := binary.Uvarint(hdr[:n])
	if ll <= 0 || bl > maxRecordLen {
		return 0, 0, xerrors.Errorf("invalid record length prefix: %w", nffs.ErrCorrupt)
	}
	return int(bl), ll, nil
}

// recordLen returns the on-disk length of the record at off
func (l *Log) recordLen(off int64) (int, error) {
	bodyLen, lenlen, err := l.lenPrefix(off)
	if err != nil {
		return 0, err
	}
	return lenlen + bodyLen + checksumLen, nil
}

func (l *Log) readRecordAt(off int64) (record, error) {
	bodyLen, lenlen, err := l.lenPrefix(off)
	if err != nil {
		return record{}, err
	}

	buf := pool.Get(bodyLen + checksumLen)
	defer pool.Put(buf)

	bodyOff := off + int64(lenlen)
	if _, err := l.data.ReadAt(buf, bodyOff); err != nil {
		if err == io.EOF {
			return record{}, xerrors.Errorf("record at %d cut short: %w", off, nffs.ErrCorrupt)
		}
		return record{}, xerrors.Errorf("reading record: %w", err)
	}

	return decodeRecord(buf, bodyOff)
}
