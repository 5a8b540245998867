package flashlog

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/xerrors"

	"github.com/lotus-web3/nffs"
)

// Record layout:
//
//	[uvarint bodyLen][body][checksum: first 4 bytes of sha256(body)]
//
// body:
//
//	[type: u8][id: u32][seq: u32]
//	inode: [parent: u32][nameLen: u8][name]
//	block: [inode: u32][prev: u32][dataLen: u32][mhLen: u8][multihash][data]
//
// All integers little endian.

type recordType byte

const (
	recInode recordType = iota + 1
	recBlock
)

const (
	checksumLen = 4

	commonHdrLen = 1 + 4 + 4
	inodeHdrLen  = commonHdrLen + 4 + 1
	blockHdrLen  = commonHdrLen + 4 + 4 + 4 + 1

	MaxNameLen = 255
)

// record is a decoded record header. Payload bytes are never kept, only
// their location.
type record struct {
	typ recordType
	id  nffs.ObjectID
	seq uint32

	// inode
	parent nffs.ObjectID
	name   string

	// block
	inode   nffs.ObjectID
	prev    nffs.ObjectID
	dataLen uint32
	hash    mh.Multihash

	// offset of the payload in the data file
	dataOff int64
}

func checksum(body []byte) [checksumLen]byte {
	var c [checksumLen]byte
	s := sha256.Sum256(body)
	copy(c[:], s[:checksumLen])
	return c
}

func putCommon(b []byte, typ recordType, id nffs.ObjectID, seq uint32) {
	b[0] = byte(typ)
	binary.LittleEndian.PutUint32(b[1:], uint32(id))
	binary.LittleEndian.PutUint32(b[5:], seq)
}

func encodeInode(id nffs.ObjectID, seq uint32, parent nffs.ObjectID, name string) []byte {
	body := make([]byte, inodeHdrLen+len(name))
	putCommon(body, recInode, id, seq)
	binary.LittleEndian.PutUint32(body[commonHdrLen:], uint32(parent))
	body[commonHdrLen+4] = byte(len(name))
	copy(body[inodeHdrLen:], name)
	return body
}

func encodeBlock(id nffs.ObjectID, seq uint32, inode, prev nffs.ObjectID, hash mh.Multihash, data []byte) []byte {
	body := make([]byte, blockHdrLen+len(hash)+len(data))
	putCommon(body, recBlock, id, seq)
	binary.LittleEndian.PutUint32(body[commonHdrLen:], uint32(inode))
	binary.LittleEndian.PutUint32(body[commonHdrLen+4:], uint32(prev))
	binary.LittleEndian.PutUint32(body[commonHdrLen+8:], uint32(len(data)))
	body[commonHdrLen+12] = byte(len(hash))
	copy(body[blockHdrLen:], hash)
	copy(body[blockHdrLen+len(hash):], data)
	return body
}

// decodeRecord parses a checksummed body read from offset bodyOff
func decodeRecord(buf []byte, bodyOff int64) (record, error) {
	if len(buf) < commonHdrLen+checksumLen {
		return record{}, xerrors.Errorf("record too short (%d bytes): %w", len(buf), nffs.ErrCorrupt)
	}

	body, sum := buf[:len(buf)-checksumLen], buf[len(buf)-checksumLen:]
	if c := checksum(body); string(c[:]) != string(sum) {
		return record{}, xerrors.Errorf("record checksum mismatch (%x != %x): %w", sum, c, nffs.ErrCorrupt)
	}

	r := record{
		typ: recordType(body[0]),
		id:  nffs.ObjectID(binary.LittleEndian.Uint32(body[1:])),
		seq: binary.LittleEndian.Uint32(body[5:]),
	}

	switch r.typ {
	case recInode:
		if len(body) < inodeHdrLen {
			return record{}, xerrors.Errorf("inode record too short: %w", nffs.ErrCorrupt)
		}
		r.parent = nffs.ObjectID(binary.LittleEndian.Uint32(body[commonHdrLen:]))
		nameLen := int(body[commonHdrLen+4])
		if len(body) != inodeHdrLen+nameLen {
			return record{}, xerrors.Errorf("inode record length mismatch: %w", nffs.ErrCorrupt)
		}
		r.name = string(body[inodeHdrLen:])
	case recBlock:
		if len(body) < blockHdrLen {
			return record{}, xerrors.Errorf("block record too short: %w", nffs.ErrCorrupt)
		}
		r.inode = nffs.ObjectID(binary.LittleEndian.Uint32(body[commonHdrLen:]))
		r.prev = nffs.ObjectID(binary.LittleEndian.Uint32(body[commonHdrLen+4:]))
		r.dataLen = binary.LittleEndian.Uint32(body[commonHdrLen+8:])
		mhLen := int(body[commonHdrLen+12])
		if len(body) != blockHdrLen+mhLen+int(r.dataLen) {
			return record{}, xerrors.Errorf("block record length mismatch: %w", nffs.ErrCorrupt)
		}

		hash := make([]byte, mhLen)
		copy(hash, body[blockHdrLen:])
		r.hash = hash
		r.dataOff = bodyOff + int64(blockHdrLen+mhLen)
	default:
		return record{}, xerrors.Errorf("unknown record type %d: %w", r.typ, nffs.ErrCorrupt)
	}

	return r, nil
}
