package nffs

import (
	"errors"

	"github.com/multiformats/go-multihash"
)

// ObjectID identifies an inode or data block record in the flash log.
type ObjectID uint32

// IDNone is never assigned to a record.
const IDNone = ObjectID(0)

var (
	// ErrNotFound is returned for missing objects and for seeks into files
	// without data.
	ErrNotFound = errors.New("not found")

	// ErrStaleHandle is returned when a handle issued before the last garbage
	// collection is used.
	ErrStaleHandle = errors.New("stale flash log handle")

	// ErrCorrupt is returned when a record fails checksum, type or hash checks.
	ErrCorrupt = errors.New("corrupt flash log record")
)

// Handle is a weak reference into the flash log index. It is only valid for
// the log generation which issued it; garbage collection moves records and
// bumps the generation.
type Handle struct {
	ID  ObjectID
	Gen uint64
}

func (h Handle) Valid() bool {
	return h.ID != IDNone
}

// Block is the metadata of one data block record. Payload bytes are not part
// of it.
type Block struct {
	Handle  Handle
	Inode   ObjectID
	Seq     uint32
	DataLen uint32

	// Prev is the next-older block of the same file, invalid for the first
	// block in the chain
	Prev Handle

	DataHash multihash.Multihash
}

// Inode is a snapshot of one inode record.
type Inode struct {
	Handle Handle
	Parent ObjectID
	Seq    uint32
	Name   string

	// LastBlock is the newest block of the file, invalid for empty files
	LastBlock Handle
}

// Log is the read side of the flash log, as used by the cache.
//
// Implementations are not required to be thread safe; the cache never calls
// into the log concurrently.
type Log interface {
	// ReadBlock materializes block metadata from a handle.
	ReadBlock(h Handle) (Block, error)

	// ReadInode reads the current inode record for id.
	ReadInode(id ObjectID) (Inode, error)

	// FileLength sums data lengths over the whole block chain of an inode.
	FileLength(id ObjectID) (uint64, error)
}
