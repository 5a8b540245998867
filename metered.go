package nffs

import "sync/atomic"

// MeteredLog counts the reads going through a Log.
type MeteredLog struct {
	sub Log

	blockReads, inodeReads, lengthReads int64
}

func NewMeteredLog(sub Log) *MeteredLog {
	return &MeteredLog{sub: sub}
}

func (m *MeteredLog) ReadBlock(h Handle) (Block, error) {
	atomic.AddInt64(&m.blockReads, 1)
	return m.sub.ReadBlock(h)
}

func (m *MeteredLog) ReadInode(id ObjectID) (Inode, error) {
	atomic.AddInt64(&m.inodeReads, 1)
	return m.sub.ReadInode(id)
}

func (m *MeteredLog) FileLength(id ObjectID) (uint64, error) {
	atomic.AddInt64(&m.lengthReads, 1)
	return m.sub.FileLength(id)
}

type LogReads struct {
	Blocks, Inodes, Lengths int64
}

func (m *MeteredLog) Reads() LogReads {
	return LogReads{
		Blocks:  atomic.LoadInt64(&m.blockReads),
		Inodes:  atomic.LoadInt64(&m.inodeReads),
		Lengths: atomic.LoadInt64(&m.lengthReads),
	}
}

var _ Log = &MeteredLog{}
