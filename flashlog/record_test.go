package flashlog

import (
	"testing"

	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/lotus-web3/nffs"
)

func sealed(body []byte) []byte {
	sum := checksum(body)
	return append(append([]byte{}, body...), sum[:]...)
}

func TestDecodeBlockRecord(t *testing.T) {
	data := []byte("some block data")
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	require.NoError(t, err)

	rec, err := decodeRecord(sealed(encodeBlock(7, 1, 3, 5, hash, data)), 100)
	require.NoError(t, err)

	require.Equal(t, recBlock, rec.typ)
	require.Equal(t, nffs.ObjectID(7), rec.id)
	require.Equal(t, nffs.ObjectID(3), rec.inode)
	require.Equal(t, nffs.ObjectID(5), rec.prev)
	require.Equal(t, uint32(len(data)), rec.dataLen)
	require.Equal(t, []byte(hash), []byte(rec.hash))
	require.Equal(t, int64(100+blockHdrLen+len(hash)), rec.dataOff)
}

func TestDecodeRejectsBadRecords(t *testing.T) {
	good := sealed(encodeInode(2, 1, nffs.IDNone, "name"))

	rec, err := decodeRecord(good, 0)
	require.NoError(t, err)
	require.Equal(t, "name", rec.name)

	flipped := append([]byte{}, good...)
	flipped[len(flipped)-checksumLen-1] ^= 0xff
	_, err = decodeRecord(flipped, 0)
	require.ErrorIs(t, err, nffs.ErrCorrupt)

	_, err = decodeRecord(good[:5], 0)
	require.ErrorIs(t, err, nffs.ErrCorrupt)

	// valid checksum, unknown type
	body := encodeInode(2, 1, nffs.IDNone, "name")
	body[0] = 9
	_, err = decodeRecord(sealed(body), 0)
	require.ErrorIs(t, err, nffs.ErrCorrupt)

	// valid checksum, name length past the end
	body = encodeInode(2, 1, nffs.IDNone, "name")
	body[commonHdrLen+4] = 10
	_, err = decodeRecord(sealed(body), 0)
	require.ErrorIs(t, err, nffs.ErrCorrupt)
}
