package fileio

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lotus-web3/nffs"
	"github.com/lotus-web3/nffs/cache"
	"github.com/lotus-web3/nffs/flashlog"
)

// writeRandom stores size random bytes in blocks of random length up to 64
func writeRandom(t *testing.T, l *flashlog.Log, rng *rand.Rand, name string, size int) (nffs.ObjectID, []byte) {
	t.Helper()

	data := make([]byte, size)
	rng.Read(data)

	id, err := l.NewInode(nffs.IDNone, name)
	require.NoError(t, err)

	for rest := data; len(rest) > 0; {
		n := 1 + rng.Intn(64)
		if n > len(rest) {
			n = len(rest)
		}
		_, err := l.AppendBlock(id, rest[:n])
		require.NoError(t, err)
		rest = rest[n:]
	}
	return id, data
}

func openTestLog(t *testing.T) *flashlog.Log {
	l, err := flashlog.Create(t.TempDir(), flashlog.WithMaxDataLen(64))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, l.Close())
	})
	return l
}

func TestReadSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := openTestLog(t)

	id, data := writeRandom(t, l, rng, "f", 3000)

	g, err := cache.NewGuarded(l, cache.WithBlockCapacity(8))
	require.NoError(t, err)

	r, err := NewReader(g, l, id)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), r.Size())

	got, err := io.ReadAll(io.NewSectionReader(r, 0, r.Size()))
	require.NoError(t, err)
	require.Equal(t, data, got)

	st := g.Stats()
	require.LessOrEqual(t, st.BlocksInUse, 8)
	require.Greater(t, st.BlockReclaims, int64(0))
}

func TestReadAtBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	l := openTestLog(t)

	id, data := writeRandom(t, l, rng, "f", 500)
	empty, err := l.NewInode(nffs.IDNone, "empty")
	require.NoError(t, err)

	g, err := cache.NewGuarded(l)
	require.NoError(t, err)

	r, err := NewReader(g, l, id)
	require.NoError(t, err)

	// short read at the end
	buf := make([]byte, 100)
	n, err := r.ReadAt(buf, 450)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 50, n)
	require.Equal(t, data[450:], buf[:n])

	n, err = r.ReadAt(buf, 500)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 0, n)

	_, err = r.ReadAt(buf, -1)
	require.Error(t, err)

	er, err := NewReader(g, l, empty)
	require.NoError(t, err)
	n, err = er.ReadAt(buf, 0)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 0, n)

	_, err = NewReader(g, l, 12345)
	require.ErrorIs(t, err, nffs.ErrNotFound)
}

func TestReadRandomMultipleFiles(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	l := openTestLog(t)

	files := map[nffs.ObjectID][]byte{}
	var ids []nffs.ObjectID
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		id, data := writeRandom(t, l, rng, name, 200+rng.Intn(2000))
		files[id] = data
		ids = append(ids, id)
	}

	g, err := cache.NewGuarded(l, cache.WithBlockCapacity(12), cache.WithInodeCapacity(2))
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		data := files[id]

		r, err := NewReader(g, l, id)
		require.NoError(t, err)

		off := rng.Intn(len(data))
		buf := make([]byte, 1+rng.Intn(300))
		n, err := r.ReadAt(buf, int64(off))
		if off+len(buf) > len(data) {
			require.ErrorIs(t, err, io.EOF)
		} else {
			require.NoError(t, err)
		}
		require.Equal(t, data[off:off+n], buf[:n])
	}
}

func TestReadAcrossGC(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	l := openTestLog(t)

	id, data := writeRandom(t, l, rng, "keep", 1000)
	dead, _ := writeRandom(t, l, rng, "dead", 1000)

	g, err := cache.NewGuarded(l)
	require.NoError(t, err)
	l.OnRelocate(g.Refresh)

	r, err := NewReader(g, l, id)
	require.NoError(t, err)

	buf := make([]byte, 1000)
	_, err = r.ReadAt(buf, 0)
	require.NoError(t, err)

	require.NoError(t, l.Unlink(dead))
	require.NoError(t, l.GC())

	// the hook dropped all cached blocks
	require.Equal(t, 0, g.Stats().BlocksInUse)

	_, err = r.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, data, buf)
}

func TestReadRefreshesStaleCache(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	l := openTestLog(t)

	id, data := writeRandom(t, l, rng, "f", 800)

	// no relocation hook, the reader has to notice on its own
	g, err := cache.NewGuarded(l)
	require.NoError(t, err)

	r, err := NewReader(g, l, id)
	require.NoError(t, err)

	buf := make([]byte, 800)
	_, err = r.ReadAt(buf, 0)
	require.NoError(t, err)

	require.NoError(t, l.GC())

	buf = make([]byte, 800)
	_, err = r.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, data, buf)
}

func TestConcurrentReaders(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	l := openTestLog(t)

	files := map[nffs.ObjectID][]byte{}
	for _, name := range []string{"a", "b", "c"} {
		id, data := writeRandom(t, l, rng, name, 1500)
		files[id] = data
	}

	g, err := cache.NewGuarded(l, cache.WithBlockCapacity(10), cache.WithInodeCapacity(2))
	require.NoError(t, err)

	var eg errgroup.Group
	for id, data := range files {
		id, data := id, data
		for w := 0; w < 3; w++ {
			eg.Go(func() error {
				r, err := NewReader(g, l, id)
				if err != nil {
					return err
				}

				// 32 byte reads straddle block boundaries
				buf := make([]byte, 32)
				for off := 0; off < len(data); off += len(buf) {
					n, err := r.ReadAt(buf, int64(off))
					if err != nil && err != io.EOF {
						return err
					}
					if string(buf[:n]) != string(data[off:off+n]) {
						return io.ErrUnexpectedEOF
					}
				}
				return nil
			})
		}
	}
	require.NoError(t, eg.Wait())
}
