package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolExhaustion(t *testing.T) {
	p := newPool[int]("test", 3)
	require.Equal(t, 3, p.capacity())
	require.Equal(t, 3, p.available())

	var refs []ref
	for i := 0; i < 3; i++ {
		r, v, ok := p.alloc()
		require.True(t, ok)
		require.Equal(t, 0, *v)
		*v = i + 10
		refs = append(refs, r)
	}

	_, _, ok := p.alloc()
	require.False(t, ok)
	require.Equal(t, 0, p.available())
	require.Equal(t, 3, p.inUse())

	for i, r := range refs {
		require.Equal(t, i+10, *p.get(r))
	}

	p.release(refs[1])
	require.Equal(t, 1, p.available())

	r, v, ok := p.alloc()
	require.True(t, ok)
	require.Equal(t, 0, *v, "reused slot must be zeroed")
	require.Equal(t, refs[1].idx, r.idx)
	require.NotEqual(t, refs[1].gen, r.gen)
}

func TestPoolStaleRef(t *testing.T) {
	p := newPool[string]("test", 1)

	r, v, ok := p.alloc()
	require.True(t, ok)
	*v = "x"

	p.release(r)
	require.Nil(t, p.get(r))

	r2, _, ok := p.alloc()
	require.True(t, ok)
	require.Nil(t, p.get(r), "old ref must not resolve to the reused slot")
	require.NotNil(t, p.get(r2))

	require.Nil(t, p.get(nilRef))
	require.Nil(t, p.get(ref{idx: 7, gen: 1}))
}

func TestPoolDoubleRelease(t *testing.T) {
	p := newPool[int]("test", 2)

	r, _, ok := p.alloc()
	require.True(t, ok)
	p.release(r)

	require.Panics(t, func() {
		p.release(r)
	})
}
