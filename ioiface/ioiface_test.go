package ioiface_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wash2/NetBricks/ioiface"
	"github.com/wash2/NetBricks/mbuf"
)

func TestRingSendRecvFIFO(t *testing.T) {
	pool := mbuf.NewPool(4, 32)
	r := ioiface.NewRing(4)

	a, err := pool.Alloc()
	require.NoError(t, err)
	a.AddDataEnd(4)
	copy(a.Data(), []byte("aaaa"))

	b, err := pool.Alloc()
	require.NoError(t, err)
	b.AddDataEnd(4)
	copy(b.Data(), []byte("bbbb"))

	sent := r.Send([]mbuf.Mbuf{a, b})
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, r.Queued())

	slots := make([]mbuf.Mbuf, 2)
	received, _ := r.Recv(slots)
	assert.Equal(t, 2, received)
	assert.Equal(t, []byte("aaaa"), slots[0].Data())
	assert.Equal(t, []byte("bbbb"), slots[1].Data())
	assert.Equal(t, 0, r.Queued())
}

func TestRingSendRespectsCapacity(t *testing.T) {
	pool := mbuf.NewPool(4, 32)
	r := ioiface.NewRing(2)

	mbs := make([]mbuf.Mbuf, 3)
	for i := range mbs {
		mb, err := pool.Alloc()
		require.NoError(t, err)
		mbs[i] = mb
	}

	sent := r.Send(mbs)
	assert.Equal(t, 2, sent, "ring capacity is 2; the third mbuf must be refused, not dropped silently by Ring")
}
