package batch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wash2/NetBricks/batch"
	"github.com/wash2/NetBricks/ioiface"
	"github.com/wash2/NetBricks/mbuf"
)

func fillRing(t *testing.T, pool *mbuf.Pool, r *ioiface.Ring, n int) {
	t.Helper()
	slots := make([]mbuf.Mbuf, n)
	for i := 0; i < n; i++ {
		mb, err := pool.Alloc()
		require.NoError(t, err)
		mb.AddDataEnd(4)
		slots[i] = mb
	}
	sent := r.Send(slots)
	require.Equal(t, n, sent)
}

func TestRecvFillsFromRing(t *testing.T) {
	pool := mbuf.NewPool(8, 64)
	ring := ioiface.NewRing(8)
	fillRing(t, pool, ring, 3)

	b := batch.New(4)
	received, _ := b.Recv(ring)
	assert.Equal(t, 3, received)
	assert.Equal(t, 3, b.Len())
}

func TestNextPayloadVisitsEverySlotOnce(t *testing.T) {
	pool := mbuf.NewPool(8, 64)
	ring := ioiface.NewRing(8)
	fillRing(t, pool, ring, 4)

	b := batch.New(4)
	b.Recv(ring)

	count := 0
	for idx := b.Start(); ; {
		_, next, ok := b.NextPayload(idx)
		if !ok {
			break
		}
		idx = next
		count++
	}
	assert.Equal(t, 4, count)
}

type acceptN struct{ n int }

func (a *acceptN) Send(slots []mbuf.Mbuf) int {
	n := a.n
	if n > len(slots) {
		n = len(slots)
	}
	return n
}

func TestSendQBackpressureRetainsUnsent(t *testing.T) {
	pool := mbuf.NewPool(8, 64)
	ring := ioiface.NewRing(8)
	fillRing(t, pool, ring, 5)

	b := batch.New(8)
	b.Recv(ring)
	require.Equal(t, 5, b.Len())

	tx := &acceptN{n: 3}
	sent := b.SendQ(tx)
	assert.Equal(t, 3, sent)
	assert.Equal(t, 2, b.Len(), "2 unsent packets must remain for next tick")
}

func TestDropPacketsCompactsRemaining(t *testing.T) {
	pool := mbuf.NewPool(8, 64)
	ring := ioiface.NewRing(8)
	fillRing(t, pool, ring, 4)

	b := batch.New(4)
	b.Recv(ring)

	b.DropPackets([]int{1})
	assert.Equal(t, 3, b.Len())
}

func TestDoneReleasesUnlessKeepMbuf(t *testing.T) {
	pool := mbuf.NewPool(4, 64)
	ring := ioiface.NewRing(4)
	fillRing(t, pool, ring, 4)

	b := batch.New(4)
	b.Recv(ring)
	assert.Equal(t, 0, pool.Available())

	b.KeepMbuf = true
	b.Done()
	assert.Equal(t, 4, b.Len(), "KeepMbuf batch must not release on Done")

	b.KeepMbuf = false
	b.Done()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 4, pool.Available())
}
