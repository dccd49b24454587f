package executable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wash2/NetBricks/executable"
	"github.com/wash2/NetBricks/ioiface"
	"github.com/wash2/NetBricks/mbuf"
	"github.com/wash2/NetBricks/operator"
)

type fakeRx struct {
	pool      *mbuf.Pool
	remaining int
}

func (f *fakeRx) Recv(slots []mbuf.Mbuf) (int, int) {
	n := f.remaining
	if n > len(slots) {
		n = len(slots)
	}
	for i := 0; i < n; i++ {
		mb, _ := f.pool.Alloc()
		mb.AddDataEnd(4)
		slots[i] = mb
	}
	f.remaining -= n
	return n, f.remaining
}

func (f *fakeRx) Queued() int { return f.remaining }

var _ ioiface.PacketRx = (*fakeRx)(nil)

func TestRunDrivesFixedTickCount(t *testing.T) {
	pool := mbuf.NewPool(16, 64)
	rx := &fakeRx{pool: pool, remaining: 10}
	rb := operator.NewReceiveBatch(rx, 4)
	root := executable.FromAct(rb)

	total := executable.Run(root, 10)
	assert.Equal(t, 10, total)
}

func TestRunStopsProducingOnceSourceExhausted(t *testing.T) {
	pool := mbuf.NewPool(16, 64)
	rx := &fakeRx{pool: pool, remaining: 3}
	rb := operator.NewReceiveBatch(rx, 8)
	root := executable.FromAct(rb)

	total := executable.Run(root, 5)
	assert.Equal(t, 3, total)
}
