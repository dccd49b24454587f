package operator

import (
	"github.com/sirupsen/logrus"

	"github.com/wash2/NetBricks/batch"
	"github.com/wash2/NetBricks/header"
	"github.com/wash2/NetBricks/internal/logging"
	"github.com/wash2/NetBricks/ioiface"
	"github.com/wash2/NetBricks/packet"
)

// groupByChild is one output group's batch.
type groupByChild struct {
	b *batch.PacketBatch
}

// groupByBase is the non-generic state groupByChildHandle needs.
// Classification itself is generic (over T, M), so NewGroupBy closes
// over a type-erased classify func rather than parameterizing
// groupByBase/groupByChildHandle directly.
//
// Go's pull model means each output group may be driven by an
// independently scheduled downstream pipeline, so the classification
// pass over parent must run at most once per tick no matter which
// child is acted on first. classifyDone memoizes that; doneCount
// counts how many children have finished their Done() this round, and
// once every child has, the memo resets for the next tick.
type groupByBase struct {
	classify     func() (produced int, hint int)
	children     []*groupByChild
	classifyDone bool
	doneCount    int
}

// NewGroupBy builds a GroupBy stage over parent with nGroups output
// children, classified by classifier (which must return a value in
// [0, nGroups) — out-of-range results are dropped and logged).
func NewGroupBy[T header.Header, M any](parent Act, stackSize, nGroups, capacity int, classifier func(*packet.Packet[T, M]) int) []Batch {
	base := &groupByBase{}
	base.children = make([]*groupByChild, nGroups)
	for i := range base.children {
		base.children[i] = &groupByChild{b: batch.New(capacity)}
	}

	base.classify = func() (int, int) {
		if base.classifyDone {
			return 0, 0
		}
		produced, hint := parent.Act()
		pb := parent.GetPacketBatch()
		for idx := pb.Start(); ; {
			pdu, next, ok := pb.NextPayload(idx)
			if !ok {
				break
			}
			idx = next
			p, ok2 := packet.RestoreSavedHeader[T, M](pdu.Mbuf, stackSize)
			if !ok2 {
				p = packet.FromMbuf[T, M](pdu.Mbuf, 0, stackSize)
			}
			gi := classifier(&p)
			if gi < 0 || gi >= len(base.children) {
				logging.Debug("group_by: classifier returned out-of-range group, dropping", logrus.Fields{"group": gi})
				pdu.Mbuf.Release()
				continue
			}
			p.SaveHeaderAndOffset()
			if !base.children[gi].b.Append(pdu.Mbuf) {
				logging.Debug("group_by: child batch full, dropping", logrus.Fields{"group": gi})
				pdu.Mbuf.Release()
			}
		}
		pb.ClearPackets()
		base.classifyDone = true
		return produced, hint
	}

	out := make([]Batch, nGroups)
	for i := range out {
		out[i] = &groupByChildHandle{owner: base, idx: i}
	}
	return out
}

// groupByChildHandle is the Batch a downstream stage actually holds;
// it forwards Act/Done to the owning GroupBy's shared classification
// pass and otherwise operates on its own slice of the split output.
type groupByChildHandle struct {
	owner *groupByBase
	idx   int
}

var _ Batch = (*groupByChildHandle)(nil)

func (h *groupByChildHandle) myBatch() *batch.PacketBatch { return h.owner.children[h.idx].b }

func (h *groupByChildHandle) Start() int { return startOf(h.myBatch()) }
func (h *groupByChildHandle) NextPayload(idx int) (batch.Pdu, int, bool) {
	return h.myBatch().NextPayload(idx)
}

func (h *groupByChildHandle) Act() (int, int) { return h.owner.classify() }

func (h *groupByChildHandle) Done() {
	h.myBatch().Done()
	h.owner.doneCount++
	if h.owner.doneCount >= len(h.owner.children) {
		h.owner.doneCount = 0
		h.owner.classifyDone = false
	}
}

func (h *groupByChildHandle) SendQ(tx ioiface.PacketTx) int      { return h.myBatch().SendQ(tx) }
func (h *groupByChildHandle) Capacity() int                      { return h.myBatch().Capacity() }
func (h *groupByChildHandle) DropPackets(idxs []int)             { h.myBatch().DropPackets(idxs) }
func (h *groupByChildHandle) DropPacketsAll()                    { h.myBatch().DropPacketsAll() }
func (h *groupByChildHandle) ClearPackets()                      { h.myBatch().ClearPackets() }
func (h *groupByChildHandle) GetPacketBatch() *batch.PacketBatch { return h.myBatch() }
func (h *groupByChildHandle) Queued() int                        { return h.myBatch().Len() }
