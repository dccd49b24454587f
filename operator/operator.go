// Package operator implements the batch operator algebra: pull-based
// stages over a PacketBatch composed into a pipeline, grounded in the
// Rust original's operators/{merge_batch,receive_batch}.rs and the
// teacher's flow-function catalogue in flow/flow.go (receive, handle,
// separate, split, merge, send renamed here to their generic
// equivalents TransformBatch/MapBatch/FilterBatch/MergeBatch/
// SendBatch).
//
// Go generics cannot add type parameters to an interface method
// beyond its receiver's, so the triad {BatchIterator, Act, Batch} is
// deliberately non-generic and type-erased: every stage reconstructs
// a typed packet.Packet[T, M] per mbuf via packet.FromMbuf /
// packet.RestoreSavedHeader, applies the caller's typed function, and
// calls SaveHeaderAndOffset before handing the raw mbuf to the next
// stage. TransformBatch/MapBatch/FilterBatch/GroupBy remain generic
// constructors that return a concrete type implementing the
// non-generic Act interface.
package operator

import (
	"github.com/sirupsen/logrus"

	"github.com/wash2/NetBricks/batch"
	"github.com/wash2/NetBricks/header"
	"github.com/wash2/NetBricks/internal/logging"
	"github.com/wash2/NetBricks/ioiface"
	"github.com/wash2/NetBricks/packet"
)

// BatchIterator is the pull interface over a stage's current batch.
type BatchIterator interface {
	Start() int
	NextPayload(idx int) (batch.Pdu, int, bool)
}

// Act is the per-tick interface every operator stage satisfies.
type Act interface {
	// Act performs this tick's work, returning (packets produced,
	// queue-depth hint).
	Act() (int, int)
	// Done finalizes the tick: it releases or keeps the stage's
	// batch, cascading to the parent where the stage has one. Drops
	// are not deferred to Done; FilterBatch and MapBatch remove their
	// dropped packets before Act returns.
	Done()
	SendQ(tx ioiface.PacketTx) int
	Capacity() int
	DropPackets(idxs []int)
	DropPacketsAll()
	ClearPackets()
	GetPacketBatch() *batch.PacketBatch
}

// Batch is the full composition interface: pull + act + an advisory
// backlog size for schedulability.
type Batch interface {
	BatchIterator
	Act
	Queued() int
}

func startOf(b *batch.PacketBatch) int { return b.Start() }

// ReceiveBatch is the pipeline leaf: it owns a PacketBatch and pulls
// from rx each tick. Urgent, when set, makes Queued report an
// artificially large backlog whenever any packet is available, so a
// priority scheduler can jump this pipeline ahead of others — matching
// the original's "urgent-mode" ReceiveBatch behavior.
type ReceiveBatch struct {
	rx     ioiface.PacketRx
	b      *batch.PacketBatch
	Urgent bool
}

var _ Batch = (*ReceiveBatch)(nil)

// NewReceiveBatch constructs a leaf stage pulling from rx into a batch
// of the given capacity.
func NewReceiveBatch(rx ioiface.PacketRx, capacity int) *ReceiveBatch {
	return &ReceiveBatch{rx: rx, b: batch.New(capacity)}
}

func (r *ReceiveBatch) Start() int { return startOf(r.b) }
func (r *ReceiveBatch) NextPayload(idx int) (batch.Pdu, int, bool) { return r.b.NextPayload(idx) }

func (r *ReceiveBatch) Act() (int, int) {
	return r.b.Recv(r.rx)
}

func (r *ReceiveBatch) Done()                       { r.b.Done() }
func (r *ReceiveBatch) SendQ(tx ioiface.PacketTx) int { return r.b.SendQ(tx) }
func (r *ReceiveBatch) Capacity() int               { return r.b.Capacity() }
func (r *ReceiveBatch) DropPackets(idxs []int)      { r.b.DropPackets(idxs) }
func (r *ReceiveBatch) DropPacketsAll()             { r.b.DropPacketsAll() }
func (r *ReceiveBatch) ClearPackets()               { r.b.ClearPackets() }
func (r *ReceiveBatch) GetPacketBatch() *batch.PacketBatch { return r.b }

// Queued reports rx's advisory backlog, or 10000 in Urgent mode
// whenever any packet is pending.
func (r *ReceiveBatch) Queued() int {
	q := r.rx.Queued()
	if r.Urgent && q > 0 {
		return 10000
	}
	return q
}

// forwardAct wraps the common "delegate everything but Act to parent"
// plumbing shared by TransformBatch/MapBatch.
type forwardAct struct {
	parent Act
}

func (f forwardAct) Start() int { return startOf(f.parent.GetPacketBatch()) }
func (f forwardAct) NextPayload(idx int) (batch.Pdu, int, bool) {
	return f.parent.GetPacketBatch().NextPayload(idx)
}
func (f forwardAct) SendQ(tx ioiface.PacketTx) int  { return f.parent.SendQ(tx) }
func (f forwardAct) Capacity() int                  { return f.parent.Capacity() }
func (f forwardAct) DropPackets(idxs []int)         { f.parent.DropPackets(idxs) }
func (f forwardAct) DropPacketsAll()                { f.parent.DropPacketsAll() }
func (f forwardAct) ClearPackets()                  { f.parent.ClearPackets() }
func (f forwardAct) GetPacketBatch() *batch.PacketBatch { return f.parent.GetPacketBatch() }
func (f forwardAct) Done()                          { f.parent.Done() }

// TransformBatch applies fn in place to every packet in the parent
// batch, reinterpreted as Packet[T, M]; fn may mutate the header or
// payload but the packet's current header type does not change.
type TransformBatch[T header.Header, M any] struct {
	forwardAct
	stackSize int
	fn        func(*packet.Packet[T, M])
}

var _ Act = (*TransformBatch[header.Null, struct{}])(nil)

// NewTransformBatch builds a TransformBatch stage over parent.
func NewTransformBatch[T header.Header, M any](parent Act, stackSize int, fn func(*packet.Packet[T, M])) *TransformBatch[T, M] {
	return &TransformBatch[T, M]{forwardAct: forwardAct{parent: parent}, stackSize: stackSize, fn: fn}
}

func (t *TransformBatch[T, M]) Act() (int, int) {
	produced, hint := t.parent.Act()
	pb := t.parent.GetPacketBatch()
	for idx := pb.Start(); ; {
		pdu, next, ok := pb.NextPayload(idx)
		if !ok {
			break
		}
		idx = next
		p, ok2 := packet.RestoreSavedHeader[T, M](pdu.Mbuf, t.stackSize)
		if !ok2 {
			p = packet.FromMbuf[T, M](pdu.Mbuf, 0, t.stackSize)
		}
		t.fn(&p)
		p.SaveHeaderAndOffset()
	}
	return produced, hint
}

// MapBatch applies fn to every packet, allowing its current header
// type to change from Tin to Tout (e.g. a parse). The result's header
// and offset are saved back onto the mbuf for the next stage to pick
// up.
type MapBatch[Tin header.Header, Tout header.Header, M any] struct {
	forwardAct
	stackSize int
	fn        func(packet.Packet[Tin, M]) (packet.Packet[Tout, M], error)
}

var _ Act = (*MapBatch[header.Null, header.Null, struct{}])(nil)

// NewMapBatch builds a MapBatch stage over parent. fn may fail (a
// short packet on parse, say); failed packets are dropped before Act
// returns.
func NewMapBatch[Tin header.Header, Tout header.Header, M any](parent Act, stackSize int, fn func(packet.Packet[Tin, M]) (packet.Packet[Tout, M], error)) *MapBatch[Tin, Tout, M] {
	return &MapBatch[Tin, Tout, M]{forwardAct: forwardAct{parent: parent}, stackSize: stackSize, fn: fn}
}

func (m *MapBatch[Tin, Tout, M]) Act() (int, int) {
	produced, hint := m.parent.Act()
	pb := m.parent.GetPacketBatch()
	var failed []int
	for idx := pb.Start(); ; {
		pdu, next, ok := pb.NextPayload(idx)
		if !ok {
			break
		}
		idx = next
		p, ok2 := packet.RestoreSavedHeader[Tin, M](pdu.Mbuf, m.stackSize)
		if !ok2 {
			p = packet.FromMbuf[Tin, M](pdu.Mbuf, 0, m.stackSize)
		}
		out, err := m.fn(p)
		if err != nil {
			logging.Debug("map_batch: dropping packet", logrus.Fields{"error": err})
			failed = append(failed, pdu.Idx)
			continue
		}
		out.SaveHeaderAndOffset()
	}
	if len(failed) > 0 {
		pb.DropPackets(failed)
	}
	return produced, hint
}

// FilterBatch marks packets failing pred for removal and compacts
// them out of the parent's batch before Act returns, so any stage
// reading the parent's batch afterward (directly, or through a
// downstream Act() call) already sees the filtered result — a
// consumer must never have to wait for Done to observe a correct
// batch.
type FilterBatch[T header.Header, M any] struct {
	parent    Act
	stackSize int
	pred      func(*packet.Packet[T, M]) bool
	pending   []int
}

var _ Act = (*FilterBatch[header.Null, struct{}])(nil)

// NewFilterBatch builds a FilterBatch stage over parent.
func NewFilterBatch[T header.Header, M any](parent Act, stackSize int, pred func(*packet.Packet[T, M]) bool) *FilterBatch[T, M] {
	return &FilterBatch[T, M]{parent: parent, stackSize: stackSize, pred: pred}
}

func (fb *FilterBatch[T, M]) Start() int { return startOf(fb.parent.GetPacketBatch()) }
func (fb *FilterBatch[T, M]) NextPayload(idx int) (batch.Pdu, int, bool) {
	return fb.parent.GetPacketBatch().NextPayload(idx)
}

func (fb *FilterBatch[T, M]) Act() (int, int) {
	produced, hint := fb.parent.Act()
	pb := fb.parent.GetPacketBatch()
	fb.pending = fb.pending[:0]
	for idx := pb.Start(); ; {
		pdu, next, ok := pb.NextPayload(idx)
		if !ok {
			break
		}
		idx = next
		p, ok2 := packet.RestoreSavedHeader[T, M](pdu.Mbuf, fb.stackSize)
		if !ok2 {
			p = packet.FromMbuf[T, M](pdu.Mbuf, 0, fb.stackSize)
		}
		if !fb.pred(&p) {
			fb.pending = append(fb.pending, pdu.Idx)
			continue
		}
		p.SaveHeaderAndOffset()
	}
	if len(fb.pending) > 0 {
		pb.DropPackets(fb.pending)
		fb.pending = fb.pending[:0]
	}
	return produced, hint
}

func (fb *FilterBatch[T, M]) Done() {
	fb.parent.Done()
}

func (fb *FilterBatch[T, M]) SendQ(tx ioiface.PacketTx) int  { return fb.parent.SendQ(tx) }
func (fb *FilterBatch[T, M]) Capacity() int                  { return fb.parent.Capacity() }
func (fb *FilterBatch[T, M]) DropPackets(idxs []int)         { fb.parent.DropPackets(idxs) }
func (fb *FilterBatch[T, M]) DropPacketsAll()                { fb.parent.DropPacketsAll() }
func (fb *FilterBatch[T, M]) ClearPackets()                  { fb.parent.ClearPackets() }
func (fb *FilterBatch[T, M]) GetPacketBatch() *batch.PacketBatch { return fb.parent.GetPacketBatch() }

// SendBatch pulls from parent then attempts to transmit the result
// through tx. Unlike Transform/Map/Filter, SendBatch owns its own
// retained PacketBatch (KeepMbuf=true): each tick it takes ownership
// of every packet parent produced (clearing parent's batch, so
// parent.Done() never sees — and so never frees — packets SendBatch
// is now responsible for), appends them after whatever SendQ could
// not transmit last tick, and offers the combined, front-compacted
// array to tx. This keeps backpressure retention local to SendBatch
// regardless of whether upstream stages are KeepMbuf or not.
type SendBatch struct {
	parent Act
	tx     ioiface.PacketTx
	own    *batch.PacketBatch
}

var _ Act = (*SendBatch)(nil)

// NewSendBatch builds a terminal SendBatch stage over parent, with its
// own retry buffer sized capacity.
func NewSendBatch(parent Act, tx ioiface.PacketTx, capacity int) *SendBatch {
	own := batch.New(capacity)
	own.KeepMbuf = true
	return &SendBatch{parent: parent, tx: tx, own: own}
}

func (s *SendBatch) Start() int { return startOf(s.own) }
func (s *SendBatch) NextPayload(idx int) (batch.Pdu, int, bool) { return s.own.NextPayload(idx) }

func (s *SendBatch) Act() (int, int) {
	produced, hint := s.parent.Act()
	pb := s.parent.GetPacketBatch()
	for idx := pb.Start(); ; {
		pdu, next, ok := pb.NextPayload(idx)
		if !ok {
			break
		}
		idx = next
		if !s.own.Append(pdu.Mbuf) {
			logging.Debug("send_batch: retry buffer full, dropping packet", nil)
			pdu.Mbuf.Release()
		}
	}
	pb.ClearPackets()
	s.parent.Done()

	sent := s.own.SendQ(s.tx)
	return produced, max(hint, sent)
}

func (s *SendBatch) Done()                       {}
func (s *SendBatch) SendQ(tx ioiface.PacketTx) int { return s.own.SendQ(tx) }
func (s *SendBatch) Capacity() int               { return s.own.Capacity() }
func (s *SendBatch) DropPackets(idxs []int)      { s.own.DropPackets(idxs) }
func (s *SendBatch) DropPacketsAll()             { s.own.DropPacketsAll() }
func (s *SendBatch) ClearPackets()               { s.own.ClearPackets() }
func (s *SendBatch) GetPacketBatch() *batch.PacketBatch { return s.own }
func (s *SendBatch) Queued() int                 { return s.own.Len() }

// MergeBatch round-robins across parents in the cyclic order given by
// selector (indices into parents, possibly repeated to weight some
// parents more heavily). Exactly one parent is serviced per tick.
// Queued reports the first non-zero queued() among parents, matching
// both MergeBatch/MergeBatchTraitObj in the Rust original exactly (the
// "max across parents" alternative mentioned in the original's
// TODO-comment is not implemented — see DESIGN.md).
type MergeBatch struct {
	parents  []Batch
	selector []int
	pos      int
}

var _ Batch = (*MergeBatch)(nil)

// NewMergeBatch builds a MergeBatch over parents serviced in the
// cyclic order named by selector.
func NewMergeBatch(parents []Batch, selector []int) *MergeBatch {
	return &MergeBatch{parents: parents, selector: selector}
}

func (mb *MergeBatch) current() Batch {
	return mb.parents[mb.selector[mb.pos]]
}

func (mb *MergeBatch) Start() int { return mb.current().Start() }
func (mb *MergeBatch) NextPayload(idx int) (batch.Pdu, int, bool) {
	return mb.current().NextPayload(idx)
}

func (mb *MergeBatch) Act() (int, int) {
	return mb.current().Act()
}

// Done finalizes the serviced parent, then advances to the next one in
// selector order — rotation happens here, not in Act, so that every
// other call this tick (GetPacketBatch, Start/NextPayload, SendQ,
// DropPackets) still targets the parent Act just serviced, matching
// the original's slot/which advance in done() rather than act().
func (mb *MergeBatch) Done() {
	mb.current().Done()
	mb.pos = (mb.pos + 1) % len(mb.selector)
}
func (mb *MergeBatch) SendQ(tx ioiface.PacketTx) int { return mb.current().SendQ(tx) }
func (mb *MergeBatch) Capacity() int               { return mb.current().Capacity() }
func (mb *MergeBatch) DropPackets(idxs []int)      { mb.current().DropPackets(idxs) }
func (mb *MergeBatch) DropPacketsAll()             { mb.current().DropPacketsAll() }
func (mb *MergeBatch) ClearPackets()               { mb.current().ClearPackets() }
func (mb *MergeBatch) GetPacketBatch() *batch.PacketBatch { return mb.current().GetPacketBatch() }

func (mb *MergeBatch) Queued() int {
	for _, p := range mb.parents {
		if q := p.Queued(); q != 0 {
			return q
		}
	}
	return 0
}

// CompositionBatch collapses a multi-stage chain behind a single Act,
// for callers that want to hold a pipeline by its Act interface alone
// without naming its concrete (possibly deeply generic) type — the Go
// analogue of the original's boxed dynamic dispatch, which Go's
// interfaces already provide without an explicit wrapper; this type
// exists for parity with the catalogue and as a documented composition
// point, and to let a Batch be swapped in as a plain Act.
type CompositionBatch struct {
	root Act
}

var _ Act = (*CompositionBatch)(nil)

// NewCompositionBatch wraps root.
func NewCompositionBatch(root Act) *CompositionBatch { return &CompositionBatch{root: root} }

func (c *CompositionBatch) Act() (int, int)               { return c.root.Act() }
func (c *CompositionBatch) Done()                         { c.root.Done() }
func (c *CompositionBatch) SendQ(tx ioiface.PacketTx) int { return c.root.SendQ(tx) }
func (c *CompositionBatch) Capacity() int                 { return c.root.Capacity() }
func (c *CompositionBatch) DropPackets(idxs []int)        { c.root.DropPackets(idxs) }
func (c *CompositionBatch) DropPacketsAll()               { c.root.DropPacketsAll() }
func (c *CompositionBatch) ClearPackets()                 { c.root.ClearPackets() }
func (c *CompositionBatch) GetPacketBatch() *batch.PacketBatch { return c.root.GetPacketBatch() }
