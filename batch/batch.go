// Package batch implements PacketBatch, a fixed-capacity array of
// mbufs plus a cursor, grounded in the Rust original's
// io/packet_batch/{macros,receive_batch}.rs. PacketBatch stores raw,
// untyped mbuf.Mbuf references rather than a generic Packet[T, M] —
// doing otherwise would force every operator downstream of a given
// batch to share its type parameters. Operators recover a typed view
// per mbuf via packet.FromMbuf / packet.RestoreSavedHeader.
package batch

import (
	"github.com/wash2/NetBricks/ioiface"
	"github.com/wash2/NetBricks/mbuf"
)

// Pdu is the view NextPayload yields: the mbuf at a live slot plus the
// slot's index, so callers can pair it back to DropPackets.
type Pdu struct {
	Mbuf mbuf.Mbuf
	Idx  int
}

// PacketBatch owns a capacity-bounded slice of mbufs and a live
// length. KeepMbuf, when true, makes Done a no-op on ownership (the
// caller reuses the batch across ticks without releasing refcounts) —
// the Go equivalent of the Rust original's keep-mbuf flag.
type PacketBatch struct {
	slots    []mbuf.Mbuf
	length   int
	KeepMbuf bool
}

// New allocates a PacketBatch with room for capacity mbufs.
func New(capacity int) *PacketBatch {
	return &PacketBatch{slots: make([]mbuf.Mbuf, capacity)}
}

// Capacity returns C, the batch's fixed array size.
func (b *PacketBatch) Capacity() int { return len(b.slots) }

// Start returns the cursor to the first live slot — 0, since slots
// are always kept compacted at the front by DropPackets/ClearPackets.
func (b *PacketBatch) Start() int { return 0 }

// Len reports how many slots are currently live.
func (b *PacketBatch) Len() int { return b.length }

// NextPayload returns the live slot at idx and the index to pass on
// the following call; ok is false once idx has run past the live
// length.
func (b *PacketBatch) NextPayload(idx int) (Pdu, int, bool) {
	if idx >= b.length {
		return Pdu{}, idx, false
	}
	return Pdu{Mbuf: b.slots[idx], Idx: idx}, idx + 1, true
}

// Slots exposes the live mbuf slice directly, for operators (Map,
// Transform, Filter) that need to rewrite it in place.
func (b *PacketBatch) Slots() []mbuf.Mbuf { return b.slots[:b.length] }

// Append adds a single mbuf to the live tail, used by SendBatch to
// move ownership of a parent's produced mbufs into its own retained
// batch. Reports false (and drops nothing itself — the caller still
// owns mb) if the batch is at capacity.
func (b *PacketBatch) Append(mb mbuf.Mbuf) bool {
	if b.length >= len(b.slots) {
		return false
	}
	b.slots[b.length] = mb
	b.length++
	return true
}

// Recv pulls up to C-length packets from rx into the free tail of the
// array and reports how many were received plus rx's queue-depth
// hint.
func (b *PacketBatch) Recv(rx ioiface.PacketRx) (received int, queueDepthHint int) {
	room := len(b.slots) - b.length
	if room <= 0 {
		return 0, rx.Queued()
	}
	n, hint := rx.Recv(b.slots[b.length : b.length+room])
	b.length += n
	return n, hint
}

// SendQ attempts to transmit the live batch through tx. Slots tx
// accepts are released from the batch (ownership transfers to the
// transport, no refcount decrement — the transport owns the send-path
// release); slots it didn't accept are compacted to the front so they
// are offered first next tick, implementing P7 backpressure.
func (b *PacketBatch) SendQ(tx ioiface.PacketTx) int {
	accepted := tx.Send(b.slots[:b.length])
	remaining := b.length - accepted
	copy(b.slots, b.slots[accepted:b.length])
	for i := remaining; i < b.length; i++ {
		b.slots[i] = nil
	}
	b.length = remaining
	return accepted
}

// DropPackets releases the mbufs at the given indices and compacts
// the remaining live slots forward, preserving relative order.
func (b *PacketBatch) DropPackets(idxs []int) {
	if len(idxs) == 0 {
		return
	}
	drop := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		drop[i] = true
	}
	w := 0
	for r := 0; r < b.length; r++ {
		if drop[r] {
			if b.slots[r] != nil {
				b.slots[r].Release()
			}
			continue
		}
		b.slots[w] = b.slots[r]
		w++
	}
	for i := w; i < b.length; i++ {
		b.slots[i] = nil
	}
	b.length = w
}

// DropPacketsAll releases every live mbuf and empties the batch.
func (b *PacketBatch) DropPacketsAll() {
	for i := 0; i < b.length; i++ {
		if b.slots[i] != nil {
			b.slots[i].Release()
		}
		b.slots[i] = nil
	}
	b.length = 0
}

// ClearPackets empties the batch without releasing mbufs — used when
// ownership has already moved elsewhere (e.g. after a successful
// SendQ, or when handing slots to a downstream GroupBy child).
func (b *PacketBatch) ClearPackets() {
	for i := 0; i < b.length; i++ {
		b.slots[i] = nil
	}
	b.length = 0
}

// DeallocateBatch releases every mbuf and resets the batch to empty —
// an alias for DropPacketsAll matching the Rust original's naming,
// called when a pipeline root is torn down.
func (b *PacketBatch) DeallocateBatch() {
	b.DropPacketsAll()
}

// Done finalizes the batch for this tick: if KeepMbuf is set the live
// slots are left untouched for reuse; otherwise every remaining live
// mbuf (not already released by DropPackets/SendQ) is released.
func (b *PacketBatch) Done() {
	if b.KeepMbuf {
		return
	}
	b.DropPacketsAll()
}
