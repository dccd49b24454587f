// Package ioiface defines the PacketRx/PacketTx endpoints the batch
// and operator layers consume, and ships two software stand-ins for a
// real NIC driver queue: a bounded in-process Ring and a pcap file
// reader/writer. Grounded in the Rust original's interface/mod.rs
// (PacketRx/PacketTx traits) and the teacher's low.Queue
// (EnqueueBurst/DequeueBurst) and pcap glob/rec header handling in
// flow/flow.go.
package ioiface

import (
	"sync"

	"github.com/wash2/NetBricks/mbuf"
)

// PacketRx is a non-blocking receive endpoint. Recv fills up to
// len(slots) entries and reports how many were filled plus an
// advisory queue-depth hint (negative means unknown), matching the
// Rust original's recv(&self, slots: &mut [MbufPtr]) -> (u32, i32).
type PacketRx interface {
	Recv(slots []mbuf.Mbuf) (received int, queueDepthHint int)
	Queued() int
}

// PacketTx is a non-blocking transmit endpoint. Send takes ownership
// of the first returned accepted slots; the rest remain the caller's
// responsibility (retry next tick).
type PacketTx interface {
	Send(slots []mbuf.Mbuf) (accepted int)
}

// Ring is a fixed-capacity, mutex-protected FIFO of mbufs standing in
// for the teacher's low.Queue, itself a cgo binding over a DPDK
// rte_ring. No lock-free claims are made here — see DESIGN.md for why
// this module settles for a mutex instead of attempting an MPMC
// lock-free ring without DPDK underneath it.
type Ring struct {
	mu   sync.Mutex
	buf  []mbuf.Mbuf
	head int
	size int
}

// NewRing creates a ring able to hold up to capacity mbufs.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]mbuf.Mbuf, capacity)}
}

var _ PacketRx = (*Ring)(nil)
var _ PacketTx = (*Ring)(nil)

// Recv dequeues up to len(slots) mbufs, implementing PacketRx.
func (r *Ring) Recv(slots []mbuf.Mbuf) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(slots)
	if n > r.size {
		n = r.size
	}
	for i := 0; i < n; i++ {
		slots[i] = r.buf[r.head]
		r.buf[r.head] = nil
		r.head = (r.head + 1) % len(r.buf)
	}
	r.size -= n
	return n, r.size
}

// Queued reports the number of mbufs currently buffered.
func (r *Ring) Queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Send enqueues as many of slots as there is capacity for,
// implementing PacketTx. The accepted prefix is consumed; the caller
// retains ownership of the rest.
func (r *Ring) Send(slots []mbuf.Mbuf) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := len(r.buf) - r.size
	n := len(slots)
	if n > room {
		n = room
	}
	tail := (r.head + r.size) % len(r.buf)
	for i := 0; i < n; i++ {
		r.buf[tail] = slots[i]
		tail = (tail + 1) % len(r.buf)
	}
	r.size += n
	return n
}
