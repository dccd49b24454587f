// Package mbuf defines the reference-counted packet buffer abstraction
// that the rest of the pipeline core is built on. A real deployment
// backs Mbuf with a DPDK-style rte_mbuf from a NIC driver (out of
// scope here); Pool and mbuf provide a software stand-in so the packet
// and batch layers are independently testable.
package mbuf

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wash2/NetBricks/internal/logging"
)

// MetadataSlots is the number of 8-byte words reserved at the tail of
// every mbuf for framework bookkeeping (saved header/offset, parse
// stack, freeform per-NF metadata).
const MetadataSlots = 16

const (
	// HeaderSlot holds a nonzero marker once a header has been saved,
	// written by SaveHeaderAndOffset / read by RestoreSavedHeader.
	HeaderSlot = 0
	// OffsetSlot stores the byte offset paired with HeaderSlot.
	OffsetSlot = 1
	// StackDepthSlot stores the number of live entries in the parse stack.
	StackDepthSlot = 2
	// StackOffsetSlot is the first of the stackSize slots holding parse
	// stack entries (header offsets pushed by packet.ParseAndRecord).
	StackOffsetSlot = 3
)

// FreeformMetadataSlot returns the first metadata word available to
// per-NF metadata once stackSize words are reserved for the parse stack.
func FreeformMetadataSlot(stackSize int) int {
	return StackOffsetSlot + stackSize
}

// FreeformMetadataSize returns, in bytes, how much freeform metadata
// room remains after the fixed bookkeeping slots and the parse stack.
func FreeformMetadataSize(stackSize int) int {
	return (MetadataSlots - FreeformMetadataSlot(stackSize)) * 8
}

// ErrFailedAllocation is returned when a pool has no free buffers, or
// when growing an mbuf's data region would exceed its capacity.
var ErrFailedAllocation = errors.New("mbuf: failed allocation")

// Mbuf is the contract the packet and batch layers consume. It is
// satisfied by the software buffer below; a DPDK-backed implementation
// would satisfy the same interface from cgo-owned memory.
type Mbuf interface {
	// Data returns the live data region (headroom/tailroom excluded).
	Data() []byte
	DataLen() int
	HeadRoom() int
	TailRoom() int
	Capacity() int

	// AddDataEnd grows the live region at the tail by n bytes if room
	// allows, returning the number of bytes actually added (0 on
	// failure — the caller decides whether that is an error).
	AddDataEnd(n int) int
	RemoveDataEnd(n int)
	// AddDataBeginning grows the live region at the head by n bytes,
	// consuming headroom; returns bytes actually added.
	AddDataBeginning(n int) int
	RemoveDataBeginning(n int)

	Refcount() int32
	Reference()
	// Release decrements the refcount and, at zero, returns the mbuf
	// to its owning pool.
	Release()

	ReadMetadataSlot(i int) uint64
	WriteMetadataSlot(i int, v uint64)

	// DataAddress returns a pointer to byte offset within the data
	// region (which may extend past the current DataLen, up to
	// Capacity, for headers not yet committed via AddDataEnd).
	DataAddress(offset int) unsafe.Pointer
	// MetadataBytes exposes the freeform metadata region (the bytes
	// past the fixed bookkeeping/parse-stack slots) as a byte slice,
	// for Packet's ReadMetadata/WriteMetadata to reinterpret.
	MetadataBytes(stackSize int) []byte
}

const defaultHeadroom = 128

// Buf is the software Mbuf implementation backing Pool.
type Buf struct {
	buf      []byte
	dataOff  int
	dataLen  int
	refcount int32
	meta     [MetadataSlots]uint64
	pool     *Pool
}

var _ Mbuf = (*Buf)(nil)

func (m *Buf) Data() []byte   { return m.buf[m.dataOff : m.dataOff+m.dataLen] }
func (m *Buf) DataLen() int   { return m.dataLen }
func (m *Buf) HeadRoom() int  { return m.dataOff }
func (m *Buf) TailRoom() int  { return len(m.buf) - m.dataOff - m.dataLen }
func (m *Buf) Capacity() int  { return len(m.buf) }

func (m *Buf) AddDataEnd(n int) int {
	if n < 0 {
		n = 0
	}
	room := m.TailRoom()
	if n > room {
		n = room
	}
	m.dataLen += n
	return n
}

func (m *Buf) RemoveDataEnd(n int) {
	if n > m.dataLen {
		n = m.dataLen
	}
	m.dataLen -= n
}

func (m *Buf) AddDataBeginning(n int) int {
	if n < 0 {
		n = 0
	}
	room := m.HeadRoom()
	if n > room {
		n = room
	}
	m.dataOff -= n
	m.dataLen += n
	return n
}

func (m *Buf) RemoveDataBeginning(n int) {
	if n > m.dataLen {
		n = m.dataLen
	}
	m.dataOff += n
	m.dataLen -= n
}

func (m *Buf) Refcount() int32 { return atomic.LoadInt32(&m.refcount) }
func (m *Buf) Reference()      { atomic.AddInt32(&m.refcount, 1) }

func (m *Buf) Release() {
	if atomic.AddInt32(&m.refcount, -1) <= 0 {
		if m.pool != nil {
			m.pool.put(m)
		}
	}
}

func (m *Buf) ReadMetadataSlot(i int) uint64     { return m.meta[i] }
func (m *Buf) WriteMetadataSlot(i int, v uint64) { m.meta[i] = v }

func (m *Buf) DataAddress(offset int) unsafe.Pointer {
	return unsafe.Pointer(&m.buf[m.dataOff+offset])
}

func (m *Buf) MetadataBytes(stackSize int) []byte {
	start := FreeformMetadataSlot(stackSize)
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.meta[start])), FreeformMetadataSize(stackSize))
}

func (m *Buf) reset(headroom int) {
	m.dataOff = headroom
	m.dataLen = 0
	m.refcount = 1
	for i := range m.meta {
		m.meta[i] = 0
	}
}

// Pool is a fixed-size, mutex-protected free list of buffers of a
// single capacity. It stands in for the NIC driver's mempool.
type Pool struct {
	mu       sync.Mutex
	free     []*Buf
	capacity int
	headroom int
}

// NewPool preallocates count buffers of the given payload capacity
// (excluding headroom).
func NewPool(count, capacity int) *Pool {
	p := &Pool{capacity: capacity, headroom: defaultHeadroom}
	p.free = make([]*Buf, 0, count)
	for i := 0; i < count; i++ {
		p.free = append(p.free, &Buf{buf: make([]byte, capacity+defaultHeadroom), pool: p})
	}
	return p
}

// Alloc removes a buffer from the free list, resetting it to an empty
// data region. Returns ErrFailedAllocation when the pool is exhausted.
func (p *Pool) Alloc() (*Buf, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		logging.Debug("mbuf pool exhausted", logrus.Fields{"capacity": p.capacity})
		return nil, ErrFailedAllocation
	}
	m := p.free[n-1]
	p.free = p.free[:n-1]
	m.reset(p.headroom)
	return m, nil
}

func (p *Pool) put(m *Buf) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, m)
}

// Available reports how many buffers are currently free, for tests and
// diagnostics.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
