// Package packet implements Packet[T, M], a zero-copy typed overlay
// onto an mbuf's bytes: a current-header pointer of static type T, a
// byte offset, up to two weak pointers to prior-layer headers, and a
// phantom metadata type M. It is the Go encoding of the teacher's
// packet/packet.go Packet type and the Rust original's
// interface/packet.rs Packet<T: EndOffset, M: Sized + Send>.
//
// T2::PreviousHeader = T in the Rust original has no Go equivalent
// (no associated types), so it is encoded with header.Chained[P]: a
// header type that may legally follow P implements Chained[P], and
// every generic operation below that changes the current header type
// is constrained on it.
package packet

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wash2/NetBricks/header"
	"github.com/wash2/NetBricks/internal/logging"
	"github.com/wash2/NetBricks/mbuf"
)

// DefaultStackSize is the depth of the in-mbuf parse stack used by
// ParseAndRecord/DeparseHeaderStack when a packet is created
// with NewPacket. The Rust original hardcoded STACK_SIZE to 0,
// disabling the feature; spec.md's open question recommends a small
// nonzero default instead.
const DefaultStackSize = 4

// Packet is a typed view onto an mbuf. T is the header type currently
// at the front of the packet's payload; M is a phantom per-NF
// metadata type used only to type-check ReadMetadata/WriteMetadata.
type Packet[T header.Header, M any] struct {
	mb  mbuf.Mbuf
	off int

	preOff     int
	havePre    bool
	prePreOff  int
	havePrePre bool

	stackSize int
}

// NewPacket allocates an mbuf from pool and returns an empty packet
// at the Null header, using DefaultStackSize for its parse stack.
func NewPacket[M any](pool *mbuf.Pool) (Packet[header.Null, M], error) {
	return NewStack[M](pool, DefaultStackSize)
}

// NewStack allocates an mbuf from pool and returns an empty packet
// with a parse stack sized stackSize, overriding DefaultStackSize.
func NewStack[M any](pool *mbuf.Pool, stackSize int) (Packet[header.Null, M], error) {
	mb, err := pool.Alloc()
	if err != nil {
		return Packet[header.Null, M]{}, err
	}
	return Packet[header.Null, M]{mb: mb, stackSize: stackSize}, nil
}

// FromMbuf builds a typed packet directly from an mbuf the caller
// already knows holds a T header at offset — used by package batch
// and package operator to reconstruct a typed view of a raw mbuf
// pulled off the wire or restored via RestoreSavedHeader. Like the
// Rust original's packet_from_mbuf_no_increment, the framework trusts
// the caller here; it does not and cannot verify the bytes actually
// encode a T.
func FromMbuf[T header.Header, M any](mb mbuf.Mbuf, offset, stackSize int) Packet[T, M] {
	return Packet[T, M]{mb: mb, off: offset, stackSize: stackSize}
}

// Mbuf returns the underlying mbuf — an escape hatch for code (e.g.
// package batch) that must operate below the typed layer.
func (p *Packet[T, M]) Mbuf() mbuf.Mbuf { return p.mb }

// Offset returns the byte offset of the current header from the start
// of the mbuf's data region.
func (p *Packet[T, M]) Offset() int { return p.off }

// DataLen returns the total number of live bytes in the mbuf,
// header(s) plus payload.
func (p *Packet[T, M]) DataLen() int { return p.mb.DataLen() }

// Header returns a pointer to the current header, overlaid directly
// on the mbuf's bytes: writes through it mutate the wire bytes.
func (p *Packet[T, M]) Header() *T {
	return (*T)(p.mb.DataAddress(p.off))
}

// PayloadOffset returns the byte offset of the payload that follows
// the current header — off + the current header instance's Offset(),
// which can exceed its static Size() (a VLAN-tagged Mac, say).
func (p *Packet[T, M]) PayloadOffset() int {
	h := *p.Header()
	return p.off + h.Offset()
}

// PayloadSize returns the number of bytes remaining after the current
// header.
func (p *Packet[T, M]) PayloadSize() int {
	return p.mb.DataLen() - p.PayloadOffset()
}

// Payload returns the bytes following the current header. The slice
// aliases the mbuf's storage; writes through it are visible on the
// wire.
func (p *Packet[T, M]) Payload() []byte {
	po := p.PayloadOffset()
	return p.mb.Data()[po:]
}

// GetPreHeader returns the header one layer behind the current one —
// the "weak pointer" the Rust original keeps to support a single
// deparse without a recorded stack entry. ok is false if nothing has
// been parsed/pushed yet.
func GetPreHeader[P header.Header, T header.Header, M any](p Packet[T, M]) (*P, bool) {
	if !p.havePre {
		return nil, false
	}
	return (*P)(p.mb.DataAddress(p.preOff)), true
}

// GetPrePreHeader returns the header two layers behind the current
// one, the second weak pointer the Rust original keeps.
func GetPrePreHeader[P header.Header, T header.Header, M any](p Packet[T, M]) (*P, bool) {
	if !p.havePrePre {
		return nil, false
	}
	return (*P)(p.mb.DataAddress(p.prePreOff)), true
}

// Push grows the mbuf's tail by T2.Size() bytes, shifts the current
// payload forward to make room right after the current header, writes
// hdr into the gap, and returns a packet whose current header is now
// T2. T2 must be legally chainable after T (header.Chained[T]),
// encoding the Rust original's push_header<T2: EndOffset<PreviousHeader=T>>.
func Push[T header.Header, T2 header.Chained[T], M any](p Packet[T, M], hdr T2) (Packet[T2, M], error) {
	size := hdr.Size()
	added := p.mb.AddDataEnd(size)
	if added < size {
		logging.Debug("push_header: failed allocation", logrus.Fields{"need": size, "got": added})
		return Packet[T2, M]{}, errors.WithStack(ErrFailedAllocation)
	}

	insertAt := p.PayloadOffset()
	data := p.mb.Data()
	oldLen := len(data) - size
	copy(data[insertAt+size:], data[insertAt:oldLen])
	*(*T2)(p.mb.DataAddress(insertAt)) = hdr

	return Packet[T2, M]{
		mb:         p.mb,
		off:        insertAt,
		stackSize:  p.stackSize,
		preOff:     p.off,
		havePre:    true,
		prePreOff:  p.preOff,
		havePrePre: p.havePre,
	}, nil
}

// Parse reinterprets the bytes at the current payload offset as T2,
// without moving any bytes, returning a packet whose current header
// is T2. T2 must be chainable after T. Unlike the Rust original's
// assert!(payload_size() >= T2::size()), a too-short payload is
// reported as ErrBadOffset rather than panicking — this module never
// panics on adversarial per-packet input.
func Parse[T2 header.Chained[T], T header.Header, M any](p Packet[T, M]) (Packet[T2, M], error) {
	po := p.PayloadOffset()
	var zero T2
	if p.mb.DataLen()-po < zero.Size() {
		return Packet[T2, M]{}, errors.Wrapf(ErrBadOffset, "parse: need %d bytes at offset %d, have %d", zero.Size(), po, p.mb.DataLen()-po)
	}

	return Packet[T2, M]{
		mb:         p.mb,
		off:        po,
		stackSize:  p.stackSize,
		preOff:     p.off,
		havePre:    true,
		prePreOff:  p.preOff,
		havePrePre: p.havePre,
	}, nil
}

// ParseAndRecord behaves like Parse but additionally pushes the
// current header's offset onto the mbuf's bounded parse stack, so a
// later DeparseHeaderStack call can return to exactly this point
// without the caller threading it through manually.
func ParseAndRecord[T2 header.Chained[T], T header.Header, M any](p Packet[T, M]) (Packet[T2, M], error) {
	depth := int(p.mb.ReadMetadataSlot(mbuf.StackDepthSlot))
	if depth >= p.stackSize {
		logging.Debug("parse_and_record: parse stack overflow", logrus.Fields{"depth": depth, "stack_size": p.stackSize})
		return Packet[T2, M]{}, errors.WithStack(ErrParseStackOverflow)
	}

	np, err := Parse[T2](p)
	if err != nil {
		return np, err
	}

	p.mb.WriteMetadataSlot(mbuf.StackOffsetSlot+depth, uint64(p.off))
	p.mb.WriteMetadataSlot(mbuf.StackDepthSlot, uint64(depth+1))
	return np, nil
}

// DeparseHeader moves the current header back to the packet's
// recorded predecessor P, the inverse of one Push/Parse step. It
// fails with ErrBadOffset if nothing has been recorded (a packet at
// Null, or one already deparsed past its origin).
func DeparseHeader[P header.Header, T header.Chained[P], M any](p Packet[T, M]) (Packet[P, M], error) {
	if !p.havePre {
		return Packet[P, M]{}, errors.WithStack(ErrBadOffset)
	}
	return Packet[P, M]{
		mb:        p.mb,
		off:       p.preOff,
		stackSize: p.stackSize,
		preOff:    p.prePreOff,
		havePre:   p.havePrePre,
	}, nil
}

// DeparseHeaderStack pops the most recently recorded
// ParseAndRecord offset and returns a packet whose current
// header is reinterpreted as P at that offset.
func DeparseHeaderStack[P header.Header, T header.Header, M any](p Packet[T, M]) (Packet[P, M], error) {
	depth := int(p.mb.ReadMetadataSlot(mbuf.StackDepthSlot))
	if depth == 0 {
		return Packet[P, M]{}, errors.WithStack(ErrBadOffset)
	}
	depth--
	off := int(p.mb.ReadMetadataSlot(mbuf.StackOffsetSlot + depth))
	p.mb.WriteMetadataSlot(mbuf.StackDepthSlot, uint64(depth))
	return Packet[P, M]{mb: p.mb, off: off, stackSize: p.stackSize}, nil
}

// SaveHeaderAndOffset persists the current header's offset into the
// mbuf's reserved metadata slots, so a later, independently
// constructed operator stage can recover it via RestoreSavedHeader
// without recomputing the whole parse chain from Null. This is the
// mechanism batch operators use to hand a typed view across the
// untyped PacketBatch boundary between pipeline stages.
func (p *Packet[T, M]) SaveHeaderAndOffset() {
	p.mb.WriteMetadataSlot(mbuf.HeaderSlot, 1)
	p.mb.WriteMetadataSlot(mbuf.OffsetSlot, uint64(p.off))
}

// RestoreSavedHeader reconstructs a Packet[T, M] from a prior
// SaveHeaderAndOffset call. ok is false if nothing was ever saved.
// As with FromMbuf, the framework does not and cannot verify that the
// bytes at the saved offset actually encode a T — the only
// correctness requirement is that the caller's T matches what was
// saved.
func RestoreSavedHeader[T header.Header, M any](mb mbuf.Mbuf, stackSize int) (Packet[T, M], bool) {
	if mb.ReadMetadataSlot(mbuf.HeaderSlot) == 0 {
		return Packet[T, M]{}, false
	}
	off := int(mb.ReadMetadataSlot(mbuf.OffsetSlot))
	return Packet[T, M]{mb: mb, off: off, stackSize: stackSize}, true
}

// ReplaceHeader overwrites the current header's bytes in place with a
// new value of the same type.
func (p *Packet[T, M]) ReplaceHeader(hdr T) {
	*p.Header() = hdr
}

// WriteHeaderAt writes raw bytes at a byte offset within the payload,
// failing with ErrBadOffset if they would run past it — the Go
// equivalent of write_header<T2>(&mut self, header: &T2, offset)'s
// bounds check.
func (p *Packet[T, M]) WriteHeaderAt(offset int, raw []byte) error {
	if offset < 0 || offset+len(raw) > p.PayloadSize() {
		return errors.Wrapf(ErrBadOffset, "write_header: offset %d+len %d exceeds payload size %d", offset, len(raw), p.PayloadSize())
	}
	po := p.PayloadOffset()
	copy(p.mb.Data()[po+offset:], raw)
	return nil
}

// AddToPayloadHead grows the mbuf's tail by n bytes and shifts the
// existing payload forward by n, opening an n-byte gap immediately
// after the current header for the caller to fill.
func (p *Packet[T, M]) AddToPayloadHead(n int) error {
	if n <= 0 {
		return nil
	}
	added := p.mb.AddDataEnd(n)
	if added < n {
		return errors.WithStack(ErrFailedAllocation)
	}
	po := p.PayloadOffset()
	data := p.mb.Data()
	oldLen := len(data) - n
	copy(data[po+n:], data[po:oldLen])
	return nil
}

// RemoveFromPayloadHead deletes the first n bytes of the payload,
// shifting the remainder back and shrinking the mbuf's data length.
func (p *Packet[T, M]) RemoveFromPayloadHead(n int) error {
	po := p.PayloadOffset()
	if n < 0 || n > p.mb.DataLen()-po {
		return errors.WithStack(ErrBadOffset)
	}
	data := p.mb.Data()
	copy(data[po:], data[po+n:])
	p.mb.RemoveDataEnd(n)
	return nil
}

// AddToPayloadTail (a.k.a IncreasePayloadSize) grows the payload by n
// bytes at the tail.
func (p *Packet[T, M]) AddToPayloadTail(n int) error {
	if n <= 0 {
		return nil
	}
	added := p.mb.AddDataEnd(n)
	if added < n {
		return errors.WithStack(ErrFailedAllocation)
	}
	return nil
}

// IncreasePayloadSize is an alias for AddToPayloadTail, matching
// spec.md's naming.
func (p *Packet[T, M]) IncreasePayloadSize(n int) error { return p.AddToPayloadTail(n) }

// RemoveFromPayloadTail (a.k.a TrimPayloadSize) shrinks the payload by
// n bytes at the tail.
func (p *Packet[T, M]) RemoveFromPayloadTail(n int) error {
	if n < 0 || n > p.PayloadSize() {
		return errors.WithStack(ErrBadOffset)
	}
	p.mb.RemoveDataEnd(n)
	return nil
}

// TrimPayloadSize is an alias for RemoveFromPayloadTail.
func (p *Packet[T, M]) TrimPayloadSize(n int) error { return p.RemoveFromPayloadTail(n) }

// ReadMetadata copies the packet's freeform metadata region out as M.
// If M is larger than the region ever reserved for it, the zero value
// is returned rather than reading out of bounds.
func (p *Packet[T, M]) ReadMetadata() M {
	var v M
	sz := int(unsafe.Sizeof(v))
	b := p.mb.MetadataBytes(p.stackSize)
	if sz > len(b) {
		return v
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), sz), b[:sz])
	return v
}

// WriteMetadata validates that M2 fits the freeform metadata region,
// writes it, and returns a packet reinterpreting the metadata type as
// M2 from here on — the Go encoding of write_metadata<M2>.
func WriteMetadata[M2 any, T header.Header, M any](p Packet[T, M], v M2) (Packet[T, M2], error) {
	sz := int(unsafe.Sizeof(v))
	if sz >= mbuf.FreeformMetadataSize(p.stackSize) {
		return Packet[T, M2]{}, errors.Wrapf(ErrMetadataTooLarge, "metadata: %d bytes does not fit in %d byte region", sz, mbuf.FreeformMetadataSize(p.stackSize))
	}
	b := p.mb.MetadataBytes(p.stackSize)
	copy(b[:sz], unsafe.Slice((*byte)(unsafe.Pointer(&v)), sz))
	return reinterpret[T, M2](p), nil
}

// ReinterpretMetadata relabels a packet's metadata type as M2 without
// touching the underlying bytes — the unchecked escape hatch
// reinterpret_metadata<M2> provides in the Rust original.
func ReinterpretMetadata[M2 any, T header.Header, M any](p Packet[T, M]) Packet[T, M2] {
	return reinterpret[T, M2](p)
}

func reinterpret[T header.Header, M2 any, M any](p Packet[T, M]) Packet[T, M2] {
	return Packet[T, M2]{
		mb:         p.mb,
		off:        p.off,
		stackSize:  p.stackSize,
		preOff:     p.preOff,
		havePre:    p.havePre,
		prePreOff:  p.prePreOff,
		havePrePre: p.havePrePre,
	}
}

// Clone increments the mbuf's refcount and returns an independent
// Packet value sharing the same underlying bytes — two views, one
// buffer, matching the Rust original's Packet::clone.
func (p *Packet[T, M]) Clone() Packet[T, M] {
	p.mb.Reference()
	return *p
}

// Reset truncates mb back to an empty Null packet and clears its
// metadata, for reuse as a freshly-built packet without returning it
// to the pool first.
func Reset[M any](mb mbuf.Mbuf, stackSize int) Packet[header.Null, M] {
	mb.RemoveDataEnd(mb.DataLen())
	for i := 0; i < mbuf.MetadataSlots; i++ {
		mb.WriteMetadataSlot(i, 0)
	}
	return Packet[header.Null, M]{mb: mb, stackSize: stackSize}
}

// FreePacket releases this packet's reference to its mbuf.
func FreePacket[T header.Header, M any](p Packet[T, M]) {
	p.mb.Release()
}
