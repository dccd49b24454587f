package packet

import (
	"github.com/pkg/errors"

	"github.com/wash2/NetBricks/mbuf"
)

// ErrFailedAllocation is returned when growing an mbuf's data region
// (push, payload growth) fails because its capacity is exhausted.
var ErrFailedAllocation = mbuf.ErrFailedAllocation

// ErrBadOffset is returned whenever an operation would read or write
// outside the current payload — a parse on a truncated packet, a
// write_header past payload_size, or a deparse with nothing recorded.
// The Rust original asserts! on most of these; per this module's
// never-panic-on-adversarial-input policy they are ordinary errors
// here instead.
var ErrBadOffset = errors.New("packet: bad offset")

// ErrMetadataTooLarge is returned by WriteMetadata when the value's
// size is equal to or larger than the freeform metadata region left
// after the parse stack's reserved slots.
var ErrMetadataTooLarge = errors.New("packet: metadata too large")

// ErrParseStackOverflow is returned by ParseAndRecord once the
// per-mbuf parse stack (sized at packet creation) is full.
var ErrParseStackOverflow = errors.New("packet: parse stack overflow")
