package packet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wash2/NetBricks/header"
	"github.com/wash2/NetBricks/mbuf"
	"github.com/wash2/NetBricks/packet"
)

type noMeta struct{}

func newTestPacket(t *testing.T) (*mbuf.Pool, packet.Packet[header.Null, noMeta]) {
	t.Helper()
	pool := mbuf.NewPool(4, 256)
	p, err := packet.NewPacket[noMeta](pool)
	require.NoError(t, err)
	return pool, p
}

func TestPushParseRoundTrip(t *testing.T) {
	_, p := newTestPacket(t)

	mac := header.Mac{}
	mac.SetEtherType(0x0800)
	macPkt, err := packet.Push[header.Null](p, mac)
	require.NoError(t, err)
	assert.Equal(t, 14, macPkt.DataLen())

	ip := header.Ip{NextProtoID: 6, SrcAddr: header.IPv4(10, 0, 0, 1), DstAddr: header.IPv4(10, 0, 0, 2)}
	ip.SetVersionIHL(4, 5)
	ipPkt, err := packet.Push[header.Mac](macPkt, ip)
	require.NoError(t, err)
	assert.Equal(t, 34, ipPkt.DataLen())

	reparsedIP, err := packet.Parse[header.Ip](macPkt)
	require.NoError(t, err)
	assert.Equal(t, ipPkt.Offset(), reparsedIP.Offset())
	assert.Equal(t, ip.SrcAddr, reparsedIP.Header().SrcAddr)
}

func TestParseOnTruncatedPayloadReturnsErrBadOffset(t *testing.T) {
	_, p := newTestPacket(t)
	mac := header.Mac{}
	macPkt, err := packet.Push[header.Null](p, mac)
	require.NoError(t, err)

	_, err = packet.Parse[header.Ip](macPkt)
	assert.ErrorIs(t, err, packet.ErrBadOffset)
}

func TestParseAndRecordDeparseHeaderStack(t *testing.T) {
	_, p := newTestPacket(t)

	mac := header.Mac{}
	macPkt, err := packet.Push[header.Null](p, mac)
	require.NoError(t, err)

	ip := header.Ip{NextProtoID: 6}
	ip.SetVersionIHL(4, 5)
	ipPkt, err := packet.Push[header.Mac](macPkt, ip)
	require.NoError(t, err)

	tcp := header.Tcp{SrcPort: header.SwapUint16(1234)}
	tcp.SetDataOffset(5)
	tcpPkt, err := packet.Push[header.Ip](ipPkt, tcp)
	require.NoError(t, err)

	recorded, err := packet.ParseAndRecord[header.Tcp](ipPkt)
	require.NoError(t, err)
	assert.Equal(t, tcpPkt.Offset(), recorded.Offset())

	back, err := packet.DeparseHeaderStack[header.Ip](recorded)
	require.NoError(t, err)
	assert.Equal(t, ipPkt.Offset(), back.Offset())

	_, err = packet.DeparseHeaderStack[header.Ip](back)
	assert.ErrorIs(t, err, packet.ErrBadOffset)
}

func TestParseStackOverflow(t *testing.T) {
	pool := mbuf.NewPool(1, 512)
	p, err := packet.NewStack[noMeta](pool, 1)
	require.NoError(t, err)

	mac := header.Mac{}
	macPkt, err := packet.Push[header.Null](p, mac)
	require.NoError(t, err)

	ip := header.Ip{}
	ip.SetVersionIHL(4, 5)
	ipPkt, err := packet.Push[header.Mac](macPkt, ip)
	require.NoError(t, err)

	tcp := header.Tcp{}
	tcp.SetDataOffset(5)
	tcpPkt, err := packet.Push[header.Ip](ipPkt, tcp)
	require.NoError(t, err)

	_, err = packet.ParseAndRecord[header.Ip](macPkt)
	require.NoError(t, err)

	_, err = packet.ParseAndRecord[header.Tcp](ipPkt)
	assert.ErrorIs(t, err, packet.ErrParseStackOverflow)
	_ = tcpPkt
}

func TestDeparseHeaderWeakPointer(t *testing.T) {
	_, p := newTestPacket(t)

	mac := header.Mac{}
	macPkt, err := packet.Push[header.Null](p, mac)
	require.NoError(t, err)

	ip := header.Ip{}
	ip.SetVersionIHL(4, 5)
	ipPkt, err := packet.Push[header.Mac](macPkt, ip)
	require.NoError(t, err)

	back, err := packet.DeparseHeader[header.Mac](ipPkt)
	require.NoError(t, err)
	assert.Equal(t, macPkt.Offset(), back.Offset())
}

func TestSaveRestoreHeaderAcrossUntypedBoundary(t *testing.T) {
	_, p := newTestPacket(t)

	mac := header.Mac{}
	macPkt, err := packet.Push[header.Null](p, mac)
	require.NoError(t, err)
	ip := header.Ip{}
	ip.SetVersionIHL(4, 5)
	ipPkt, err := packet.Push[header.Mac](macPkt, ip)
	require.NoError(t, err)

	ipPkt.SaveHeaderAndOffset()
	mb := ipPkt.Mbuf()

	restored, ok := packet.RestoreSavedHeader[header.Ip, noMeta](mb, packet.DefaultStackSize)
	require.True(t, ok)
	assert.Equal(t, ipPkt.Offset(), restored.Offset())
}

func TestWriteMetadataAndReadBack(t *testing.T) {
	_, p := newTestPacket(t)

	type flowTag struct {
		ID uint32
	}
	tagged, err := packet.WriteMetadata(p, flowTag{ID: 42})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), tagged.ReadMetadata().ID)
}

func TestWriteMetadataTooLargeFails(t *testing.T) {
	_, p := newTestPacket(t)

	type oversized [200]byte
	_, err := packet.WriteMetadata(p, oversized{})
	assert.ErrorIs(t, err, packet.ErrMetadataTooLarge)
}

func TestWriteMetadataExactlyAtRegionSizeFails(t *testing.T) {
	_, p := newTestPacket(t)

	// (16 metadata slots - (3 fixed slots + DefaultStackSize)) * 8 bytes.
	const exactRegionSize = (mbuf.MetadataSlots - (mbuf.StackOffsetSlot + packet.DefaultStackSize)) * 8
	require.Equal(t, exactRegionSize, mbuf.FreeformMetadataSize(packet.DefaultStackSize))

	type exact [exactRegionSize]byte
	_, err := packet.WriteMetadata(p, exact{})
	assert.ErrorIs(t, err, packet.ErrMetadataTooLarge, "metadata exactly the size of the region must not fit — one byte of room must remain per P5")
}

func TestCloneSharesBufferAndRefcount(t *testing.T) {
	pool, p := newTestPacket(t)
	mac := header.Mac{}
	macPkt, err := packet.Push[header.Null](p, mac)
	require.NoError(t, err)

	mb := macPkt.Mbuf()
	require.EqualValues(t, 1, mb.Refcount())

	clone := macPkt.Clone()
	assert.EqualValues(t, 2, mb.Refcount())

	packet.FreePacket(clone)
	assert.EqualValues(t, 1, mb.Refcount())
	assert.Equal(t, 3, pool.Available())

	packet.FreePacket(macPkt)
	assert.Equal(t, 4, pool.Available())
}

func TestPayloadGrowAndTrim(t *testing.T) {
	_, p := newTestPacket(t)
	mac := header.Mac{}
	macPkt, err := packet.Push[header.Null](p, mac)
	require.NoError(t, err)

	require.NoError(t, macPkt.AddToPayloadTail(10))
	assert.Equal(t, 10, macPkt.PayloadSize())

	require.NoError(t, macPkt.RemoveFromPayloadTail(4))
	assert.Equal(t, 6, macPkt.PayloadSize())

	err = macPkt.RemoveFromPayloadTail(100)
	assert.ErrorIs(t, err, packet.ErrBadOffset)
}

func TestAllocationFailureReturnsErrFailedAllocation(t *testing.T) {
	pool := mbuf.NewPool(1, 8)
	p, err := packet.NewPacket[noMeta](pool)
	require.NoError(t, err)

	huge := make([]byte, 1024)
	err = p.WriteHeaderAt(0, huge)
	assert.ErrorIs(t, err, packet.ErrBadOffset)

	err = p.AddToPayloadTail(1024)
	assert.ErrorIs(t, err, packet.ErrFailedAllocation)
}
