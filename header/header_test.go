package header_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wash2/NetBricks/header"
)

func TestMacOffsetUntagged(t *testing.T) {
	m := &header.Mac{}
	m.SetEtherType(0x0800)
	assert.Equal(t, 14, m.Offset())
}

func TestMacOffsetVlanTagged(t *testing.T) {
	m := &header.Mac{}
	m.SetEtherType(0x8100)
	assert.Equal(t, 18, m.Offset())
}

func TestMacOffsetQinQTagged(t *testing.T) {
	m := &header.Mac{}
	m.SetEtherType(0x9100)
	assert.Equal(t, 22, m.Offset())
}

func TestMacOffsetIsAlwaysAKnownVlanValue(t *testing.T) {
	for _, et := range []uint16{0x0800, 0x0806, 0x86dd, 0x8100, 0x9100} {
		m := &header.Mac{}
		m.SetEtherType(et)
		off := m.Offset()
		assert.Contains(t, []int{14, 18, 22}, off)
	}
}

func TestIpIHLOffset(t *testing.T) {
	ip := &header.Ip{}
	ip.SetVersionIHL(4, 5)
	assert.Equal(t, uint8(4), ip.Version())
	assert.Equal(t, 20, ip.Offset())

	ip.SetVersionIHL(4, 10)
	assert.Equal(t, 40, ip.Offset())
}

func TestTcpDataOffset(t *testing.T) {
	tcp := &header.Tcp{}
	tcp.SetDataOffset(5)
	assert.Equal(t, 20, tcp.Offset())

	tcp.SetDataOffset(8)
	assert.Equal(t, 32, tcp.Offset())
}

func TestUdpFixedOffset(t *testing.T) {
	udp := &header.Udp{}
	assert.Equal(t, 8, udp.Offset())
	assert.Equal(t, 8, udp.Size())
}

func TestIp6FixedOffset(t *testing.T) {
	ip6 := &header.Ip6{}
	assert.Equal(t, 40, ip6.Offset())
}

func TestSwapUint16RoundTrip(t *testing.T) {
	assert.Equal(t, uint16(0x0800), header.SwapUint16(header.SwapUint16(0x0800)))
}

func TestSwapUint32RoundTrip(t *testing.T) {
	assert.Equal(t, uint32(0x01020304), header.SwapUint32(header.SwapUint32(0x01020304)))
}

func TestMacSwapAddresses(t *testing.T) {
	m := &header.Mac{
		Dst: header.MacAddr{1, 2, 3, 4, 5, 6},
		Src: header.MacAddr{6, 5, 4, 3, 2, 1},
	}
	m.SwapAddresses()
	assert.Equal(t, header.MacAddr{6, 5, 4, 3, 2, 1}, m.Dst)
	assert.Equal(t, header.MacAddr{1, 2, 3, 4, 5, 6}, m.Src)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Tcp", header.KindTcp.String())
	assert.Equal(t, "Unknown", header.Kind(99).String())
}
