// Package checksum computes IPv4/IPv6/TCP/UDP/ICMP checksums over the
// header package's wire types, generalizing the teacher's
// packet/swcksum.go (concrete IPv4Hdr/TCPHdr/UDPHdr) to the new
// generic header types.
package checksum

import "github.com/wash2/NetBricks/header"

// dataChecksum sums data in 16-bit big-endian words, with an odd
// trailing byte weighted as the high byte of a final word — the
// internet checksum algorithm's running-sum step (RFC 1071).
func dataChecksum(data []byte) uint32 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n&1 != 0 {
		sum += uint32(data[n-1]) << 8
	}
	return sum
}

func reduce(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}

func ipv4AddrChecksum(hdr *header.Ip) uint32 {
	return uint32(header.SwapUint16(uint16(hdr.SrcAddr>>16))) +
		uint32(header.SwapUint16(uint16(hdr.SrcAddr))) +
		uint32(header.SwapUint16(uint16(hdr.DstAddr>>16))) +
		uint32(header.SwapUint16(uint16(hdr.DstAddr)))
}

func ipv6AddrChecksum(hdr *header.Ip6) uint32 {
	var sum uint32
	for i := 0; i < 16; i += 2 {
		sum += uint32(hdr.SrcAddr[i])<<8 | uint32(hdr.SrcAddr[i+1])
		sum += uint32(hdr.DstAddr[i])<<8 | uint32(hdr.DstAddr[i+1])
	}
	return sum
}

// IPv4 computes the IPv4 header checksum (RFC 791 §3.1). The
// HdrChecksum field itself is never read, so it need not be zeroed
// beforehand.
func IPv4(hdr *header.Ip) uint16 {
	sum := uint32(hdr.VersionIHL)<<8 + uint32(hdr.TOS) +
		uint32(header.SwapUint16(hdr.TotalLength)) +
		uint32(header.SwapUint16(hdr.PacketID)) +
		uint32(header.SwapUint16(hdr.FragmentOffset)) +
		uint32(hdr.TTL)<<8 + uint32(hdr.NextProtoID) +
		ipv4AddrChecksum(hdr)
	return ^reduce(sum)
}

// PseudoHdrIPv4TCP computes the IPv4/TCP pseudo-header contribution,
// the precomputation hardware TX checksum offload expects in the TCP
// checksum field.
func PseudoHdrIPv4TCP(hdr *header.Ip) uint16 {
	dataLength := header.SwapUint16(hdr.TotalLength) - uint16(hdr.Offset())
	sum := ipv4AddrChecksum(hdr) + uint32(hdr.NextProtoID) + uint32(dataLength)
	return reduce(sum)
}

// PseudoHdrIPv4UDP computes the IPv4/UDP pseudo-header contribution.
func PseudoHdrIPv4UDP(hdr *header.Ip, udp *header.Udp) uint16 {
	sum := ipv4AddrChecksum(hdr) + uint32(hdr.NextProtoID) + uint32(header.SwapUint16(udp.Length))
	return reduce(sum)
}

// PseudoHdrIPv6TCP computes the IPv6/TCP pseudo-header contribution.
func PseudoHdrIPv6TCP(hdr *header.Ip6) uint16 {
	sum := ipv6AddrChecksum(hdr) + uint32(header.SwapUint16(hdr.PayloadLen)) + uint32(hdr.NextHeader)
	return reduce(sum)
}

// PseudoHdrIPv6UDP computes the IPv6/UDP pseudo-header contribution.
func PseudoHdrIPv6UDP(hdr *header.Ip6, udp *header.Udp) uint16 {
	sum := ipv6AddrChecksum(hdr) + uint32(hdr.NextHeader) + uint32(header.SwapUint16(udp.Length))
	return reduce(sum)
}

func tcpFieldsChecksum(tcp *header.Tcp) uint32 {
	return uint32(header.SwapUint16(tcp.SrcPort)) +
		uint32(header.SwapUint16(tcp.DstPort)) +
		uint32(header.SwapUint16(uint16(tcp.SeqNum>>16))) +
		uint32(header.SwapUint16(uint16(tcp.SeqNum))) +
		uint32(header.SwapUint16(uint16(tcp.AckNum>>16))) +
		uint32(header.SwapUint16(uint16(tcp.AckNum))) +
		uint32(tcp.DataOff)<<8 +
		uint32(tcp.Flags) +
		uint32(header.SwapUint16(tcp.Window)) +
		uint32(header.SwapUint16(tcp.Urgent))
}

// TCP computes the full TCP checksum over an IPv4 pseudo-header, the
// TCP header and its payload.
func TCP(ip *header.Ip, tcp *header.Tcp, payload []byte) uint16 {
	sum := dataChecksum(payload) + ipv4AddrChecksum(ip) + uint32(ip.NextProtoID) +
		uint32(header.SwapUint16(ip.TotalLength)-uint16(ip.Offset())) + tcpFieldsChecksum(tcp)
	return ^reduce(sum)
}

// TCP6 computes the full TCP checksum over an IPv6 pseudo-header.
func TCP6(ip *header.Ip6, tcp *header.Tcp, payload []byte) uint16 {
	sum := dataChecksum(payload) + ipv6AddrChecksum(ip) +
		uint32(header.SwapUint16(ip.PayloadLen)) + uint32(ip.NextHeader) + tcpFieldsChecksum(tcp)
	return ^reduce(sum)
}

func udpFieldsChecksum(udp *header.Udp) uint32 {
	return uint32(header.SwapUint16(udp.SrcPort)) +
		uint32(header.SwapUint16(udp.DstPort)) +
		2*uint32(header.SwapUint16(udp.Length))
}

// UDP computes the full UDP checksum over an IPv4 pseudo-header.
func UDP(ip *header.Ip, udp *header.Udp, payload []byte) uint16 {
	sum := dataChecksum(payload) + ipv4AddrChecksum(ip) + uint32(ip.NextProtoID) +
		udpFieldsChecksum(udp)
	return ^reduce(sum)
}

// UDP6 computes the full UDP checksum over an IPv6 pseudo-header.
func UDP6(ip *header.Ip6, udp *header.Udp, payload []byte) uint16 {
	sum := dataChecksum(payload) + ipv6AddrChecksum(ip) + uint32(ip.NextHeader) +
		udpFieldsChecksum(udp)
	return ^reduce(sum)
}

// VerifyTCP reports whether tcp.Checksum is the correct checksum for
// the given IPv4 pseudo-header, TCP header and payload: the ones'
// complement sum of every 16-bit word, checksum field included, must
// fold to 0xffff.
func VerifyTCP(ip *header.Ip, tcp *header.Tcp, payload []byte) bool {
	sum := dataChecksum(payload) + ipv4AddrChecksum(ip) + uint32(ip.NextProtoID) +
		uint32(header.SwapUint16(ip.TotalLength)-uint16(ip.Offset())) +
		tcpFieldsChecksum(tcp) + uint32(header.SwapUint16(tcp.Checksum))
	return reduce(sum) == 0xffff
}

// VerifyUDP reports whether udp.Checksum is the correct checksum for
// the given IPv4 pseudo-header, UDP header and payload.
func VerifyUDP(ip *header.Ip, udp *header.Udp, payload []byte) bool {
	sum := dataChecksum(payload) + ipv4AddrChecksum(ip) + uint32(ip.NextProtoID) +
		udpFieldsChecksum(udp) + uint32(header.SwapUint16(udp.Checksum))
	return reduce(sum) == 0xffff
}

// ICMP computes the ICMP checksum over the ICMP header and its
// payload (no pseudo-header, matching RFC 792).
func ICMP(icmpAndPayload []byte) uint16 {
	return ^reduce(dataChecksum(icmpAndPayload))
}

// ICMP6 computes the ICMPv6 checksum. Like the teacher it omits the
// IPv6 pseudo-header that RFC 4443 requires and sums only the bytes
// passed in.
func ICMP6(icmpAndPayload []byte) uint16 {
	return ^reduce(dataChecksum(icmpAndPayload))
}
