package ioiface

import (
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/wash2/NetBricks/mbuf"
)

// PcapFile replays packets from, or captures packets to, a pcap file,
// using gopacket/pcapgo rather than the teacher's hand-rolled
// pcapGlobHdr/pcapRecHdr/WritePcapGlobalHdr/readOnePacket functions —
// the rest of the example corpus reaches for gopacket for this, not a
// hand-rolled format reader.
type PcapFile struct {
	pool   *mbuf.Pool
	reader *pcapgo.Reader
	writer *pcapgo.Writer
	eof    bool
}

var _ PacketRx = (*PcapFile)(nil)
var _ PacketTx = (*PcapFile)(nil)

// NewPcapReader wraps r as a PacketRx, pulling mbufs from pool for
// each record read.
func NewPcapReader(r io.Reader, pool *mbuf.Pool) (*PcapFile, error) {
	rd, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "pcap: read file header")
	}
	return &PcapFile{pool: pool, reader: rd}, nil
}

// NewPcapWriter wraps w as a PacketTx, writing an Ethernet-linktype
// pcap file header immediately.
func NewPcapWriter(w io.Writer, snaplen uint32) (*PcapFile, error) {
	wr := pcapgo.NewWriter(w)
	if err := wr.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		return nil, errors.Wrap(err, "pcap: write file header")
	}
	return &PcapFile{writer: wr}, nil
}

// Recv reads up to len(slots) records from the file into freshly
// allocated mbufs. Once the file is exhausted it reports 0 forever,
// matching a PacketRx over a finite replay source.
func (p *PcapFile) Recv(slots []mbuf.Mbuf) (int, int) {
	if p.eof {
		return 0, 0
	}
	n := 0
	for n < len(slots) {
		data, _, err := p.reader.ReadPacketData()
		if err == io.EOF {
			p.eof = true
			break
		}
		if err != nil {
			p.eof = true
			break
		}
		mb, err := p.pool.Alloc()
		if err != nil {
			break
		}
		mb.AddDataEnd(len(data))
		copy(mb.Data(), data)
		slots[n] = mb
		n++
	}
	if p.eof {
		return n, 0
	}
	return n, -1
}

// Queued is unknown for a file source ahead of reading it; -1 would
// violate Queued's int contract so 0 is reported once EOF, else an
// optimistic 1 (some data pending).
func (p *PcapFile) Queued() int {
	if p.eof {
		return 0
	}
	return 1
}

// Send appends every slot to the file as its own record (a file sink
// has no backpressure); it stops at the first write error and reports
// how many records were written.
func (p *PcapFile) Send(slots []mbuf.Mbuf) int {
	now := time.Now()
	n := 0
	for _, mb := range slots {
		if mb == nil {
			continue
		}
		data := mb.Data()
		ci := gopacket.CaptureInfo{
			Timestamp:     now,
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := p.writer.WritePacket(ci, data); err != nil {
			break
		}
		n++
	}
	return n
}
