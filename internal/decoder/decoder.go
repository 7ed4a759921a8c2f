// Package decoder parses VXLAN-encapsulated IPv4 datagrams into flow keys.
//
// Decode is a pure function: it never allocates, never mutates its input,
// and carries no package-level state. Equal input bytes always yield equal
// output.
package decoder

import "github.com/vxlanprobe/vxlanprobe/internal/flowkey"

const (
	vxlanHeaderLen  = 8
	innerEthLen     = 14
	minIPv4HeaderLen = 20
	minDatagramLen  = vxlanHeaderLen + innerEthLen + minIPv4HeaderLen // 42

	etherTypeOffset = vxlanHeaderLen + 12 // 20
	ipv4Offset      = vxlanHeaderLen + innerEthLen // 22

	ipv4EtherType = 0x0800

	protoTCP = 6
	protoUDP = 17
)

// Result is the successful decode of one datagram: the inner 5-tuple plus
// the inner IPv4 total-length field.
type Result struct {
	Key           flowkey.Key
	InnerTotalLen uint16
}

// Decode parses pkt as VXLAN(8) + inner Ethernet(14) + inner IPv4(20+) [+ 4
// bytes of TCP/UDP ports]. It reports ok=false for any rejection condition
// in place of an error: rejections are not exceptional, they are the normal
// outcome for non-tracked traffic.
func Decode(pkt []byte) (Result, bool) {
	if len(pkt) < minDatagramLen {
		return Result{}, false
	}

	if be16(pkt[etherTypeOffset:]) != ipv4EtherType {
		return Result{}, false
	}

	verIHL := pkt[ipv4Offset]
	version := verIHL >> 4
	ihl := int(verIHL&0x0f) * 4

	if version != 4 {
		return Result{}, false
	}
	if ihl < minIPv4HeaderLen {
		return Result{}, false
	}
	if ipv4Offset+ihl > len(pkt) {
		return Result{}, false
	}

	var key flowkey.Key

	innerTotalLen := be16(pkt[ipv4Offset+2:])
	proto := pkt[ipv4Offset+9]
	key.Proto = proto

	copy(key.SrcIP[:], pkt[ipv4Offset+12:ipv4Offset+16])
	copy(key.DstIP[:], pkt[ipv4Offset+16:ipv4Offset+20])

	if proto == protoTCP || proto == protoUDP {
		portsOff := ipv4Offset + ihl
		if portsOff+4 <= len(pkt) {
			copy(key.SrcPort[:], pkt[portsOff:portsOff+2])
			copy(key.DstPort[:], pkt[portsOff+2:portsOff+4])
		}
		// Ports fall outside the datagram: leave them zero, decode still
		// succeeds.
	}

	return Result{Key: key, InnerTotalLen: innerTotalLen}, true
}

func be16(b []byte) uint16 {
	_ = b[1]
	return uint16(b[0])<<8 | uint16(b[1])
}
