package genload

const (
	vxlanVNI = 12345

	minPktSize = 64
	maxPktSize = 9000

	defaultPktSize   = 128
	defaultTotalFlows = 100_000
)

// ClampPktSize bounds a requested packet size to [minPktSize, maxPktSize].
func ClampPktSize(size int) int {
	if size < minPktSize {
		return minPktSize
	}
	if size > maxPktSize {
		return maxPktSize
	}
	return size
}

// BuildPacket synthesizes a VXLAN-encapsulated IPv4 datagram of exactly
// size bytes for the given flow ID, matching the wire layout byte-for-byte:
//
//	0  : 8  VXLAN header (flags=0x08, VNI in bytes 4..6)
//	8  : 12 inner Ethernet MACs (zero)
//	20 : 2  EtherType = 0x0800
//	22 : 1  version+IHL = 0x45
//	24 : 2  inner total length = size - 22
//	30 : 1  TTL = 64
//	31 : 1  protocol (17 if flowID%3==0, else 6)
//	34 : 4  source IPv4
//	38 : 4  destination IPv4
//	42 : 2  source port (only if size >= 46)
//	44 : 2  destination port (only if size >= 46)
func BuildPacket(buf []byte, flowID uint32) {
	size := len(buf)
	for i := range buf {
		buf[i] = 0
	}

	buf[0] = 0x08
	buf[4] = byte(vxlanVNI >> 16)
	buf[5] = byte(vxlanVNI >> 8)
	buf[6] = byte(vxlanVNI)

	buf[20], buf[21] = 0x08, 0x00
	buf[22] = 0x45

	innerLen := uint16(size - 22)
	buf[24] = byte(innerLen >> 8)
	buf[25] = byte(innerLen)

	buf[30] = 64

	proto := byte(6)
	if flowID%3 == 0 {
		proto = 17
	}
	buf[31] = proto

	buf[34] = 10
	buf[35] = byte(flowID >> 16)
	buf[36] = byte(flowID >> 8)
	buf[37] = byte(flowID&0xFF) | 1

	buf[38] = 172
	buf[39] = 16 + byte((flowID>>16)&0x0F)
	buf[40] = byte(flowID >> 8)
	buf[41] = byte(flowID&0xFF) | 1

	if size >= 46 {
		sport := uint16(1024 + flowID%60000)
		dport := uint16(80 + flowID%1000)
		buf[42], buf[43] = byte(sport>>8), byte(sport)
		buf[44], buf[45] = byte(dport>>8), byte(dport)
	}
}
