// Package flowkey defines the flow identity and counter types shared by the
// decoder, flow table, and snapshot protocol.
package flowkey

// Key is the inner 5-tuple identifying a flow: source and destination IPv4
// address, L4 protocol, and source/destination L4 ports.
//
// Fields are stored as the raw bytes captured off the wire, in network byte
// order. They are never byte-swapped for hashing or comparison — two keys
// with identical captured bytes are the same flow, full stop.
type Key struct {
	SrcIP   [4]byte
	DstIP   [4]byte
	Proto   uint8
	SrcPort [2]byte
	DstPort [2]byte
}

// Counters holds the per-flow aggregate: packet count and accumulated inner
// IPv4 total-length bytes.
type Counters struct {
	Packets uint64
	Bytes   uint64
}

// Record is a (key, counters) pair as written into a snapshot buffer.
type Record struct {
	Key      Key
	Counters Counters
}

// RecordSize is the fixed on-wire size of a marshaled Record.
const RecordSize = 32

// Marshal writes the record into dst (which must be at least RecordSize
// bytes) using the layout:
//
//	0  : 4 src_ip
//	4  : 4 dst_ip
//	8  : 2 src_port
//	10 : 2 dst_port
//	12 : 1 protocol
//	13 : 3 padding (zero)
//	16 : 8 packets (little-endian)
//	24 : 8 bytes (little-endian)
func (r Record) Marshal(dst []byte) {
	_ = dst[31]

	copy(dst[0:4], r.Key.SrcIP[:])
	copy(dst[4:8], r.Key.DstIP[:])
	copy(dst[8:10], r.Key.SrcPort[:])
	copy(dst[10:12], r.Key.DstPort[:])
	dst[12] = r.Key.Proto
	dst[13], dst[14], dst[15] = 0, 0, 0

	putUint64LE(dst[16:24], r.Counters.Packets)
	putUint64LE(dst[24:32], r.Counters.Bytes)
}

func putUint64LE(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

// FNV-1a constants (32-bit): basis and prime pinned by the hash contract so
// that identical input bytes yield identical hashes across runs and
// platforms.
const (
	fnvOffsetBasis32 uint32 = 2166136261
	fnvPrime32       uint32 = 16777619
)

// Hash computes the FNV-1a hash of the key over its canonical 13-byte form:
// src_ip, dst_ip, proto, src_port, dst_port, in that order, each byte fed
// through xor-then-multiply. The byte order is whatever was captured off the
// wire — this function never swaps bytes.
func (k Key) Hash() uint32 {
	h := fnvOffsetBasis32

	for _, b := range k.SrcIP {
		h ^= uint32(b)
		h *= fnvPrime32
	}

	for _, b := range k.DstIP {
		h ^= uint32(b)
		h *= fnvPrime32
	}

	h ^= uint32(k.Proto)
	h *= fnvPrime32

	for _, b := range k.SrcPort {
		h ^= uint32(b)
		h *= fnvPrime32
	}

	for _, b := range k.DstPort {
		h ^= uint32(b)
		h *= fnvPrime32
	}

	return h
}
