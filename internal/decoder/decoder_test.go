package decoder_test

import (
	"testing"

	"github.com/vxlanprobe/vxlanprobe/internal/decoder"
)

// buildDatagram constructs a VXLAN+inner-Ethernet+inner-IPv4(+ports) test
// datagram of the given total size, mirroring the load generator's wire
// layout (see internal/genload).
func buildDatagram(t *testing.T, size int, proto byte, withPorts bool) []byte {
	t.Helper()

	buf := make([]byte, size)

	buf[0] = 0x08 // valid-VNI flag

	// inner Ethernet EtherType at offset 20.
	if size > 21 {
		buf[20] = 0x08
		buf[21] = 0x00
	}

	if size > 22 {
		buf[22] = 0x45 // version 4, IHL 5 (20 bytes)
	}

	if size > 25 {
		innerLen := uint16(size - 22)
		buf[24] = byte(innerLen >> 8)
		buf[25] = byte(innerLen)
	}

	if size > 31 {
		buf[31] = proto
	}

	if size > 37 {
		copy(buf[34:38], []byte{10, 0, 0, 1})
	}

	if size > 41 {
		copy(buf[38:42], []byte{172, 16, 0, 1})
	}

	if withPorts && size >= 46 {
		buf[42], buf[43] = 0x04, 0x00 // 1024
		buf[44], buf[45] = 0x00, 0x50 // 80
	}

	return buf
}

func TestDecodeRejectsShortDatagram(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 41, 6, false)

	if _, ok := decoder.Decode(pkt); ok {
		t.Fatal("Decode() accepted a 41-byte datagram, want reject")
	}
}

func TestDecodeAcceptsMinimalDatagramNoPorts(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 42, 6, false)

	res, ok := decoder.Decode(pkt)
	if !ok {
		t.Fatal("Decode() rejected a valid 42-byte datagram")
	}

	if res.Key.SrcPort != [2]byte{0, 0} || res.Key.DstPort != [2]byte{0, 0} {
		t.Errorf("ports = %v/%v, want zero (no room for L4)", res.Key.SrcPort, res.Key.DstPort)
	}
}

func TestDecodeAcceptsWithPorts(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 46, 6, true)

	res, ok := decoder.Decode(pkt)
	if !ok {
		t.Fatal("Decode() rejected a valid 46-byte datagram")
	}

	wantSrc := [2]byte{0x04, 0x00}
	wantDst := [2]byte{0x00, 0x50}
	if res.Key.SrcPort != wantSrc || res.Key.DstPort != wantDst {
		t.Errorf("ports = %v/%v, want %v/%v", res.Key.SrcPort, res.Key.DstPort, wantSrc, wantDst)
	}
}

func TestDecodeRejectsNonIPv4EtherType(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 46, 6, true)
	pkt[20], pkt[21] = 0x86, 0xDD

	if _, ok := decoder.Decode(pkt); ok {
		t.Fatal("Decode() accepted EtherType 0x86DD, want reject")
	}
}

func TestDecodeRejectsBadIHL(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 46, 6, true)
	pkt[22] = 0x44 // version 4, IHL 4 -> 16 bytes, < 20

	if _, ok := decoder.Decode(pkt); ok {
		t.Fatal("Decode() accepted IHL=4 (16 bytes), want reject")
	}
}

func TestDecodeRejectsOverrunningHeader(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 46, 6, true)
	pkt[22] = 0x4F // IHL 15 -> 60 bytes, overruns a 46-byte datagram

	if _, ok := decoder.Decode(pkt); ok {
		t.Fatal("Decode() accepted an overrunning IHL, want reject")
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 46, 6, true)
	pkt[22] = 0x55 // version 5

	if _, ok := decoder.Decode(pkt); ok {
		t.Fatal("Decode() accepted IP version 5, want reject")
	}
}

func TestDecodeIsPure(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 128, 17, true)

	r1, ok1 := decoder.Decode(pkt)
	r2, ok2 := decoder.Decode(pkt)

	if ok1 != ok2 || r1 != r2 {
		t.Fatalf("Decode() not pure: (%v,%v) != (%v,%v)", r1, ok1, r2, ok2)
	}
}

func TestDecodeUDPRoundTrip(t *testing.T) {
	t.Parallel()

	pkt := buildDatagram(t, 128, 17, true)

	res, ok := decoder.Decode(pkt)
	if !ok {
		t.Fatal("Decode() rejected valid UDP datagram")
	}

	if res.Key.Proto != 17 {
		t.Errorf("Proto = %d, want 17", res.Key.Proto)
	}
	if res.InnerTotalLen != 128-22 {
		t.Errorf("InnerTotalLen = %d, want %d", res.InnerTotalLen, 128-22)
	}
}
