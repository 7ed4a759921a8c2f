package genload_test

import (
	"testing"

	"github.com/vxlanprobe/vxlanprobe/internal/decoder"
	"github.com/vxlanprobe/vxlanprobe/internal/genload"
)

func TestBuildPacketDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		flowID  uint32
		pktSize int
	}{
		{flowID: 0, pktSize: 128},
		{flowID: 1, pktSize: 128},
		{flowID: 2, pktSize: 64},
		{flowID: 123456, pktSize: 256},
	}

	for _, tt := range tests {
		buf := make([]byte, tt.pktSize)
		genload.BuildPacket(buf, tt.flowID)

		res, ok := decoder.Decode(buf)
		if !ok {
			t.Fatalf("flow %d: Decode() rejected generated packet", tt.flowID)
		}

		wantProto := byte(6)
		if tt.flowID%3 == 0 {
			wantProto = 17
		}
		if res.Key.Proto != wantProto {
			t.Errorf("flow %d: proto = %d, want %d", tt.flowID, res.Key.Proto, wantProto)
		}

		wantSrcIP := [4]byte{10, byte(tt.flowID >> 16), byte(tt.flowID >> 8), byte(tt.flowID&0xFF) | 1}
		if res.Key.SrcIP != wantSrcIP {
			t.Errorf("flow %d: src_ip = %v, want %v", tt.flowID, res.Key.SrcIP, wantSrcIP)
		}

		wantDstIP := [4]byte{172, 16 + byte((tt.flowID>>16)&0x0F), byte(tt.flowID >> 8), byte(tt.flowID&0xFF) | 1}
		if res.Key.DstIP != wantDstIP {
			t.Errorf("flow %d: dst_ip = %v, want %v", tt.flowID, res.Key.DstIP, wantDstIP)
		}

		wantInnerLen := uint16(tt.pktSize - 22)
		if res.InnerTotalLen != wantInnerLen {
			t.Errorf("flow %d: inner_total_len = %d, want %d", tt.flowID, res.InnerTotalLen, wantInnerLen)
		}

		if tt.pktSize >= 46 {
			wantSport := uint16(1024 + tt.flowID%60000)
			wantDport := uint16(80 + tt.flowID%1000)
			gotSport := uint16(res.Key.SrcPort[0])<<8 | uint16(res.Key.SrcPort[1])
			gotDport := uint16(res.Key.DstPort[0])<<8 | uint16(res.Key.DstPort[1])

			if gotSport != wantSport {
				t.Errorf("flow %d: src_port = %d, want %d", tt.flowID, gotSport, wantSport)
			}
			if gotDport != wantDport {
				t.Errorf("flow %d: dst_port = %d, want %d", tt.flowID, gotDport, wantDport)
			}
		}
	}
}

func TestClampPktSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want int
	}{
		{in: 0, want: 64},
		{in: 63, want: 64},
		{in: 64, want: 64},
		{in: 128, want: 128},
		{in: 9000, want: 9000},
		{in: 9001, want: 9000},
		{in: 100_000, want: 9000},
	}

	for _, tt := range tests {
		if got := genload.ClampPktSize(tt.in); got != tt.want {
			t.Errorf("ClampPktSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
