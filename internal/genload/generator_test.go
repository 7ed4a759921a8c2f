package genload_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/vxlanprobe/vxlanprobe/internal/genload"
)

func TestGeneratorSendsPackets(t *testing.T) {
	t.Parallel()

	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error: %v", err)
	}
	defer sink.Close()

	// Drain the socket so writes never block on a full receive buffer.
	go func() {
		buf := make([]byte, 2048)
		for {
			if _, err := sink.Read(buf); err != nil {
				return
			}
		}
	}()

	gen := genload.New(genload.Config{
		Addr:       sink.LocalAddr().String(),
		Workers:    2,
		Duration:   300 * time.Millisecond,
		PktSize:    128,
		TotalFlows: 100,
	})

	if err := gen.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if gen.Total() == 0 {
		t.Fatal("Total() == 0, want > 0")
	}

	counters := gen.Counters()
	if len(counters) != 2 {
		t.Fatalf("len(Counters()) = %d, want 2", len(counters))
	}
}

func TestGeneratorStopsEarly(t *testing.T) {
	t.Parallel()

	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error: %v", err)
	}
	defer sink.Close()

	go func() {
		buf := make([]byte, 2048)
		for {
			if _, err := sink.Read(buf); err != nil {
				return
			}
		}
	}()

	gen := genload.New(genload.Config{
		Addr:     sink.LocalAddr().String(),
		Workers:  1,
		Duration: 10 * time.Second,
	})

	done := make(chan error, 1)
	go func() { done <- gen.Run(context.Background(), nil) }()

	time.Sleep(100 * time.Millisecond)
	gen.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
}
