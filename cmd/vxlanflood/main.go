// Command vxlanflood is a standalone sendmmsg-style load generator that
// produces bit-exact VXLAN-encapsulated IPv4 datagrams for exercising and
// benchmarking a capture endpoint.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/vxlanprobe/vxlanprobe/internal/genload"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vxlanflood <ip> <port> <threads> <duration_seconds> [pkt_size=128] [total_flows=100000]")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 4 {
		usage()
		return 1
	}

	ip := args[0]

	port, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[1], err)
		return 1
	}

	threads, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid thread count %q: %v\n", args[2], err)
		return 1
	}

	durationSec, err := strconv.Atoi(args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid duration %q: %v\n", args[3], err)
		return 1
	}

	pktSize := 128
	if len(args) > 4 {
		pktSize, err = strconv.Atoi(args[4])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid pkt_size %q: %v\n", args[4], err)
			return 1
		}
	}

	totalFlows := 100_000
	if len(args) > 5 {
		totalFlows, err = strconv.Atoi(args[5])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid total_flows %q: %v\n", args[5], err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := genload.New(genload.Config{
		Addr:       net.JoinHostPort(ip, strconv.Itoa(port)),
		Workers:    threads,
		Duration:   time.Duration(durationSec) * time.Second,
		PktSize:    pktSize,
		TotalFlows: totalFlows,
	})

	var lastTotal uint64
	lastTick := time.Now()

	start := time.Now()

	progress := func(total uint64) {
		now := time.Now()
		elapsed := now.Sub(lastTick).Seconds()
		instRate := float64(total-lastTotal) / elapsed
		avgRate := float64(total) / now.Sub(start).Seconds()

		fmt.Printf("pps: inst=%.0f avg=%.0f  bitrate: inst=%.2fMbps avg=%.2fMbps\n",
			instRate, avgRate,
			instRate*float64(pktSize)*8/1e6,
			avgRate*float64(pktSize)*8/1e6,
		)

		lastTotal = total
		lastTick = now
	}

	if err := gen.Run(ctx, progress); err != nil {
		fmt.Fprintf(os.Stderr, "generator error: %v\n", err)
		return 1
	}

	fmt.Println("final per-worker counts:")
	for i, c := range gen.Counters() {
		fmt.Printf("  worker %d: %d\n", i, c)
	}
	fmt.Printf("total: %d\n", gen.Total())

	return 0
}
