// Package genload implements the standalone VXLAN load generator: a pool of
// workers, each with its own socket and pre-built packet batch, issuing
// batched sends until a deadline or a signal-driven stop flag fires.
package genload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const (
	unixEAGAIN  = unix.EAGAIN
	unixENOBUFS = unix.ENOBUFS
)

const (
	maxWorkers   = 64
	maxBatch     = 256
	sendBufBytes = 4 << 20
)

// Config describes one load-generation run.
type Config struct {
	Addr       string // host:port of the target endpoint
	Workers    int    // worker count, clamped to [1, 64]
	Duration   time.Duration
	PktSize    int // clamped to [64, 9000]; 0 means defaultPktSize
	TotalFlows int // 0 means defaultTotalFlows
}

// Generator owns the stop flag and per-worker counters for one run.
type Generator struct {
	cfg      Config
	stopped  atomic.Bool
	counters []atomic.Uint64
}

// New builds a Generator from cfg, applying defaults and clamps.
func New(cfg Config) *Generator {
	if cfg.PktSize <= 0 {
		cfg.PktSize = defaultPktSize
	}
	cfg.PktSize = ClampPktSize(cfg.PktSize)

	if cfg.TotalFlows <= 0 {
		cfg.TotalFlows = defaultTotalFlows
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Workers > maxWorkers {
		cfg.Workers = maxWorkers
	}

	return &Generator{
		cfg:      cfg,
		counters: make([]atomic.Uint64, cfg.Workers),
	}
}

// Stop sets the cooperative stop flag; all workers observe it at their next
// batch boundary.
func (g *Generator) Stop() {
	g.stopped.Store(true)
}

// Counters returns a snapshot of each worker's sent-packet count.
func (g *Generator) Counters() []uint64 {
	out := make([]uint64, len(g.counters))
	for i := range g.counters {
		out[i] = g.counters[i].Load()
	}
	return out
}

// Total returns the sum of all workers' sent-packet counts.
func (g *Generator) Total() uint64 {
	var total uint64
	for i := range g.counters {
		total += g.counters[i].Load()
	}
	return total
}

// Run spawns Workers goroutines and blocks until the configured duration
// elapses, ctx is cancelled, or Stop is called. If progress is non-nil, it
// is invoked roughly once per second with the current total sent count.
func (g *Generator) Run(ctx context.Context, progress func(total uint64)) error {
	flowsPerWorker := g.cfg.TotalFlows / g.cfg.Workers
	if flowsPerWorker == 0 {
		flowsPerWorker = 1
	}

	var wg sync.WaitGroup
	errCh := make(chan error, g.cfg.Workers)

	for w := 0; w < g.cfg.Workers; w++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := g.runWorker(ctx, idx, flowsPerWorker); err != nil {
				errCh <- err
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	deadline := time.Now().Add(g.cfg.Duration)
	ctxDone := ctx.Done()

	for {
		select {
		case <-done:
			return firstErr(errCh)
		case <-ticker.C:
			if progress != nil {
				progress(g.Total())
			}
			if time.Now().After(deadline) {
				g.Stop()
			}
		case <-ctxDone:
			g.Stop()
			ctxDone = nil
		}
	}
}

func (g *Generator) runWorker(ctx context.Context, idx, flowsPerWorker int) error {
	raddr, err := net.ResolveUDPAddr("udp4", g.cfg.Addr)
	if err != nil {
		return fmt.Errorf("genload: resolve %s: %w", g.cfg.Addr, err)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return fmt.Errorf("genload: dial worker %d: %w", idx, err)
	}
	defer conn.Close()

	if err := conn.SetWriteBuffer(sendBufBytes); err != nil {
		// Best-effort: an unmet send-buffer hint does not abort the run.
		_ = err
	}

	batch := flowsPerWorker
	if batch > maxBatch {
		batch = maxBatch
	}

	msgs := make([]ipv4.Message, batch)
	base := uint32(idx * flowsPerWorker)
	for i := range msgs {
		buf := make([]byte, g.cfg.PktSize)
		BuildPacket(buf, base+uint32(i))
		msgs[i].Buffers = [][]byte{buf}
	}

	pconn := ipv4.NewPacketConn(conn)

	for !g.stopped.Load() && ctx.Err() == nil {
		n, err := pconn.WriteBatch(msgs, 0)
		if err != nil {
			if isTransientSendErr(err) {
				time.Sleep(time.Millisecond)
				continue
			}
			return fmt.Errorf("genload: worker %d write batch: %w", idx, err)
		}

		g.counters[idx].Add(uint64(n))
	}

	return nil
}

// isTransientSendErr reports whether err is a buffer-full/would-block
// condition that should be retried rather than aborting the worker — a
// closed or otherwise permanent socket error is not transient.
func isTransientSendErr(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return false
	}

	if errors.Is(err, unixEAGAIN) || errors.Is(err, unixENOBUFS) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func firstErr(errCh chan error) error {
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
