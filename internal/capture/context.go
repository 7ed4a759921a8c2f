// Package capture implements the single-threaded ingest loop and
// snapshot/flush protocol: the batched-receive pipeline that binds a UDP
// endpoint, drives the decoder and flow table per datagram, and periodically
// hands aggregated counters to a consumer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/vxlanprobe/vxlanprobe/internal/decoder"
	"github.com/vxlanprobe/vxlanprobe/internal/flowkey"
	"github.com/vxlanprobe/vxlanprobe/internal/flowtable"
)

const (
	batchSize      = 256
	datagramBufLen = 2048
	recvTimeout    = 100 * time.Millisecond
)

// ErrPortReuseUnavailable is returned by New when the platform cannot grant
// SO_REUSEPORT. Port reuse is required, not optional: the shared-endpoint
// model depends on kernel-side load balancing across contexts.
var ErrPortReuseUnavailable = errors.New("capture: SO_REUSEPORT unavailable on this platform")

// Config configures a capture Context.
type Config struct {
	// Port is the UDP port to bind on the wildcard address.
	Port int
	// RcvBufHint is the desired receive buffer size; best-effort, the
	// actual granted size is available via RcvBuf after New returns.
	RcvBufHint int
}

// Context owns a bound UDP socket, the flow table, the batch buffers, and
// the snapshot buffer for its entire lifetime. It is touched by exactly one
// execution context at a time: Run, Flush, and the counter getters are never
// called concurrently with each other, except for Stop, which is designed
// to be called from a separate goroutine.
type Context struct {
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	rcvbuf int

	table   *flowtable.Table
	msgs    []ipv4.Message
	snapBuf []flowkey.Record
	snapLen int

	stopped atomic.Bool

	totalPackets atomic.Uint64
	totalBytes   atomic.Uint64
	totalParsed  atomic.Uint64
}

// New allocates a Context, binds the socket with address and port reuse
// enabled, applies the receive buffer hint, and pre-wires the batch and
// snapshot buffers. The socket and buffers are never reallocated for the
// lifetime of the Context.
func New(cfg Config) (*Context, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, rc syscall.RawConn) error {
			return setReuseOpts(rc)
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("capture: bind: %w", err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("capture: unexpected listener type %T", pc)
	}

	if cfg.RcvBufHint > 0 {
		if err := conn.SetReadBuffer(cfg.RcvBufHint); err != nil {
			conn.Close()
			return nil, fmt.Errorf("capture: set rcvbuf hint: %w", err)
		}
	}

	rcvbuf := cfg.RcvBufHint
	if rc, err := conn.SyscallConn(); err == nil {
		if n, err := actualRcvBuf(rc); err == nil {
			rcvbuf = n
		}
	}

	msgs := make([]ipv4.Message, batchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, datagramBufLen)}
	}

	c := &Context{
		conn:    conn,
		pconn:   ipv4.NewPacketConn(conn),
		rcvbuf:  rcvbuf,
		table:   flowtable.New(),
		msgs:    msgs,
		snapBuf: make([]flowkey.Record, flowtable.SoftCap),
	}

	return c, nil
}

// RcvBuf reports the actual granted receive buffer size.
func (c *Context) RcvBuf() int {
	return c.rcvbuf
}

// LocalAddr returns the bound socket's local address. Mainly useful for
// tests that bind an ephemeral port (Config.Port == 0).
func (c *Context) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Run executes the ingest loop for up to duration, or until Stop is called.
// It returns the total number of datagrams received during the run.
//
// Each iteration resets the scatter/gather slots, issues a batched receive
// bounded by a 100ms socket timeout with MSG_WAITFORONE semantics, and
// drives the decoder and flow table over whatever arrived. The deadline and
// the cooperative stop flag are both checked only at batch boundaries: an
// in-flight batch is always fully processed before exit.
func (c *Context) Run(ctx context.Context, duration time.Duration) (uint64, error) {
	start := time.Now()

	c.totalPackets.Store(0)
	c.totalBytes.Store(0)
	c.totalParsed.Store(0)

	for {
		for i := range c.msgs {
			buf := c.msgs[i].Buffers[0]
			c.msgs[i].Buffers[0] = buf[:cap(buf)]
			c.msgs[i].N = 0
		}

		if err := c.pconn.SetReadDeadline(time.Now().Add(recvTimeout)); err != nil {
			return c.totalPackets.Load(), fmt.Errorf("capture: set read deadline: %w", err)
		}

		n, err := c.pconn.ReadBatch(c.msgs, recvFlags)
		if err != nil {
			if isTimeout(err) {
				// Treat as a no-op: re-check deadline/stop below.
			} else {
				return c.totalPackets.Load(), fmt.Errorf("capture: read batch: %w", err)
			}
		} else {
			for i := 0; i < n; i++ {
				m := &c.msgs[i]

				c.totalPackets.Add(1)
				c.totalBytes.Add(uint64(m.N))

				pkt := m.Buffers[0][:m.N]

				res, ok := decoder.Decode(pkt)
				if !ok {
					continue
				}

				c.totalParsed.Add(1)
				c.table.Update(res.Key, res.InnerTotalLen)
			}
		}

		if c.stopped.Load() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if time.Since(start) >= duration {
			break
		}
	}

	return c.totalPackets.Load(), nil
}

// Stop sets the cooperative stop flag. The running loop observes it at the
// next batch boundary.
func (c *Context) Stop() {
	c.stopped.Store(true)
}

// Flush walks the table, writes occupied entries into the snapshot buffer,
// resets the table, and returns the number of records written. Callable
// only while Run is not executing.
func (c *Context) Flush() int {
	c.snapLen = c.table.Snapshot(c.snapBuf)
	return c.snapLen
}

// FlushBuf returns a borrowed view of the last snapshot, valid until the
// next Flush call or Close.
func (c *Context) FlushBuf() []flowkey.Record {
	return c.snapBuf[:c.snapLen]
}

// TotalPackets returns the gross received-datagram count for the current or
// most recent run.
func (c *Context) TotalPackets() uint64 { return c.totalPackets.Load() }

// TotalBytes returns the gross raw-bytes-received count.
func (c *Context) TotalBytes() uint64 { return c.totalBytes.Load() }

// TotalParsed returns the count of datagrams successfully decoded into flow
// updates, including those subsequently dropped by the table (soft cap or
// probe-budget exhaustion).
func (c *Context) TotalParsed() uint64 { return c.totalParsed.Load() }

// NumFlows returns the table's live occupied-count.
func (c *Context) NumFlows() int { return c.table.NumFlows() }

// Close releases the socket. It does not release the batch or snapshot
// buffers explicitly; they are reclaimed by the garbage collector once the
// Context is unreferenced.
func (c *Context) Close() error {
	return c.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
