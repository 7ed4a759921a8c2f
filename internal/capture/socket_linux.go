//go:build linux

package capture

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseOpts enables SO_REUSEADDR and SO_REUSEPORT on the listening
// socket so that multiple capture contexts can share one UDP endpoint and
// let the kernel load-balance datagrams across them.
func setReuseOpts(rc syscall.RawConn) error {
	var sockErr error

	err := rc.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}

	return sockErr
}

// actualRcvBuf reads back the kernel-granted SO_RCVBUF size, which is
// typically double the value requested via SetReadBuffer (the kernel
// reserves bookkeeping overhead).
func actualRcvBuf(rc syscall.RawConn) (int, error) {
	var size int
	var sockErr error

	err := rc.Control(func(fd uintptr) {
		size, sockErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
	})
	if err != nil {
		return 0, err
	}

	return size, sockErr
}

// recvFlags is passed to ipv4.PacketConn.ReadBatch. MSG_WAITFORONE makes the
// batched receive block until at least one datagram is ready, then return
// every datagram already queued without blocking further.
const recvFlags = unix.MSG_WAITFORONE
