//go:build !linux

package capture

import (
	"syscall"
)

func setReuseOpts(rc syscall.RawConn) error {
	return ErrPortReuseUnavailable
}

func actualRcvBuf(rc syscall.RawConn) (int, error) {
	return 0, ErrPortReuseUnavailable
}

// recvFlags is 0 on platforms without MSG_WAITFORONE. New never succeeds on
// these platforms (setReuseOpts returns ErrPortReuseUnavailable), so the
// ingest loop does not run here.
const recvFlags = 0
