//go:build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl sets SO_REUSEADDR and SO_REUSEPORT on the listening
// socket before bind, letting several peer processes share one multicast
// port on the same machine — the accommodation the Python reference makes
// for single-machine testing via a setsockopt call guarded by an
// AttributeError fallback. Go has no portable SO_REUSEPORT, so this file
// is Linux-specific; see reuseport_other.go for the fallback.
func reusePortControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			sockErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
			sockErr = e
			return
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
