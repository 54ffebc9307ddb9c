//go:build !linux

package transport

import "syscall"

// reusePortControl is a no-op on platforms without a portable
// SO_REUSEPORT; SO_REUSEADDR alone (the net package's default posture)
// still allows a quick rebind after process restart.
func reusePortControl(network, address string, c syscall.RawConn) error {
	return nil
}
