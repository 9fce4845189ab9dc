//go:build windows

package listeners

import "syscall"

// reuseControl is a no-op on Windows, where SO_REUSEADDR/SO_REUSEPORT
// semantics differ enough from Unix that applying them here would be
// actively wrong (Windows' SO_REUSEADDR permits silent port hijacking).
func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
