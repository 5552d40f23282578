//go:build !linux

package transport

import "net"

// tuneSocket is a no-op on non-Linux targets: the raw-fd socket options
// applied in sockopts_linux.go have no portable equivalent worth chasing
// for a demo-grade transport.
func tuneSocket(conn *net.UDPConn) {}
