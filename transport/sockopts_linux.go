//go:build linux

package transport

import (
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// socketBufferBytes sizes SO_RCVBUF/SO_SNDBUF generously enough to absorb
// a burst of MaxPayloadSize-sized datagrams between ticks.
const socketBufferBytes = 1 << 20

// tuneSocket applies Linux-specific socket options: larger send/receive
// buffers, and IP_MTU_DISCOVER set to "don't fragment" so an oversized
// send fails fast at the socket layer rather than silently fragmenting.
// Best-effort — a tuning failure is not fatal to the transport.
func tuneSocket(conn *net.UDPConn) {
	fd := netfd.GetFdFromConn(conn)
	if fd <= 0 {
		return
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferBytes)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferBytes)
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
}
