package peer

import (
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"github.com/ventosilenzioso/riptide/connection"
	"github.com/ventosilenzioso/riptide/handler"
	"github.com/ventosilenzioso/riptide/metrics"
)

// DefaultMaxClientCount is the default client cap; the hub accepts any
// value up to 65534 (connection id 0 is reserved, 65535 is withheld so
// the id space fits comfortably below the sequence-id space).
const DefaultMaxClientCount = 32

// ServerConfig configures a Server's accept policy, connection tuning, and
// optional ambient collaborators.
type ServerConfig struct {
	MaxClientCount int
	Connection     connection.Config

	// AcceptLimiter, if non-nil, gates how many new Pending connections
	// may be created per second before the accept policy starts rejecting
	// with ConnectionRejected. Opt-in; nil means unlimited.
	AcceptLimiter *rate.Limiter

	// OnConnect, if non-nil, is consulted for every Connect handshake with
	// the application payload the client attached. Returning false rejects
	// the connection before an id is ever allocated. Opt-in; nil accepts
	// every handshake regardless of payload.
	OnConnect func(from net.Addr, payload []byte) bool

	// RelayFilter lists application message ids that, when sent with the
	// UnreliableAutoRelay/ReliableAutoRelay tag, are forwarded verbatim to
	// every other connected client instead of being dispatched locally.
	RelayFilter []uint16

	Handlers handler.Registry
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sane defaults and no
// optional collaborators wired in.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxClientCount: DefaultMaxClientCount,
		Connection:     connection.DefaultConfig(),
	}
}

// ClientConfig configures a Client's connection tuning and optional
// ambient collaborators.
type ClientConfig struct {
	Connection connection.Config
	Handlers   handler.Registry
	Metrics    *metrics.Metrics
	Log        *slog.Logger
}

// DefaultClientConfig returns a ClientConfig with sane defaults and no
// optional collaborators wired in.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{Connection: connection.DefaultConfig()}
}
