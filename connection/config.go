package connection

import (
	"time"

	"github.com/ventosilenzioso/riptide/reliability"
)

// Config tunes heartbeat cadence, timeouts, and handshake retries. A
// global Config is supplied at Server/Client construction.
type Config struct {
	HeartbeatInterval     time.Duration
	TimeoutTime           time.Duration
	MaxConnectionAttempts int
	Reliability           reliability.Config
}

// DefaultConfig returns the library's recommended tuning.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:     1000 * time.Millisecond,
		TimeoutTime:           5000 * time.Millisecond,
		MaxConnectionAttempts: 5,
		Reliability:           reliability.DefaultConfig(),
	}
}
