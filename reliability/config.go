package reliability

import "time"

// Config tunes the reliability engine's retry and quality behaviour. A
// connection may override any of these fields from its own config.
type Config struct {
	// MinRetryInterval is the floor on the reliable resend timer,
	// regardless of how low the smoothed RTT estimate goes.
	MinRetryInterval time.Duration
	// RetryMultiplier scales the smoothed RTT into a resend timer.
	RetryMultiplier float64
	// DefaultRetryInterval is the resend timer used whenever no RTT sample
	// exists yet.
	DefaultRetryInterval time.Duration
	// MaxSendAttempts bounds the total number of sends of a reliable
	// message, the first send included, before it is dropped and
	// EventReliableDropped fires.
	MaxSendAttempts int
	// DuplicateFilterWindow sizes the reliable receive-side duplicate
	// filter. Must be >= MinDuplicateFilterWindow.
	DuplicateFilterWindow int
	// Quality configures the EMA-based poor-connection detector.
	Quality QualityConfig
}

// DefaultConfig returns the engine's out-of-the-box tuning.
func DefaultConfig() Config {
	return Config{
		MinRetryInterval:     10 * time.Millisecond,
		RetryMultiplier:      1.2,
		DefaultRetryInterval: 50 * time.Millisecond,
		MaxSendAttempts:      15,
		DuplicateFilterWindow: DefaultDuplicateFilterWindow,
		Quality:              DefaultQualityConfig(),
	}
}

// retryInterval computes the next resend timer from a smoothed RTT
// estimate (zero before the first sample arrives).
func (c Config) retryInterval(smoothedRTT time.Duration) time.Duration {
	if smoothedRTT <= 0 {
		return c.DefaultRetryInterval
	}
	d := time.Duration(float64(smoothedRTT) * c.RetryMultiplier)
	if d < c.MinRetryInterval {
		return c.MinRetryInterval
	}
	return d
}
