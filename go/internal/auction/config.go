package auction

import "time"

// Config holds the engine timings.
type Config struct {
	// TimerTick is how often the countdown supervisor scans rooms.
	TimerTick time.Duration
	// PulseCheckInterval is how often admin liveness is checked.
	PulseCheckInterval time.Duration
	// PulseTimeout is how long an admin may stay silent before the room pauses.
	PulseTimeout time.Duration
	// BidSpacing is the minimum time between two accepted bids of one member.
	BidSpacing time.Duration
	// Workers is the size of the resolution worker pool.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		TimerTick:          100 * time.Millisecond,
		PulseCheckInterval: 5 * time.Second,
		PulseTimeout:       10 * time.Second,
		BidSpacing:         500 * time.Millisecond,
		Workers:            10,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TimerTick <= 0 {
		c.TimerTick = d.TimerTick
	}
	if c.PulseCheckInterval <= 0 {
		c.PulseCheckInterval = d.PulseCheckInterval
	}
	if c.PulseTimeout <= 0 {
		c.PulseTimeout = d.PulseTimeout
	}
	if c.BidSpacing <= 0 {
		c.BidSpacing = d.BidSpacing
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}
