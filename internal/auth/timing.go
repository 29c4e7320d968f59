package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds the padding applied to rejected logins.
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration // upper bound of the uniformly random extra delay
}

// TimingDelay pads rejected logins to a minimum duration so that
// "no such account" and "wrong password" are indistinguishable by latency.
// A zero config disables padding.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// Enabled reports whether any padding is configured.
func (td *TimingDelay) Enabled() bool {
	return td != nil && (td.config.BaseDelay > 0 || td.config.RandomDelay > 0)
}

// PadFrom blocks until at least the configured delay has elapsed since start,
// or ctx is done.
func (td *TimingDelay) PadFrom(ctx context.Context, start time.Time) {
	if !td.Enabled() {
		return
	}

	target := td.config.BaseDelay + cryptoRandDuration(td.config.RandomDelay)
	remaining := target - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// cryptoRandDuration returns a duration in [0, max) from crypto/rand.
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}
