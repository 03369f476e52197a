package security

import "time"

// Limits bounds the probe intervals/timeouts the config loader accepts.
// MaxConcurrentCalls is carried but not read or enforced anywhere.
type Limits struct {
	MinInterval        time.Duration
	MaxInterval        time.Duration
	MinTimeout         time.Duration
	MaxTimeout         time.Duration
	MaxConcurrentCalls int
}

func DefaultLimits() Limits {
	return Limits{
		MinInterval:        5 * time.Second,
		MaxInterval:        time.Hour,
		MinTimeout:         time.Second,
		MaxTimeout:         5 * time.Minute,
		MaxConcurrentCalls: 8,
	}
}
