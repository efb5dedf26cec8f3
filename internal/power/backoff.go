package power

import "time"

const (
	DefaultRetryDelay    = 2 * time.Second
	DefaultMaxRetryDelay = 30 * time.Second
	DefaultFastAttempts  = 3
)

// Backoff computes the delay before a retry attempt: Base*attempt, capped at
// Max. Once FastAttempts attempts have been used, every later attempt waits
// the full cap regardless of where the linear ramp would land.
type Backoff struct {
	Base         time.Duration
	Max          time.Duration
	FastAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:         DefaultRetryDelay,
		Max:          DefaultMaxRetryDelay,
		FastAttempts: DefaultFastAttempts,
	}
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.FastAttempts > 0 && attempt > b.FastAttempts {
		return b.Max
	}
	d := time.Duration(attempt) * b.Base
	if d > b.Max {
		d = b.Max
	}
	return d
}
