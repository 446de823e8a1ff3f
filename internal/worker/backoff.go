package worker

import "time"

// RetryPolicy is the backoff between attempts of a failed poller run.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// withDefaults fills zero fields. MaxDelay defaults to one polling interval
// so a retry never outlasts the next tick.
func (r RetryPolicy) withDefaults(interval time.Duration) RetryPolicy {
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = time.Second
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = interval
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay is the wait before retry number attempt (1-based), capped at
// MaxDelay when it is set.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	d := r.InitialDelay
	if d <= 0 {
		d = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if r.MaxDelay > 0 && d >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}
