package reconcile

import "time"

// Backoff computes the adaptive wait between passes.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	cur time.Duration
}

// NewBackoff returns a backoff starting at min.
func NewBackoff(minInterval, maxInterval time.Duration, factor float64) *Backoff {
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	if factor <= 1 {
		factor = 1.5
	}
	return &Backoff{Min: minInterval, Max: maxInterval, Factor: factor, cur: minInterval}
}

// Current returns the last computed interval.
func (b *Backoff) Current() time.Duration {
	if b.cur == 0 {
		return b.Min
	}
	return b.cur
}

// Next returns the wait before the following pass. A pass that changed a job
// resets the interval to Min; otherwise it grows by Factor up to Max.
func (b *Backoff) Next(changed bool) time.Duration {
	if changed {
		b.cur = b.Min
		return b.cur
	}
	b.cur = b.grow(b.Current())
	return b.cur
}

func (b *Backoff) grow(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * b.Factor)
	if next <= d {
		next = d + 1
	}
	if next > b.Max {
		next = b.Max
	}
	return next
}
