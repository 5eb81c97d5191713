package embedding

import (
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryPolicy schedules the next attempt of a failed task as
// BaseDelay * Multiplier^(n-1), capped at MaxDelay.
type RetryPolicy struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultRetryPolicy spaces queue retries 30s, 90s, 270s
var DefaultRetryPolicy = RetryPolicy{
	BaseDelay:  30 * time.Second,
	Multiplier: 3,
	MaxDelay:   time.Hour,
}

// DefaultCooldownPolicy spaces dead-letter recoveries 1h, 2h, 4h, up to a day
var DefaultCooldownPolicy = RetryPolicy{
	BaseDelay:  time.Hour,
	Multiplier: 2,
	MaxDelay:   24 * time.Hour,
}

// Delay returns the wait after the n-th failure (n >= 1)
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	var d time.Duration
	for i := 0; i < n; i++ {
		d = bo.NextBackOff()
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// NextAt returns now + Delay(n)
func (p RetryPolicy) NextAt(now time.Time, n int) time.Time {
	return now.Add(p.Delay(n))
}

func (p RetryPolicy) orDefault(def RetryPolicy) RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = def.MaxDelay
		if p.MaxDelay < p.BaseDelay {
			p.MaxDelay = p.BaseDelay
		}
	}
	return p
}
