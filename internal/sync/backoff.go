package sync

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// daemonBackoff implements cenkalti/backoff/v5's BackOff interface with
// the background sync timer's own policy (spec §4.G): reset to base on
// success, double (capped) on failure. The library's default curve adds
// randomized jitter tuned for HTTP retry storms, which is more than this
// single in-process timer needs, so the interface is implemented directly
// rather than configured through backoff.NewExponentialBackOff.
type daemonBackoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

var _ backoff.BackOff = (*daemonBackoff)(nil)

func newDaemonBackoff(base, max time.Duration) *daemonBackoff {
	return &daemonBackoff{base: base, max: max, current: base}
}

// NextBackOff returns the current interval and does not by itself advance
// it; callers drive the policy explicitly via OnSuccess/OnFailure since
// this is a persistent timer, not a bounded retry loop.
func (d *daemonBackoff) NextBackOff() time.Duration {
	return d.current
}

func (d *daemonBackoff) Reset() {
	d.current = d.base
}

// OnSuccess resets the interval to base.
func (d *daemonBackoff) OnSuccess() {
	d.current = d.base
}

// OnFailure doubles the interval, capped at max.
func (d *daemonBackoff) OnFailure() {
	d.current *= 2
	if d.current > d.max {
		d.current = d.max
	}
}
