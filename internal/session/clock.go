package session

import "time"

// Clock abstracts wall time so the runtime's countdowns can be driven
// deterministically in tests. All remaining-time math is computed from absolute
// deadlines against Now, never by decrementing per tick, so missed or delayed
// ticks cannot desynchronize a countdown.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// SystemClock is the production clock.
var SystemClock Clock = realClock{}
