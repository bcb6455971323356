package app

import (
	"sync"
	"time"
)

// MinSendInterval is the smallest gap allowed between two gateway sends.
// Callers may raise it per run but never lower it.
const MinSendInterval = time.Second

// Pacer serialises the start of gateway sends so that no two begin less than
// interval apart, whatever the number of workers.
type Pacer struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	lastSent time.Time
}

func NewPacer(clock Clock, interval time.Duration) *Pacer {
	if interval < MinSendInterval {
		interval = MinSendInterval
	}
	return &Pacer{clock: clock, interval: interval}
}

// Interval returns the effective gap between sends.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Do waits for the next send slot, stamps it and runs send while still holding
// the slot. The slot is released even if send panics. It returns how long the
// caller waited.
func (p *Pacer) Do(send func()) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	var waited time.Duration
	if !p.lastSent.IsZero() {
		if wait := p.lastSent.Add(p.interval).Sub(p.clock.Now()); wait > 0 {
			p.clock.Sleep(wait)
			waited = wait
		}
	}
	p.lastSent = p.clock.Now()
	send()
	return waited
}
