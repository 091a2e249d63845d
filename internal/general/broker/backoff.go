package broker

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff produces reconnect delays: doubling from Base up to Max, with
// proportional jitter added on top of the deterministic floor so the
// sequence stays non-decreasing and never exceeds Max.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	JitterFrac float64 // fraction of the gap to the next step used for jitter

	mu      sync.Mutex
	attempt int
	rng     *rand.Rand
}

// NewBackoff returns a Backoff with 20% jitter.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{
		Base:       base,
		Max:        max,
		JitterFrac: 0.2,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay for the next attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.Base << b.attempt
	if d > b.Max || d < b.Base { // overflow guard on the shift
		d = b.Max
	}
	if d < b.Max {
		b.attempt++
	}

	if b.JitterFrac > 0 {
		headroom := time.Duration(float64(d) * b.JitterFrac)
		if d+headroom > b.Max {
			headroom = b.Max - d
		}
		if headroom > 0 {
			d += time.Duration(b.rng.Int63n(int64(headroom) + 1))
		}
	}
	return d
}

// Reset returns the schedule to the base delay. Called after a sustained
// healthy connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
