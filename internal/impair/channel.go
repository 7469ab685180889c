package impair

import (
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/scanlink/internal/fragment"
)

// Rates configures the per-fragment impairment probabilities and the
// simulated delivery delay range. Probabilities outside [0, 1] are
// clamped.
type Rates struct {
	Loss       float64
	Reorder    float64
	Corruption float64
	MinDelay   time.Duration
	MaxDelay   time.Duration
}

func (r Rates) clamped() Rates {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	r.Loss = clamp(r.Loss)
	r.Reorder = clamp(r.Reorder)
	r.Corruption = clamp(r.Corruption)
	if r.MinDelay < 0 {
		r.MinDelay = 0
	}
	if r.MaxDelay < r.MinDelay {
		r.MaxDelay = r.MinDelay
	}
	return r
}

// Counters is an immutable snapshot of cumulative channel activity.
type Counters struct {
	Sent      uint64
	Lost      uint64
	Reordered uint64
	Corrupted uint64
}

// Emission is one fragment leaving the channel with its sampled
// delivery delay. The synchronous core never sleeps; consumers decide
// what the delay means.
type Emission struct {
	Fragment fragment.Fragment
	Delay    time.Duration
}

// Channel is a pass-through impairment transform. Rates are tunable at
// runtime without reconstructing the channel. Safe for concurrent use;
// all randomness comes from the single seeded generator.
type Channel struct {
	mu    sync.Mutex
	rates Rates
	rng   *rand.Rand
	ctr   Counters
}

// NewChannel creates a channel with the given rates and seed.
func NewChannel(rates Rates, seed int64) *Channel {
	return &Channel{
		rates: rates.clamped(),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// SetRates replaces the impairment rates, clamped to valid ranges.
func (c *Channel) SetRates(rates Rates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = rates.clamped()
}

// Rates returns the current rates.
func (c *Channel) Rates() Rates {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rates
}

// Transmit applies loss, corruption, and reordering, in that order, to
// one batch of fragments and returns the surviving emissions.
func (c *Channel) Transmit(in []fragment.Fragment) []Emission {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ctr.Sent += uint64(len(in))

	// Loss: each fragment dropped independently.
	out := make([]Emission, 0, len(in))
	for _, f := range in {
		if c.rates.Loss > 0 && c.rng.Float64() < c.rates.Loss {
			c.ctr.Lost++
			continue
		}
		out = append(out, Emission{Fragment: f, Delay: c.sampleDelay()})
	}

	// Corruption: a single payload byte of a surviving fragment gets
	// one bit flipped. The payload is copied first so the sender's
	// buffer is untouched.
	for i := range out {
		if c.rates.Corruption <= 0 || c.rng.Float64() >= c.rates.Corruption {
			continue
		}
		payload := out[i].Fragment.Payload
		if len(payload) == 0 {
			continue
		}
		mutated := make([]byte, len(payload))
		copy(mutated, payload)
		mutated[c.rng.Intn(len(mutated))] ^= 1 << c.rng.Intn(8)
		out[i].Fragment.Payload = mutated
		c.ctr.Corrupted++
	}

	// Reordering: bounded partial shuffle, each position swapped with
	// an earlier one with the configured probability.
	for i := len(out) - 1; i > 0; i-- {
		if c.rates.Reorder <= 0 || c.rng.Float64() >= c.rates.Reorder {
			continue
		}
		j := c.rng.Intn(i + 1)
		if i != j {
			out[i], out[j] = out[j], out[i]
			c.ctr.Reordered++
		}
	}

	return out
}

// sampleDelay draws a delivery delay uniformly from [MinDelay,
// MaxDelay]. Caller holds the lock.
func (c *Channel) sampleDelay() time.Duration {
	span := c.rates.MaxDelay - c.rates.MinDelay
	if span <= 0 {
		return c.rates.MinDelay
	}
	return c.rates.MinDelay + time.Duration(c.rng.Int63n(int64(span)+1))
}

// Counters returns a snapshot of cumulative channel activity.
func (c *Channel) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctr
}

// ResetCounters zeroes the cumulative counters.
func (c *Channel) ResetCounters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctr = Counters{}
}
