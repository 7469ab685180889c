// Package latency owns the thread-safe latency recorder used to
// characterize pipeline stages: percentile summaries by linear
// interpolation and fixed-bucket histograms.
package latency

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"
)

var ErrBadBucketCount = errors.New("latency: bucket count must be positive")

// Summary is an immutable percentile snapshot of the recorded samples.
type Summary struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Bucket is one histogram bin over [Lo, Hi).
type Bucket struct {
	Lo    time.Duration
	Hi    time.Duration
	Count int
}

// Recorder accumulates scalar latency samples from concurrent
// recorders. No sample is ever dropped; Record blocks only for the
// internal lock.
type Recorder struct {
	mu      sync.Mutex
	samples []time.Duration
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one sample.
func (r *Recorder) Record(d time.Duration) {
	r.mu.Lock()
	r.samples = append(r.samples, d)
	r.mu.Unlock()
}

// Count returns the number of recorded samples.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Clear discards all samples.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.samples = r.samples[:0]
	r.mu.Unlock()
}

// Summary computes min/max/mean and p50/p95/p99 over a sorted copy of
// the samples. Percentiles use linear interpolation between adjacent
// ranks.
func (r *Recorder) Summary() Summary {
	sorted := r.sortedCopy()
	n := len(sorted)
	if n == 0 {
		return Summary{}
	}
	var total time.Duration
	for _, s := range sorted {
		total += s
	}
	return Summary{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Mean:  total / time.Duration(n),
		P50:   interpolate(sorted, 0.50),
		P95:   interpolate(sorted, 0.95),
		P99:   interpolate(sorted, 0.99),
	}
}

// Histogram bins the samples into the given number of equal-width
// buckets spanning [min, max].
func (r *Recorder) Histogram(buckets int) ([]Bucket, error) {
	if buckets <= 0 {
		return nil, ErrBadBucketCount
	}
	sorted := r.sortedCopy()
	if len(sorted) == 0 {
		return make([]Bucket, buckets), nil
	}

	lo, hi := sorted[0], sorted[len(sorted)-1]
	width := (hi - lo) / time.Duration(buckets)
	if width <= 0 {
		width = 1
	}
	out := make([]Bucket, buckets)
	for i := range out {
		out[i].Lo = lo + time.Duration(i)*width
		out[i].Hi = out[i].Lo + width
	}
	for _, s := range sorted {
		idx := int((s - lo) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		out[idx].Count++
	}
	return out, nil
}

func (r *Recorder) sortedCopy() []time.Duration {
	r.mu.Lock()
	sorted := make([]time.Duration, len(r.samples))
	copy(sorted, r.samples)
	r.mu.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

// interpolate computes the p-quantile of sorted by linear interpolation
// on the rank p*(n-1).
func interpolate(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + time.Duration(frac*float64(sorted[lo+1]-sorted[lo]))
}
