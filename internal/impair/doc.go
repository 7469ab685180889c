// Package impair owns the deterministic network impairment channel
// applied between fragmentation and reassembly.
//
// Ownership boundary:
// - probabilistic loss, payload corruption, and bounded reordering
// - single seeded generator so a seed reproduces an identical impaired
//   sequence
// - live-tunable rates and cumulative counters
//
// The transform order is fixed: loss, then corruption, then
// reordering. Header bytes are never corrupted so routing and
// identification stay intact and payload integrity checks are
// exercised specifically.
package impair
