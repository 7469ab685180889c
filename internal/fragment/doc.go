// Package fragment owns the datagram fragmentation/reassembly protocol
// that carries a reassembled frame over a lossy datagram transport.
//
// Ownership boundary:
// - self-describing fragment header codec
// - frame splitting into bounded-size fragments
// - receive-side reassembly contexts with staleness eviction
//
// Fragments are accepted in any arrival order; duplicates are
// idempotent; fragments with an invalid header check are dropped and
// counted, never fatal to the frame. A context that stops receiving
// fragments is evicted on an explicit sweep, not by a background timer.
package fragment
