// Package pipeline owns the end-to-end orchestrator: source frame ->
// image packets -> buffer-ring reassembly -> fragmentation ->
// impairment -> fragment reassembly -> sink.
//
// Ownership boundary:
// - stage sequencing and per-stage checkpoints
// - per-stage latency recording
// - poll-driven staleness sweeps of the fragment receiver
//
// The orchestrator transforms nothing itself; it invokes stages in
// order, times each one, and exposes intermediate state for
// verification and diagnosis.
package pipeline
