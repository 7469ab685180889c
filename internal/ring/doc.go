// Package ring owns frame reassembly from image packets into a fixed
// set of pixel-buffer slots.
//
// Ownership boundary:
// - slot state machine (Free -> Filling -> Ready -> Sending -> Free)
// - oldest-wins reclamation under backpressure
// - line-index addressed writes, tolerant of in-frame reordering
//
// The ring exclusively owns slot-state transitions. Consumers read
// Ready/Sending contents through a handle and release it; they never
// touch slot state directly. Acquisition never blocks: when no slot is
// Free the oldest non-Free slot is reclaimed and the drop counter
// advances.
package ring
