// Package csi owns the image packet model: framing a 2D pixel buffer
// into the CSI-2-style packet sequence and parsing it back.
//
// Ownership boundary:
// - frame-start / line-data / frame-end packet types and wire codec
// - packetizer (frame -> ordered packet sequence)
// - parser (packet sequence -> frame, with per-line integrity markers)
//
// The packet sequence for one frame is exactly one FrameStart, one
// LineData per row, one FrameEnd. Packets are never mutated after
// creation.
package csi
