// Package wire owns the binary codec primitives shared by every layer
// of the protocol stack.
//
// Ownership boundary:
// - little-endian field encode/decode helpers
// - CRC-16 integrity checks
// - HMAC-SHA256 message authentication
//
// Every multi-byte field on every wire format in this module is
// little-endian. Verification helpers return booleans, never errors, so
// security-sensitive callers can drop silently.
package wire
