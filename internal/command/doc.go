// Package command owns the authenticated command/control protocol.
//
// Ownership boundary:
// - command and response frame wire codec
// - HMAC validation and replay gating of inbound commands
// - dispatch by command id and authenticated response construction
//
// Inbound processing order is fixed: minimum length, magic, MAC,
// sequence, dispatch. Failures before dispatch are silently discarded
// (no response, no oracle) and counted; replay rejections are counted
// separately from MAC failures because they indicate different threat
// classes. The replay record is updated before the handler runs.
package command
