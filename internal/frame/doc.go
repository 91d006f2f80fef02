// Package frame encodes and decodes the text frames exchanged with the
// live scorecard sync service.
//
// The service speaks a SockJS-wrapped DDP dialect. Inbound traffic is one of:
//
//   - "o": the SockJS session opened (ConnectAck)
//   - "h": a SockJS heartbeat (ignored)
//   - "a[...]": an array of JSON strings, each of which is itself a JSON
//     document (the payload is double-encoded)
//
// Payloads are classified by their discriminant field into an explicit
// tagged Message. Anything that cannot be parsed or classified decodes to
// KindUnrecognized with Err set; decoding never panics and never returns
// an error to the caller.
//
// Outbound frames are fixed templates with interpolated identifiers. The
// remote service is not under our control, so the byte layout of every
// template is pinned by golden files in testdata/golden.
package frame
