// Package ingest drives one live scorecard ingestion against the sync
// service.
//
// The package is layered the same way the protocol is:
//
//   - Correlator joins scorecard entries to their owning users and decides
//     when the card is complete. It is a value type; every update returns
//     a new Correlator and never mutates the receiver.
//   - Machine is the subscription handshake. Step is a pure transition
//     function from (State, Input) to (State, []Effect); it performs no
//     I/O and is the unit most tests exercise.
//   - Session owns the transport. A reader goroutine enqueues frames and a
//     single loop decodes them, steps the machine and executes the
//     resulting effects in order, so all state is owned by one goroutine.
//   - Manager admits at most one live session and exposes its status.
//
// Only transport failures end a session early. Decode failures and
// unresolvable owners are logged and absorbed.
package ingest
