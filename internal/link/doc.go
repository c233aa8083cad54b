// Package link owns the running TCP session.
//
// Ownership boundary:
// - the listener/connector state machine
// - the attached peer set and broadcast sends
// - the auto-responder
// - emitting one display record per frame moved
//
// Every operation and every transport callback (accept, data, close, error,
// dial result) is handled by one event-loop goroutine per Manager, so session
// status and the peer set have a single writer.
package link
