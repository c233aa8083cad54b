// Package session holds the shared vocabulary of a link session.
//
// Ownership boundary:
// - connection roles and endpoint configuration
// - session state/status values
// - transport timeouts
// - the session error taxonomy
//
// The running state machine lives in internal/link.
package session
