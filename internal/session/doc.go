// Package session owns the lifecycle of appliance sessions: the pure
// state machine that decides which events are accepted, the persistence
// of sessions and their transition history, and the capture of telemetry
// into the time-series store.
//
// Transitions are applied with optimistic concurrency: the state machine
// is evaluated against a snapshot and the write is conditional on the
// status not having moved underneath it.
package session
