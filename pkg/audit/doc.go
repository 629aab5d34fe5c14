// Package audit records the durable trail of synchronization operations.
//
// Every provisioning stage, compensation attempt, permission mutation, and
// detected orphan produces an event. The trail is the operator's view into
// the inconsistencies the write path tolerates on purpose: a compensation
// that failed, or a user that exists in only one backend, must be findable
// here after the fact.
//
// The default store is a local sqlite database so the trail survives
// restarts without external infrastructure. A NopLogger is available for
// tests and for running without a trail.
package audit
